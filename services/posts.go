package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"omoide-album/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrEmptyPost    = errors.New("post content is empty")
	ErrPostNotFound = errors.New("post not found")
)

// names run until ASCII or ideographic whitespace
var mentionPattern = regexp.MustCompile(`@([^\s\x{3000}]+)`)

// MentionNotifier tells a user they were mentioned.
type MentionNotifier interface {
	NotifyMention(ctx context.Context, mentioned, actor *models.User, post *models.Post) error
}

// MentionOptions wires what happens when a post mentions someone. Nil fields switch that part off.
type MentionOptions struct {
	Notifier   MentionNotifier
	Bots       BotResolver
	Jobs       Dispatcher
	BotReplies *BotReplyService
	Logger     *zap.Logger
}

type PostService struct {
	DB       *gorm.DB
	mentions MentionOptions
	log      *zap.Logger
}

func NewPostService(db *gorm.DB) *PostService {
	return &PostService{DB: db, log: zap.NewNop()}
}

// WithMentions enables mention notifications and bot replies for posts created from now on.
func (s *PostService) WithMentions(opts MentionOptions) *PostService {
	s.mentions = opts
	if opts.Logger != nil {
		s.log = opts.Logger.Named("posts")
	}
	return s
}

// MentionedNames returns the distinct @names in content, in order of appearance.
func MentionedNames(content string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// CreatePost publishes a top-level post.
func (s *PostService) CreatePost(ctx context.Context, authorID, content string) (*models.Post, error) {
	return s.create(ctx, &models.Post{UserID: authorID, Content: content})
}

// Reply answers parentID. Replies share the thread root of their parent.
func (s *PostService) Reply(ctx context.Context, authorID, parentID, content string) (*models.Post, error) {
	var parent models.Post
	if err := s.DB.WithContext(ctx).First(&parent, "id = ?", parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("load parent post: %w", err)
	}

	root := parent.ID
	if parent.RootPostID != nil && *parent.RootPostID != "" {
		root = *parent.RootPostID
	}
	return s.create(ctx, &models.Post{
		UserID:       authorID,
		Content:      content,
		ParentPostID: &parent.ID,
		RootPostID:   &root,
	})
}

// CreateAttachedPost publishes a post referring to another record, e.g. a trip.
func (s *PostService) CreateAttachedPost(ctx context.Context, authorID, content, attachmentType, attachmentID string) (*models.Post, error) {
	return s.create(ctx, &models.Post{
		UserID:         authorID,
		Content:        content,
		AttachmentType: attachmentType,
		AttachmentID:   &attachmentID,
	})
}

func (s *PostService) create(ctx context.Context, post *models.Post) (*models.Post, error) {
	if strings.TrimSpace(post.Content) == "" {
		return nil, ErrEmptyPost
	}
	post.ID = uuid.NewString()
	post.Status = models.PostStatusPublished
	if err := s.DB.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.handleMentions(ctx, post)
	return post, nil
}

// handleMentions runs after the post is stored; its failures are logged, never returned.
func (s *PostService) handleMentions(ctx context.Context, post *models.Post) {
	if s.mentions.Notifier == nil && s.mentions.Jobs == nil {
		return
	}
	names := MentionedNames(post.Content)
	if len(names) == 0 {
		return
	}

	var mentioned []models.User
	if err := s.DB.WithContext(ctx).Where("name IN ?", names).Find(&mentioned).Error; err != nil {
		s.log.Error("load mentioned users failed", zap.String("post_id", post.ID), zap.Error(err))
		return
	}
	if len(mentioned) == 0 {
		return
	}
	var author models.User
	if err := s.DB.WithContext(ctx).First(&author, "id = ?", post.UserID).Error; err != nil {
		s.log.Error("load post author failed", zap.String("post_id", post.ID), zap.Error(err))
		return
	}

	for i := range mentioned {
		user := &mentioned[i]
		if user.ID == author.ID {
			continue
		}
		if s.mentions.Notifier != nil {
			if err := s.mentions.Notifier.NotifyMention(ctx, user, &author, post); err != nil {
				s.log.Error("mention notification failed",
					zap.String("post_id", post.ID), zap.String("user_id", user.ID), zap.Error(err))
			}
		}
		if s.isBot(ctx, user) {
			s.dispatchBotReply(ctx, post, user)
		}
	}
}

func (s *PostService) isBot(ctx context.Context, user *models.User) bool {
	if user.IsBot {
		return true
	}
	if s.mentions.Bots == nil {
		return false
	}
	bot, err := s.mentions.Bots.ResolveBot(ctx)
	if err != nil {
		s.log.Warn("resolve bot failed", zap.Error(err))
		return false
	}
	return bot != nil && bot.ID == user.ID
}

func (s *PostService) dispatchBotReply(ctx context.Context, post *models.Post, bot *models.User) {
	if s.mentions.Jobs == nil || s.mentions.BotReplies == nil {
		return
	}
	job := &botReplyJob{service: s.mentions.BotReplies, post: *post, bot: *bot}
	if err := s.mentions.Jobs.Dispatch(ctx, job); err != nil {
		s.log.Error("dispatch bot reply failed", zap.String("post_id", post.ID), zap.Error(err))
	}
}

// Timeline lists published top-level posts, newest first.
func (s *PostService) Timeline(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var posts []models.Post
	if err := s.DB.WithContext(ctx).
		Preload("User").
		Where("status = ? AND parent_post_id IS NULL", models.PostStatusPublished).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	return posts, nil
}

// Thread returns every reply under rootID in posting order.
func (s *PostService) Thread(ctx context.Context, rootID string) ([]models.Post, error) {
	var posts []models.Post
	if err := s.DB.WithContext(ctx).
		Preload("User").
		Where("root_post_id = ?", rootID).
		Order("created_at ASC").
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return posts, nil
}
