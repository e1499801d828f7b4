package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"omoide-album/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const botReplySystemPrompt = botPersona + "返信はわかりやすく、かつ感情豊かに行ってください。\n\n" +
	"以下はこれまでの会話の履歴です。この文脈を踏まえて返信してください。\n履歴:\n"

// BotReplyService answers posts that mention the bot, in the bot's voice.
type BotReplyService struct {
	DB      *gorm.DB
	Posts   *PostService
	TextGen TextGenerator
	Timeout time.Duration
	log     *zap.Logger
}

func NewBotReplyService(db *gorm.DB, posts *PostService, textGen TextGenerator, timeout time.Duration, log *zap.Logger) *BotReplyService {
	return &BotReplyService{DB: db, Posts: posts, TextGen: textGen, Timeout: timeout, log: log.Named("bot_reply")}
}

// Reply posts the bot's answer under post. Without generated text nothing is posted and the result is nil.
func (s *BotReplyService) Reply(ctx context.Context, post *models.Post, bot *models.User) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "posts.BotReply", trace.WithAttributes(
		attribute.String("post.id", post.ID),
	))
	defer span.End()

	if s.TextGen == nil {
		s.log.Warn("no text generator, bot reply skipped", zap.String("post_id", post.ID))
		return nil, nil
	}

	var author models.User
	if err := s.DB.WithContext(ctx).First(&author, "id = ?", post.UserID).Error; err != nil {
		return nil, fmt.Errorf("load post author: %w", err)
	}
	history, err := s.history(ctx, post, bot)
	if err != nil {
		return nil, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	message := fmt.Sprintf("ユーザー「%s」からのメッセージ: %s", author.Name, post.Content)
	text, err := s.TextGen.Generate(genCtx, message, botReplySystemPrompt+history)
	if err != nil {
		s.log.Error("bot reply generation failed", zap.String("post_id", post.ID), zap.Error(err))
		return nil, nil
	}
	if text = strings.TrimSpace(text); text == "" {
		s.log.Warn("bot reply generation returned nothing", zap.String("post_id", post.ID))
		return nil, nil
	}

	reply, err := s.Posts.Reply(ctx, bot.ID, post.ID, fmt.Sprintf("@%s\n%s", author.Name, text))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create bot reply: %w", err)
	}
	s.log.Info("bot replied", zap.String("post_id", post.ID), zap.String("reply_id", reply.ID))
	return reply, nil
}

// history renders the whole thread of post, root first, one line per post.
func (s *BotReplyService) history(ctx context.Context, post *models.Post, bot *models.User) (string, error) {
	root := post.ID
	if post.RootPostID != nil && *post.RootPostID != "" {
		root = *post.RootPostID
	}

	var thread []models.Post
	if err := s.DB.WithContext(ctx).
		Preload("User").
		Where("root_post_id = ? OR id = ?", root, root).
		Order("created_at ASC").
		Find(&thread).Error; err != nil {
		return "", fmt.Errorf("load thread: %w", err)
	}

	var b strings.Builder
	for _, p := range thread {
		switch {
		case p.UserID == bot.ID:
			fmt.Fprintf(&b, "%s: %s\n", bot.Name, p.Content)
		case p.User != nil:
			fmt.Fprintf(&b, "ユーザー「%s」: %s\n", p.User.Name, p.Content)
		default:
			fmt.Fprintf(&b, "ユーザー: %s\n", p.Content)
		}
	}
	return b.String(), nil
}

type botReplyJob struct {
	service *BotReplyService
	post    models.Post
	bot     models.User
}

func (j *botReplyJob) Name() string { return "post.bot_reply" }

func (j *botReplyJob) Run(ctx context.Context) error {
	_, err := j.service.Reply(ctx, &j.post, &j.bot)
	return err
}
