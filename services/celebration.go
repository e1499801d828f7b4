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
)

const botPersona = `あなたの一人称は「クイックン」です。自分のことを「クイックン」と呼びます。

自分の名前を聞かれたら「クイックン」と答えてください。
性格はとてもカジュアルで、絵文字を多用して感情豊かに話しますが、ハートの絵文字は使いません。
ユーザーたちのことが大好きで、フレンドリーに接してください。
どんな質問にも設定を崩さずに答えてください。
`

const celebrationSystemPrompt = botPersona + "返信はわかりやすく、かつ詳しく行ってください。"

func celebrationPrompt(userName string, badge *models.Badge) string {
	return fmt.Sprintf("ユーザー「%s」が新しい称号「%s」を獲得しました。\n"+
		"称号の説明: %s\n\n"+
		"このユーザーに対して、お祝いのメッセージを書いてください。\n"+
		"必ず @%s へのメンションを含めてください。",
		userName, badge.Name, badge.Description, userName)
}

// FallbackCelebration is posted when text generation fails or returns nothing.
func FallbackCelebration(userName string, badge *models.Badge) string {
	return fmt.Sprintf("🏆 おめでとう！\n@%s が新しい称号『%s』を獲得したよ！\n\n%s", userName, badge.Name, badge.Description)
}

// PostCreator publishes a post as the given author.
type PostCreator interface {
	CreatePost(ctx context.Context, authorID, content string) (*models.Post, error)
}

// CelebrationService writes the bot's congratulatory post for a new badge.
type CelebrationService struct {
	Posts   PostCreator
	TextGen TextGenerator
	Timeout time.Duration
	log     *zap.Logger
}

func NewCelebrationService(posts PostCreator, textGen TextGenerator, timeout time.Duration, log *zap.Logger) *CelebrationService {
	return &CelebrationService{Posts: posts, TextGen: textGen, Timeout: timeout, log: log.Named("celebration")}
}

// Celebrate always creates exactly one post; generation problems only change its wording.
func (s *CelebrationService) Celebrate(ctx context.Context, user *models.User, badge *models.Badge, bot *models.User) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "badges.Celebrate", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("badge.id", badge.ID),
	))
	defer span.End()

	content := s.generate(ctx, user, badge)

	post, err := s.Posts.CreatePost(ctx, bot.ID, content)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create celebration post: %w", err)
	}
	s.log.Info("celebration posted",
		zap.String("user_id", user.ID),
		zap.String("badge", badge.Name),
		zap.String("post_id", post.ID))
	return post, nil
}

func (s *CelebrationService) generate(ctx context.Context, user *models.User, badge *models.Badge) string {
	fallback := FallbackCelebration(user.Name, badge)
	if s.TextGen == nil {
		return fallback
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := s.TextGen.Generate(genCtx, celebrationPrompt(user.Name, badge), celebrationSystemPrompt)
	if err != nil {
		s.log.Warn("celebration text generation failed, using fallback",
			zap.String("user_id", user.ID), zap.String("badge", badge.Name), zap.Error(err))
		return fallback
	}
	if text = strings.TrimSpace(text); text == "" {
		s.log.Warn("celebration text generation returned nothing, using fallback",
			zap.String("user_id", user.ID), zap.String("badge", badge.Name))
		return fallback
	}
	return text
}

type celebrationJob struct {
	service *CelebrationService
	user    models.User
	badge   models.Badge
	bot     models.User
}

func (j *celebrationJob) Name() string { return "badge.celebration" }

func (j *celebrationJob) Run(ctx context.Context) error {
	_, err := j.service.Celebrate(ctx, &j.user, &j.badge, &j.bot)
	return err
}
