package services

import (
	"context"
	"errors"
	"fmt"

	"omoide-album/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSuggestionNotFound = errors.New("suggestion not found")

type SuggestionService struct {
	DB     *gorm.DB
	Badges EvaluationTrigger
}

func NewSuggestionService(db *gorm.DB, badges EvaluationTrigger) *SuggestionService {
	return &SuggestionService{DB: db, Badges: badges}
}

func (s *SuggestionService) Create(ctx context.Context, userID, title, content string, source models.SuggestionSource) (*models.Suggestion, error) {
	if source == "" {
		source = models.SuggestionSourceManual
	}
	sg := &models.Suggestion{ID: uuid.NewString(), UserID: userID, Title: title, Content: content, Source: source}
	if err := s.DB.WithContext(ctx).Create(sg).Error; err != nil {
		return nil, fmt.Errorf("create suggestion: %w", err)
	}
	return sg, nil
}

func (s *SuggestionService) List(ctx context.Context, userID string) ([]models.Suggestion, error) {
	var out []models.Suggestion
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return out, nil
}

// SetVisited flips the visited flag and re-evaluates badges when it changed.
func (s *SuggestionService) SetVisited(ctx context.Context, userID, id string, visited bool) (*models.Suggestion, error) {
	var sg models.Suggestion
	if err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&sg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("load suggestion: %w", err)
	}
	if sg.IsVisited == visited {
		return &sg, nil
	}
	if err := s.DB.WithContext(ctx).Model(&sg).Update("is_visited", visited).Error; err != nil {
		return nil, fmt.Errorf("update suggestion: %w", err)
	}
	sg.IsVisited = visited
	if s.Badges != nil {
		s.Badges.Trigger(ctx, userID)
	}
	return &sg, nil
}
