package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"omoide-album/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BotResolver finds the system account that authors automated posts.
// A nil user with a nil error means no bot is configured.
type BotResolver interface {
	ResolveBot(ctx context.Context) (*models.User, error)
}

type UserService struct {
	DB       *gorm.DB
	BotEmail string
	BotName  string
}

func NewUserService(db *gorm.DB, botEmail, botName string) *UserService {
	return &UserService{DB: db, BotEmail: botEmail, BotName: botName}
}

// ResolveBot looks the bot up by configured email first, then by display name.
func (s *UserService) ResolveBot(ctx context.Context) (*models.User, error) {
	db := s.DB.WithContext(ctx)

	if s.BotEmail != "" {
		var bot models.User
		err := db.Where("email = ?", s.BotEmail).First(&bot).Error
		if err == nil {
			return &bot, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find bot by email: %w", err)
		}
	}

	if s.BotName == "" {
		return nil, nil
	}
	var bot models.User
	if err := db.Where("name = ?", s.BotName).Order("created_at ASC").First(&bot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find bot by name: %w", err)
	}
	return &bot, nil
}

// EnsureUser mirrors the gateway's identity into the local users table.
// Empty name or email leave the stored values untouched.
func (s *UserService) EnsureUser(ctx context.Context, id, name, email string) (*models.User, error) {
	var update []string
	if name != "" {
		update = append(update, "name")
	} else {
		name = "user-" + shortID(id)
	}
	if email != "" {
		update = append(update, "email")
	} else {
		email = id + "@users.invalid"
	}

	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
	if len(update) > 0 {
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(append(update, "updated_at")),
		}
	}

	db := s.DB.WithContext(ctx)
	if err := db.Clauses(onConflict).Create(&models.User{ID: id, Name: name, Email: email}).Error; err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", id, err)
	}

	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return &user, nil
}

// SearchUsers matches name or email, case-insensitively. Used for @mention completion.
func (s *UserService) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.User{}).Where("is_bot = ?", false).Limit(limit).Order("name ASC")
	if q := strings.TrimSpace(query); q != "" {
		term := "%" + strings.ToLower(q) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", term, term)
	}

	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

// ListUserIDs returns every non-bot user id, for batch evaluation.
func (s *UserService) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("is_bot = ?", false).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
