package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"omoide-album/models"
	"omoide-album/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTripNotFound  = errors.New("trip not found")
	ErrStorageAbsent = errors.New("photo storage not configured")

	ErrInvalidTripDates = errors.New("invalid trip dates")
)

// ObjectStorage stores uploaded files and returns their public URL.
type ObjectStorage interface {
	Upload(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
}

// EvaluationTrigger schedules a badge evaluation for a user.
type EvaluationTrigger interface {
	Trigger(ctx context.Context, userID string)
}

type TripInput struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Description string   `json:"description"`
	Prefectures []string `json:"prefectures" validate:"dive,required"`
	StartDate   string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Nights      *int     `json:"nights" validate:"omitempty,gte=0"`
	Tags        []string `json:"tags" validate:"dive,required,max=50"`
}

// TripNotifier tells the other members that a trip changed.
type TripNotifier interface {
	NotifyTripUpdated(ctx context.Context, actor *models.User, trip *models.Trip, message, icon string) (int, error)
}

type TripService struct {
	DB       *gorm.DB
	Storage  ObjectStorage
	Badges   EvaluationTrigger
	Notifier TripNotifier
	log      *zap.Logger
}

func NewTripService(db *gorm.DB, storage ObjectStorage, badges EvaluationTrigger) *TripService {
	return &TripService{DB: db, Storage: storage, Badges: badges, log: zap.NewNop()}
}

// WithNotifier makes photo uploads notify the other members.
func (s *TripService) WithNotifier(notifier TripNotifier, log *zap.Logger) *TripService {
	s.Notifier = notifier
	if log != nil {
		s.log = log.Named("trips")
	}
	return s
}

// NormalizeName folds compatibility characters (full-width digits, half-width kana) and trims.
func NormalizeName(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func normalizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		n := NormalizeName(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func (in TripInput) dates() (time.Time, *time.Time, error) {
	start, err := time.Parse("2006-01-02", in.StartDate)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: start_date: %v", ErrInvalidTripDates, err)
	}
	if in.EndDate == "" {
		return start, nil, nil
	}
	end, err := time.Parse("2006-01-02", in.EndDate)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: end_date: %v", ErrInvalidTripDates, err)
	}
	if end.Before(start) {
		return time.Time{}, nil, fmt.Errorf("%w: end_date is before start_date", ErrInvalidTripDates)
	}
	return start, &end, nil
}

// nights prefers the explicit value and otherwise derives it from the date range.
func (in TripInput) nights(start time.Time, end *time.Time) int {
	if in.Nights != nil {
		return *in.Nights
	}
	if end == nil {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}

func (s *TripService) CreateTrip(ctx context.Context, userID string, in TripInput) (*models.Trip, error) {
	start, end, err := in.dates()
	if err != nil {
		return nil, err
	}

	trip := &models.Trip{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Prefectures: normalizeNames(in.Prefectures),
		StartDate:   start,
		EndDate:     end,
		Nights:      in.nights(start, end),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := s.ensureTags(tx, in.Tags)
		if err != nil {
			return err
		}
		trip.Tags = tags
		return tx.Omit("Tags.*").Create(trip).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	s.trigger(ctx, userID)
	return trip, nil
}

func (s *TripService) UpdateTrip(ctx context.Context, userID, tripID string, in TripInput) (*models.Trip, error) {
	start, end, err := in.dates()
	if err != nil {
		return nil, err
	}

	trip, err := s.ownedTrip(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trip.Title = strings.TrimSpace(in.Title)
		trip.Description = in.Description
		trip.Prefectures = normalizeNames(in.Prefectures)
		trip.StartDate = start
		trip.EndDate = end
		trip.Nights = in.nights(start, end)
		if err := tx.Omit("Tags", "Photos").Save(trip).Error; err != nil {
			return err
		}
		tags, err := s.ensureTags(tx, in.Tags)
		if err != nil {
			return err
		}
		if err := tx.Model(trip).Omit("Tags.*").Association("Tags").Replace(tags); err != nil {
			return err
		}
		trip.Tags = tags
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update trip: %w", err)
	}

	s.trigger(ctx, userID)
	return trip, nil
}

func (s *TripService) DeleteTrip(ctx context.Context, userID, tripID string) error {
	trip, err := s.ownedTrip(ctx, userID, tripID)
	if err != nil {
		return err
	}
	// photos go with the trip through the foreign key; tag links do not
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(trip).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("unlink trip tags: %w", err)
		}
		if err := tx.Delete(trip).Error; err != nil {
			return fmt.Errorf("delete trip: %w", err)
		}
		return nil
	})
}

func (s *TripService) ListTrips(ctx context.Context, userID string) ([]models.Trip, error) {
	var trips []models.Trip
	if err := s.DB.WithContext(ctx).
		Preload("Tags").
		Where("user_id = ?", userID).
		Order("start_date DESC").
		Find(&trips).Error; err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return trips, nil
}

// AddPhoto uploads the file and attaches it to the trip.
func (s *TripService) AddPhoto(ctx context.Context, userID, tripID string, fileHeader *multipart.FileHeader, caption string) (*models.Photo, error) {
	if s.Storage == nil {
		return nil, ErrStorageAbsent
	}
	trip, err := s.ownedTrip(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}

	key := utils.PhotoKey(trip.ID, fileHeader.Filename)
	url, err := s.Storage.Upload(ctx, fileHeader, key)
	if err != nil {
		return nil, err
	}

	photo := &models.Photo{
		ID:      uuid.NewString(),
		TripID:  trip.ID,
		Path:    key,
		URL:     url,
		Caption: caption,
	}
	if err := s.DB.WithContext(ctx).Create(photo).Error; err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	s.trigger(ctx, userID)
	s.notifyPhotoAdded(ctx, userID, trip)
	return photo, nil
}

// notifyPhotoAdded is best effort; the photo is already stored.
func (s *TripService) notifyPhotoAdded(ctx context.Context, userID string, trip *models.Trip) {
	if s.Notifier == nil {
		return
	}
	var actor models.User
	if err := s.DB.WithContext(ctx).First(&actor, "id = ?", userID).Error; err != nil {
		s.log.Error("load uploader failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	message := fmt.Sprintf("%sさんが写真をアップロードしました", actor.Name)
	if _, err := s.Notifier.NotifyTripUpdated(ctx, &actor, trip, message, "📷"); err != nil {
		s.log.Error("trip update notification failed", zap.String("trip_id", trip.ID), zap.Error(err))
	}
}

func (s *TripService) ownedTrip(ctx context.Context, userID, tripID string) (*models.Trip, error) {
	var trip models.Trip
	if err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", tripID, userID).First(&trip).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("load trip: %w", err)
	}
	return &trip, nil
}

// ensureTags returns tag rows for names, creating the missing ones.
func (s *TripService) ensureTags(tx *gorm.DB, names []string) ([]models.Tag, error) {
	names = normalizeNames(names)
	if len(names) == 0 {
		return []models.Tag{}, nil
	}

	rows := make([]models.Tag, 0, len(names))
	for _, n := range names {
		rows = append(rows, models.Tag{ID: uuid.NewString(), Name: n})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("create tags: %w", err)
	}

	var tags []models.Tag
	if err := tx.Where("name IN ?", names).Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	return tags, nil
}

func (s *TripService) trigger(ctx context.Context, userID string) {
	if s.Badges != nil {
		s.Badges.Trigger(ctx, userID)
	}
}
