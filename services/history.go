package services

import (
	"context"
	"fmt"
	"time"

	"omoide-album/conditions"
	"omoide-album/models"

	"gorm.io/gorm"
)

// HistoryStore loads the activity snapshot badge predicates run against.
type HistoryStore struct {
	DB *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{DB: db}
}

func (s *HistoryStore) Load(ctx context.Context, userID string, asOf time.Time) (*conditions.History, error) {
	db := s.DB.WithContext(ctx)
	h := &conditions.History{UserID: userID, AsOf: asOf}

	var trips []models.Trip
	if err := db.Preload("Tags").
		Where("user_id = ?", userID).
		Order("start_date ASC").
		Find(&trips).Error; err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}

	type photoTotal struct {
		TripID string
		Total  int
	}
	var totals []photoTotal
	if err := db.Model(&models.Photo{}).
		Select("trip_id, COUNT(*) AS total").
		Where("trip_id IN (?)", db.Model(&models.Trip{}).Select("id").Where("user_id = ?", userID)).
		Group("trip_id").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("count photos: %w", err)
	}
	photos := make(map[string]int, len(totals))
	for _, t := range totals {
		photos[t.TripID] = t.Total
	}

	h.Trips = make([]conditions.TripRecord, 0, len(trips))
	for _, t := range trips {
		rec := conditions.TripRecord{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Prefectures: []string(t.Prefectures),
			StartDate:   t.StartDate,
			Nights:      t.Nights,
			PhotoCount:  photos[t.ID],
		}
		for _, tag := range t.Tags {
			rec.Tags = append(rec.Tags, tag.Name)
		}
		h.Trips = append(h.Trips, rec)
	}

	var posts []models.Post
	if err := db.Select("id", "parent_post_id").Where("user_id = ?", userID).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	for _, p := range posts {
		h.Posts = append(h.Posts, conditions.PostRecord{ID: p.ID, IsReply: p.IsReply()})
	}

	var suggestions []models.Suggestion
	if err := db.Select("source", "is_visited").Where("user_id = ?", userID).Find(&suggestions).Error; err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	for _, sg := range suggestions {
		h.Suggestions = append(h.Suggestions, conditions.SuggestionRecord{Source: string(sg.Source), Visited: sg.IsVisited})
	}

	return h, nil
}
