package services

import (
	"context"
	"fmt"
	"time"

	"omoide-album/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OnThisDayService reposts anniversaries of past trips to the timeline as the bot.
type OnThisDayService struct {
	DB    *gorm.DB
	Posts *PostService
	Bots  BotResolver
	log   *zap.Logger
}

func NewOnThisDayService(db *gorm.DB, posts *PostService, bots BotResolver, log *zap.Logger) *OnThisDayService {
	return &OnThisDayService{DB: db, Posts: posts, Bots: bots, log: log.Named("on_this_day")}
}

func OnThisDayContent(yearsAgo int, userName, title string) string {
	return fmt.Sprintf("%d年前の今日、%sさんは「%s」に行きました！\n懐かしい思い出です。 #思い出 #%d年前",
		yearsAgo, userName, title, yearsAgo)
}

// Run posts once per trip that started on today's month and day in an earlier year.
// It is safe to run more than once a day.
func (s *OnThisDayService) Run(ctx context.Context, today time.Time) (int, error) {
	trips, err := s.anniversaries(ctx, today)
	if err != nil {
		return 0, err
	}
	s.log.Info("found on-this-day trips", zap.Int("count", len(trips)))
	if len(trips) == 0 {
		return 0, nil
	}

	bot, err := s.Bots.ResolveBot(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve bot: %w", err)
	}
	if bot == nil {
		s.log.Warn("no bot user configured, skipping on-this-day posts")
		return 0, nil
	}

	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	posted := 0
	for _, trip := range trips {
		var exists int64
		if err := s.DB.WithContext(ctx).Model(&models.Post{}).
			Where("attachment_type = ? AND attachment_id = ?", models.AttachmentTrip, trip.ID).
			Where("created_at >= ? AND created_at < ?", dayStart, dayStart.AddDate(0, 0, 1)).
			Count(&exists).Error; err != nil {
			return posted, fmt.Errorf("check existing post: %w", err)
		}
		if exists > 0 {
			s.log.Debug("on-this-day post already exists", zap.String("trip_id", trip.ID))
			continue
		}

		name := ""
		if trip.User != nil {
			name = trip.User.Name
		}
		content := OnThisDayContent(today.Year()-trip.StartDate.Year(), name, trip.Title)
		if _, err := s.Posts.CreateAttachedPost(ctx, bot.ID, content, models.AttachmentTrip, trip.ID); err != nil {
			return posted, err
		}
		posted++
		s.log.Info("posted on-this-day trip", zap.String("trip_id", trip.ID), zap.String("title", trip.Title))
	}
	return posted, nil
}

// anniversaries finds trips whose start date shares today's month and day in a previous year.
func (s *OnThisDayService) anniversaries(ctx context.Context, today time.Time) ([]models.Trip, error) {
	db := s.DB.WithContext(ctx)

	var earliest models.Trip
	res := db.Order("start_date ASC").Limit(1).Find(&earliest)
	if res.Error != nil {
		return nil, fmt.Errorf("find earliest trip: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	cond := s.DB.Where("1 = 0")
	for year := earliest.StartDate.Year(); year < today.Year(); year++ {
		d := time.Date(year, today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		if d.Month() != today.Month() {
			continue // Feb 29 in a non-leap year
		}
		cond = cond.Or("start_date >= ? AND start_date < ?", d, d.AddDate(0, 0, 1))
	}

	var trips []models.Trip
	if err := db.Preload("User").Where(cond).Order("start_date ASC").Find(&trips).Error; err != nil {
		return nil, fmt.Errorf("find anniversaries: %w", err)
	}
	return trips, nil
}
