package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"omoide-album/conditions"
	"omoide-album/models"
	"omoide-album/workers"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBadgeNotFound = errors.New("badge not found")

// Dispatcher hands a job to background execution without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job workers.Job) error
}

type BadgeServiceOptions struct {
	Registry    *conditions.Registry
	History     *HistoryStore
	Jobs        Dispatcher
	Bots        BotResolver
	Notifier    Notifier
	Celebration *CelebrationService
	Locker      Locker
	Location    *time.Location
	Logger      *zap.Logger
}

type BadgeService struct {
	DB *gorm.DB

	registry    *conditions.Registry
	history     *HistoryStore
	jobs        Dispatcher
	bots        BotResolver
	notifier    Notifier
	celebration *CelebrationService
	locker      Locker
	loc         *time.Location
	now         func() time.Time
	log         *zap.Logger
}

func NewBadgeService(db *gorm.DB, opts BadgeServiceOptions) *BadgeService {
	s := &BadgeService{
		DB:          db,
		registry:    opts.Registry,
		history:     opts.History,
		jobs:        opts.Jobs,
		bots:        opts.Bots,
		notifier:    opts.Notifier,
		celebration: opts.Celebration,
		locker:      opts.Locker,
		loc:         opts.Location,
		now:         time.Now,
		log:         opts.Logger,
	}
	if s.registry == nil {
		s.registry = conditions.DefaultRegistry()
	}
	if s.history == nil {
		s.history = NewHistoryStore(db)
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("badges")
	return s
}

// Evaluate awards every not-yet-earned badge whose condition the user now meets and
// returns the newly awarded ones in catalogue order.
func (s *BadgeService) Evaluate(ctx context.Context, userID string) ([]models.Badge, error) {
	ctx, span := tracer.Start(ctx, "badges.Evaluate", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	unlock, err := s.locker.Lock(ctx, "badge-eval:"+userID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// the unique index still prevents double awards
		s.log.Warn("evaluating without lock", zap.String("user_id", userID), zap.Error(err))
	} else {
		defer unlock()
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	candidates, err := s.unearnedBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	awarded := make([]models.Badge, 0)
	if len(candidates) == 0 {
		return awarded, nil
	}

	history, err := s.history.Load(ctx, userID, s.now().In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}

	var errs []error
	for i := range candidates {
		badge := candidates[i]
		if !s.qualifies(history, &badge) {
			continue
		}
		fresh, err := s.Award(ctx, &user, &badge)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fresh {
			awarded = append(awarded, badge)
		}
	}

	span.SetAttributes(attribute.Int("badges.awarded", len(awarded)))
	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return awarded, err
	}
	return awarded, nil
}

func (s *BadgeService) unearnedBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	db := s.DB.WithContext(ctx)
	earned := db.Model(&models.UserBadge{}).Select("badge_id").Where("user_id = ?", userID)

	var badges []models.Badge
	if err := db.Where("id NOT IN (?)", earned).
		Order("position ASC").
		Order("created_at ASC").
		Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("load unearned badges: %w", err)
	}
	return badges, nil
}

// qualifies treats unknown condition types and faulty predicates as "not yet".
func (s *BadgeService) qualifies(h *conditions.History, badge *models.Badge) (ok bool) {
	predicate, found := s.registry.Resolve(badge.ConditionType)
	if !found {
		s.log.Warn("unknown badge condition type, skipping",
			zap.String("badge", badge.Name), zap.String("condition_type", badge.ConditionType))
		return false
	}
	if s.registry.IsReserved(badge.ConditionType) {
		s.log.Debug("reserved badge condition type", zap.String("badge", badge.Name))
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("badge predicate panicked",
				zap.String("badge", badge.Name), zap.Any("panic", r))
			ok = false
		}
	}()
	return predicate.Check(h, json.RawMessage(badge.ConditionValue))
}

// Award records the badge for the user and fires the notification and celebration jobs.
// It reports false when the user already had the badge, in which case nothing else happens.
func (s *BadgeService) Award(ctx context.Context, user *models.User, badge *models.Badge) (bool, error) {
	ctx, span := tracer.Start(ctx, "badges.Award", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("badge.id", badge.ID),
	))
	defer span.End()

	ub := models.UserBadge{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		BadgeID:    badge.ID,
		ObtainedAt: s.now(),
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&ub)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("award badge %s to %s: %w", badge.Name, user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Debug("badge already earned", zap.String("user_id", user.ID), zap.String("badge", badge.Name))
		return false, nil
	}

	s.log.Info("🎖️ badge awarded", zap.String("user_id", user.ID), zap.String("badge", badge.Name))
	s.celebrate(ctx, user, badge)
	s.notify(ctx, user, badge)
	return true, nil
}

func (s *BadgeService) celebrate(ctx context.Context, user *models.User, badge *models.Badge) {
	if s.bots == nil || s.celebration == nil || s.jobs == nil {
		return
	}
	bot, err := s.bots.ResolveBot(ctx)
	if err != nil {
		s.log.Error("resolve bot failed, skipping celebration", zap.String("badge", badge.Name), zap.Error(err))
		return
	}
	if bot == nil {
		s.log.Warn("no bot user configured, skipping celebration", zap.String("badge", badge.Name))
		return
	}
	job := &celebrationJob{service: s.celebration, user: *user, badge: *badge, bot: *bot}
	if err := s.jobs.Dispatch(context.WithoutCancel(ctx), job); err != nil {
		s.log.Error("dispatch celebration failed", zap.String("user_id", user.ID), zap.String("badge", badge.Name), zap.Error(err))
	}
}

func (s *BadgeService) notify(ctx context.Context, user *models.User, badge *models.Badge) {
	if s.notifier == nil || s.jobs == nil {
		return
	}
	job := &badgeNotificationJob{notifier: s.notifier, user: *user, badge: *badge}
	if err := s.jobs.Dispatch(context.WithoutCancel(ctx), job); err != nil {
		s.log.Error("dispatch badge notification failed", zap.String("user_id", user.ID), zap.String("badge", badge.Name), zap.Error(err))
	}
}

// AwardByID is the admin path for granting a badge by hand.
func (s *BadgeService) AwardByID(ctx context.Context, userID, badgeID string) (bool, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return false, fmt.Errorf("load user %s: %w", userID, err)
	}
	var badge models.Badge
	if err := s.DB.WithContext(ctx).First(&badge, "id = ?", badgeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrBadgeNotFound
		}
		return false, fmt.Errorf("load badge %s: %w", badgeID, err)
	}
	return s.Award(ctx, &user, &badge)
}

// Trigger queues an evaluation for userID, e.g. after a trip or post changes.
func (s *BadgeService) Trigger(ctx context.Context, userID string) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.Dispatch(context.WithoutCancel(ctx), &evaluateJob{service: s, userID: userID}); err != nil {
		s.log.Error("dispatch evaluation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

type evaluateJob struct {
	service *BadgeService
	userID  string
}

func (j *evaluateJob) Name() string { return "badge.evaluate" }

func (j *evaluateJob) Run(ctx context.Context) error {
	_, err := j.service.Evaluate(ctx, j.userID)
	return err
}

// Sweep evaluates every user with at most concurrency evaluations in flight.
// Per-user failures are logged and do not stop the sweep.
func (s *BadgeService) Sweep(ctx context.Context, userIDs []string, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	var total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range userIDs {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			awarded, err := s.Evaluate(gctx, id)
			total.Add(int64(len(awarded)))
			if err != nil {
				s.log.Error("sweep evaluation failed", zap.String("user_id", id), zap.Error(err))
			}
			return nil
		})
	}
	err := g.Wait()
	return int(total.Load()), err
}

// BadgeProgress is a catalogue entry seen from one user.
type BadgeProgress struct {
	models.Badge
	Earned     bool       `json:"earned"`
	ObtainedAt *time.Time `json:"obtained_at,omitempty"`
}

// ListCatalogue returns all badges in catalogue order with the user's earned state.
func (s *BadgeService) ListCatalogue(ctx context.Context, userID string) ([]BadgeProgress, error) {
	db := s.DB.WithContext(ctx)

	var badges []models.Badge
	if err := db.Order("position ASC").Order("created_at ASC").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	var earned []models.UserBadge
	if err := db.Where("user_id = ?", userID).Find(&earned).Error; err != nil {
		return nil, fmt.Errorf("load earned badges: %w", err)
	}
	obtained := make(map[string]time.Time, len(earned))
	for _, ub := range earned {
		obtained[ub.BadgeID] = ub.ObtainedAt
	}

	out := make([]BadgeProgress, 0, len(badges))
	for _, b := range badges {
		p := BadgeProgress{Badge: b}
		if at, ok := obtained[b.ID]; ok {
			at := at
			p.Earned = true
			p.ObtainedAt = &at
		}
		out = append(out, p)
	}
	return out, nil
}

// EarnedBadges lists the user's badges, most recent first.
func (s *BadgeService) EarnedBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var earned []models.UserBadge
	if err := s.DB.WithContext(ctx).
		Preload("Badge").
		Where("user_id = ?", userID).
		Order("obtained_at DESC").
		Find(&earned).Error; err != nil {
		return nil, fmt.Errorf("load earned badges: %w", err)
	}
	return earned, nil
}
