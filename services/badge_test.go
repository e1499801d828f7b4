package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"omoide-album/conditions"
	"omoide-album/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var evalNow = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

type badgeFixture struct {
	db       *gorm.DB
	svc      *BadgeService
	jobs     *recordingDispatcher
	notifier *fakeNotifier
	user     *models.User
	bot      *models.User
}

func newBadgeFixture(t *testing.T) *badgeFixture {
	t.Helper()
	db := newTestDB(t)
	f := &badgeFixture{
		db:       db,
		jobs:     &recordingDispatcher{},
		notifier: &fakeNotifier{},
		user:     createUser(t, db, "hanako"),
		bot:      createBot(t, db),
	}
	f.svc = NewBadgeService(db, BadgeServiceOptions{
		Registry:    conditions.DefaultRegistry(),
		Jobs:        f.jobs,
		Bots:        staticBots{bot: f.bot},
		Notifier:    f.notifier,
		Celebration: NewCelebrationService(NewPostService(db), &fakeTextGen{err: errors.New("offline")}, time.Second, zap.NewNop()),
		Logger:      zap.NewNop(),
	})
	f.svc.now = func() time.Time { return evalNow }
	return f
}

func (f *badgeFixture) earnedCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.UserBadge{}).Where("user_id = ?", f.user.ID).Count(&n).Error)
	return n
}

func badgeNames(badges []models.Badge) []string {
	out := make([]string, 0, len(badges))
	for _, b := range badges {
		out = append(out, b.Name)
	}
	return out
}

func TestEvaluateAwardsInCatalogueOrder(t *testing.T) {
	f := newBadgeFixture(t)
	createBadge(t, f.db, 3, "third", "manual_trip_count", map[string]int{"count": 1})
	createBadge(t, f.db, 1, "first", "short_trip_count", map[string]int{"nights": 1, "count": 1})
	createBadge(t, f.db, 2, "unreached", "manual_trip_count", map[string]int{"count": 5})
	createTrip(t, f.db, f.user.ID, date(2024, 5, 1), 1, "石川県")

	awarded, err := f.svc.Evaluate(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, badgeNames(awarded))

	var ub models.UserBadge
	require.NoError(t, f.db.Where("user_id = ?", f.user.ID).Order("obtained_at").First(&ub).Error)
	assert.True(t, ub.ObtainedAt.Equal(evalNow))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	f := newBadgeFixture(t)
	createBadge(t, f.db, 1, "traveller", "manual_trip_count", map[string]int{"count": 1})
	createTrip(t, f.db, f.user.ID, date(2024, 5, 1), 2)

	first, err := f.svc.Evaluate(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.svc.Evaluate(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.NotNil(t, second)
	assert.Equal(t, int64(1), f.earnedCount(t))
	assert.Equal(t, []string{"badge.celebration", "badge.notification"}, f.jobs.names())
}

func TestEvaluateNoQualifyingBadges(t *testing.T) {
	f := newBadgeFixture(t)
	createBadge(t, f.db, 1, "far away", "manual_trip_count", map[string]int{"count": 10})

	awarded, err := f.svc.Evaluate(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, awarded)
	assert.Empty(t, f.jobs.names())
}

func TestEvaluateSkipsUnknownAndReservedTypes(t *testing.T) {
	f := newBadgeFixture(t)
	createBadge(t, f.db, 1, "mystery", "visited_the_moon", map[string]int{"count": 0})
	createBadge(t, f.db, 2, "likes", "reaction_given_count", map[string]any{"reaction": "like", "count": 0})
	createBadge(t, f.db, 3, "broken", "manual_trip_count", map[string]string{"count": "lots"})
	createBadge(t, f.db, 4, "anyone", "manual_trip_count", map[string]int{"count": 0})

	awarded, err := f.svc.Evaluate(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"anyone"}, badgeNames(awarded))
}

func TestEvaluateUnknownUser(t *testing.T) {
	f := newBadgeFixture(t)
	_, err := f.svc.Evaluate(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAwardSideEffects(t *testing.T) {
	f := newBadgeFixture(t)
	badge := createBadge(t, f.db, 1, "北陸マスター", "region_conquest", map[string]any{"prefectures": []string{"富山県"}})

	fresh, err := f.svc.Award(context.Background(), f.user, badge)
	require.NoError(t, err)
	assert.True(t, fresh)
	require.Equal(t, []string{"badge.celebration", "badge.notification"}, f.jobs.names())

	require.Empty(t, f.jobs.runAll(context.Background()))
	assert.Equal(t, 1, f.notifier.count())

	var posts []models.Post
	require.NoError(t, f.db.Find(&posts).Error)
	require.Len(t, posts, 1)
	assert.Equal(t, f.bot.ID, posts[0].UserID)
	assert.Contains(t, posts[0].Content, "@hanako")
	assert.Contains(t, posts[0].Content, "北陸マスター")

	again, err := f.svc.Award(context.Background(), f.user, badge)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Empty(t, f.jobs.names(), "duplicate award must not fire side effects")
	assert.Equal(t, int64(1), f.earnedCount(t))
}

func TestAwardWithoutBotStillNotifies(t *testing.T) {
	f := newBadgeFixture(t)
	f.svc.bots = staticBots{}
	badge := createBadge(t, f.db, 1, "solo", "manual_trip_count", map[string]int{"count": 0})

	fresh, err := f.svc.Award(context.Background(), f.user, badge)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, []string{"badge.notification"}, f.jobs.names())

	f.svc.bots = staticBots{err: errors.New("db down")}
	other := createBadge(t, f.db, 2, "solo again", "manual_trip_count", map[string]int{"count": 0})
	_, err = f.svc.Award(context.Background(), f.user, other)
	require.NoError(t, err)
	assert.Equal(t, []string{"badge.notification", "badge.notification"}, f.jobs.names())
}

func TestConcurrentEvaluateAwardsOnce(t *testing.T) {
	for _, tc := range []struct {
		name   string
		locker Locker
	}{
		{"local lock", NewLocalLocker()},
		{"unique index only", noLock{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			user := createUser(t, db, "taro")
			createBadge(t, db, 1, "first trip", "manual_trip_count", map[string]int{"count": 1})
			createTrip(t, db, user.ID, date(2024, 1, 1), 1)

			notifier := &fakeNotifier{}
			svc := NewBadgeService(db, BadgeServiceOptions{
				Jobs:     inlineDispatcher{},
				Notifier: notifier,
				Locker:   tc.locker,
				Logger:   zap.NewNop(),
			})

			const callers = 4
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				awarded int
			)
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					got, err := svc.Evaluate(context.Background(), user.ID)
					assert.NoError(t, err)
					mu.Lock()
					awarded += len(got)
					mu.Unlock()
				}()
			}
			close(start)
			wg.Wait()

			var rows int64
			require.NoError(t, db.Model(&models.UserBadge{}).Count(&rows).Error)
			assert.Equal(t, int64(1), rows)
			assert.Equal(t, 1, awarded)
			assert.Equal(t, 1, notifier.count())
		})
	}
}

func TestAwardByID(t *testing.T) {
	f := newBadgeFixture(t)
	badge := createBadge(t, f.db, 1, "manual", "manual_trip_count", map[string]int{"count": 99})

	fresh, err := f.svc.AwardByID(context.Background(), f.user.ID, badge.ID)
	require.NoError(t, err)
	assert.True(t, fresh)

	_, err = f.svc.AwardByID(context.Background(), f.user.ID, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrBadgeNotFound)
}

func TestTriggerQueuesEvaluation(t *testing.T) {
	f := newBadgeFixture(t)
	createBadge(t, f.db, 1, "first trip", "manual_trip_count", map[string]int{"count": 1})
	createTrip(t, f.db, f.user.ID, date(2024, 1, 1), 1)

	f.svc.Trigger(context.Background(), f.user.ID)
	require.Equal(t, []string{"badge.evaluate"}, f.jobs.names())
	require.Empty(t, f.jobs.runAll(context.Background()))

	assert.Equal(t, int64(1), f.earnedCount(t))
}

func TestSweep(t *testing.T) {
	f := newBadgeFixture(t)
	other := createUser(t, f.db, "jiro")
	createBadge(t, f.db, 1, "first trip", "manual_trip_count", map[string]int{"count": 1})
	createTrip(t, f.db, f.user.ID, date(2024, 1, 1), 1)
	createTrip(t, f.db, other.ID, date(2024, 2, 1), 1)

	users := NewUserService(f.db, "", "")
	ids, err := users.ListUserIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2, "bots are excluded")

	awarded, err := f.svc.Sweep(context.Background(), ids, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, awarded)

	awarded, err = f.svc.Sweep(context.Background(), ids, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, awarded)
}

func TestListCatalogue(t *testing.T) {
	f := newBadgeFixture(t)
	earned := createBadge(t, f.db, 1, "earned", "manual_trip_count", map[string]int{"count": 0})
	createBadge(t, f.db, 2, "locked", "manual_trip_count", map[string]int{"count": 3})

	_, err := f.svc.Award(context.Background(), f.user, earned)
	require.NoError(t, err)

	list, err := f.svc.ListCatalogue(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Earned)
	require.NotNil(t, list[0].ObtainedAt)
	assert.False(t, list[1].Earned)
	assert.Nil(t, list[1].ObtainedAt)

	mine, err := f.svc.EarnedBadges(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Badge)
	assert.Equal(t, "earned", mine[0].Badge.Name)
}

func TestMonthlyBadgesUseEvaluationClock(t *testing.T) {
	f := newBadgeFixture(t)
	createBadge(t, f.db, 1, "フットワーク軽夫婦", "monthly_trip_count", map[string]int{"count": 2})
	createTrip(t, f.db, f.user.ID, date(2025, 3, 1), 1)
	createTrip(t, f.db, f.user.ID, date(2025, 3, 10), 1)

	f.svc.now = func() time.Time { return date(2025, 4, 1) }
	awarded, err := f.svc.Evaluate(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, awarded)

	f.svc.now = func() time.Time { return evalNow }
	awarded, err = f.svc.Evaluate(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, awarded, 1)
}
