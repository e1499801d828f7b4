package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"omoide-album/models"
	"omoide-album/workers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Name: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createBot(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Name: "クイックン", Email: "bot@example.com", IsBot: true}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createBadge(t *testing.T, db *gorm.DB, position int, name, conditionType string, params any) *models.Badge {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	b := &models.Badge{
		ID:             uuid.NewString(),
		Code:           uuid.NewString(),
		Name:           name,
		Description:    name + " description",
		IconPath:       "🏅",
		ConditionType:  conditionType,
		ConditionValue: datatypes.JSON(raw),
		Position:       position,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func createTrip(t *testing.T, db *gorm.DB, userID string, start time.Time, nights int, prefectures ...string) *models.Trip {
	t.Helper()
	trip := &models.Trip{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       "trip",
		StartDate:   start,
		Nights:      nights,
		Prefectures: datatypes.JSONSlice[string](prefectures),
	}
	require.NoError(t, db.Create(trip).Error)
	return trip
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// recordingDispatcher keeps jobs for the test to inspect or run later.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []workers.Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job workers.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.jobs))
	for _, j := range d.jobs {
		out = append(out, j.Name())
	}
	return out
}

func (d *recordingDispatcher) runAll(ctx context.Context) []error {
	d.mu.Lock()
	jobs := d.jobs
	d.jobs = nil
	d.mu.Unlock()

	var errs []error
	for _, j := range jobs {
		if err := j.Run(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// inlineDispatcher runs each job before Dispatch returns.
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(ctx context.Context, job workers.Job) error {
	return job.Run(ctx)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyBadgeEarned(_ context.Context, user *models.User, badge *models.Badge) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, user.ID+":"+badge.Name)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type staticBots struct {
	bot *models.User
	err error
}

func (b staticBots) ResolveBot(context.Context) (*models.User, error) { return b.bot, b.err }

type fakeTextGen struct {
	mu    sync.Mutex
	text  string
	err   error
	block bool
	calls int

	lastMessage string
	lastSystem  string
}

func (g *fakeTextGen) Generate(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.lastMessage, g.lastSystem = userMessage, systemPrompt
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.text, g.err
}

// noLock lets concurrent evaluations race so the unique index has to do the work.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type recordingTrigger struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingTrigger) Trigger(_ context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}
