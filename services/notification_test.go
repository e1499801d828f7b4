package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"omoide-album/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func TestNotifyBadgeEarned(t *testing.T) {
	db := newTestDB(t)
	hub := NewNotificationHub(zap.NewNop())
	svc := NewNotificationService(db, hub, "/profile", zap.NewNop())

	user := createUser(t, db, "hanako")
	badge := &models.Badge{ID: "badge-1", Name: "温泉ソムリエ", Description: "温泉に5回", IconPath: "♨️"}

	msgs, cancel := hub.Subscribe(user.ID)
	defer cancel()

	require.NoError(t, svc.NotifyBadgeEarned(context.Background(), user, badge))

	var stored models.Notification
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	assert.Equal(t, models.NotificationBadgeEarned, stored.Type)

	var event BadgeAwardedEvent
	require.NoError(t, json.Unmarshal(stored.Data, &event))
	assert.Equal(t, BadgeAwardedEvent{
		BadgeID:   "badge-1",
		BadgeName: "温泉ソムリエ",
		BadgeIcon: "♨️",
		Message:   "新しい称号「温泉ソムリエ」を獲得しました！",
		URL:       "/profile",
		Icon:      "🏆",
	}, event)

	select {
	case msg := <-msgs:
		assert.Equal(t, stored.ID, msg.NotificationID)
		assert.Equal(t, "🏆 新しい称号を獲得！", msg.Title)
		assert.Equal(t, "「温泉ソムリエ」を獲得しました！\n温泉に5回", msg.Body)
	case <-time.After(time.Second):
		t.Fatal("push message not delivered")
	}
}

func TestNotifyBadgeEarnedRespectsPreference(t *testing.T) {
	db := newTestDB(t)
	hub := NewNotificationHub(zap.NewNop())
	svc := NewNotificationService(db, hub, "/profile", zap.NewNop())

	user := createUser(t, db, "taro")
	user.NotificationPreferences = datatypes.JSONMap{models.PreferenceBadgeEarned: false}
	require.NoError(t, db.Save(user).Error)

	msgs, cancel := hub.Subscribe(user.ID)
	defer cancel()

	require.NoError(t, svc.NotifyBadgeEarned(context.Background(), user, &models.Badge{ID: "b", Name: "n"}))

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "database channel is always used")

	select {
	case <-msgs:
		t.Fatal("push must be suppressed")
	default:
	}
}

func TestWantsNotification(t *testing.T) {
	tests := []struct {
		prefs datatypes.JSONMap
		want  bool
	}{
		{nil, true},
		{datatypes.JSONMap{}, true},
		{datatypes.JSONMap{"badge_earned": true}, true},
		{datatypes.JSONMap{"badge_earned": false}, false},
		{datatypes.JSONMap{"badge_earned": float64(0)}, false},
		{datatypes.JSONMap{"other": false}, true},
	}
	for _, tt := range tests {
		u := &models.User{NotificationPreferences: tt.prefs}
		assert.Equal(t, tt.want, u.WantsNotification(models.PreferenceBadgeEarned), "%v", tt.prefs)
	}
}

func TestNotificationHub(t *testing.T) {
	hub := NewNotificationHub(zap.NewNop())

	a, cancelA := hub.Subscribe("u1")
	b, cancelB := hub.Subscribe("u1")
	_, cancelOther := hub.Subscribe("u2")
	defer cancelOther()

	assert.Equal(t, 2, hub.Publish("u1", PushMessage{Title: "hi"}))
	assert.Equal(t, "hi", (<-a).Title)
	assert.Equal(t, "hi", (<-b).Title)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, hub.Publish("u1", PushMessage{}))

	cancelB()
	assert.Equal(t, 0, hub.Publish("u1", PushMessage{}))

	for i := 0; i < 20; i++ {
		hub.Publish("u2", PushMessage{})
	}
}
