package services

import (
	"context"
	"testing"

	"omoide-album/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOnThisDay(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "hanako")
	bot := createBot(t, db)
	posts := NewPostService(db)

	anniversary := createTrip(t, db, user.ID, date(2023, 3, 15), 1)
	anniversary.Title = "金沢旅行"
	require.NoError(t, db.Save(anniversary).Error)
	createTrip(t, db, user.ID, date(2023, 3, 16), 1)
	createTrip(t, db, user.ID, date(2025, 3, 15), 1) // today, not an anniversary

	svc := NewOnThisDayService(db, posts, staticBots{bot: bot}, zap.NewNop())
	posted, err := svc.Run(context.Background(), date(2025, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, posted)

	var got []models.Post
	require.NoError(t, db.Find(&got).Error)
	require.Len(t, got, 1)
	assert.Equal(t, bot.ID, got[0].UserID)
	assert.Equal(t, OnThisDayContent(2, "hanako", "金沢旅行"), got[0].Content)
	assert.Equal(t, "2年前の今日、hanakoさんは「金沢旅行」に行きました！\n懐かしい思い出です。 #思い出 #2年前", got[0].Content)
	require.NotNil(t, got[0].AttachmentID)
	assert.Equal(t, anniversary.ID, *got[0].AttachmentID)
}

func TestOnThisDayWithoutTrips(t *testing.T) {
	db := newTestDB(t)
	svc := NewOnThisDayService(db, NewPostService(db), staticBots{}, zap.NewNop())

	posted, err := svc.Run(context.Background(), date(2025, 3, 15))
	require.NoError(t, err)
	assert.Zero(t, posted)
}

func TestOnThisDayWithoutBot(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "hanako")
	createTrip(t, db, user.ID, date(2020, 3, 15), 1)
	svc := NewOnThisDayService(db, NewPostService(db), staticBots{}, zap.NewNop())

	posted, err := svc.Run(context.Background(), date(2025, 3, 15))
	require.NoError(t, err)
	assert.Zero(t, posted)
}
