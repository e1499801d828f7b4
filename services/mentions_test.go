package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"omoide-album/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMentionedNames(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"none", "箱根に行ってきた", nil},
		{"ascii space", "@hanako さんと一緒", []string{"hanako"}},
		{"ideographic space", "@はなこ　ありがとう", []string{"はなこ"}},
		{"newline", "@クイックン\n教えて", []string{"クイックン"}},
		{"duplicates", "@a @b @a", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MentionedNames(tt.content))
		})
	}
}

func newMentionPosts(t *testing.T, textGen TextGenerator) (*PostService, *NotificationHub, *recordingDispatcher) {
	t.Helper()
	db := newTestDB(t)
	hub := NewNotificationHub(zap.NewNop())
	jobs := &recordingDispatcher{}
	posts := NewPostService(db)
	posts.WithMentions(MentionOptions{
		Notifier:   NewNotificationService(db, hub, "/profile", zap.NewNop()),
		Jobs:       jobs,
		BotReplies: NewBotReplyService(db, posts, textGen, time.Second, zap.NewNop()),
		Logger:     zap.NewNop(),
	})
	return posts, hub, jobs
}

func TestMentionCreatesNotification(t *testing.T) {
	posts, hub, jobs := newMentionPosts(t, nil)
	db := posts.DB
	ctx := context.Background()
	taro := createUser(t, db, "taro")
	hanako := createUser(t, db, "hanako")

	msgs, cancel := hub.Subscribe(hanako.ID)
	defer cancel()

	post, err := posts.CreatePost(ctx, taro.ID, "@hanako @hanako @taro @nobody 温泉行こう")
	require.NoError(t, err)

	var stored []models.Notification
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 1, "one notification, self-mention skipped")
	assert.Equal(t, hanako.ID, stored[0].UserID)
	assert.Equal(t, models.NotificationPostInteracted, stored[0].Type)

	var event PostInteractedEvent
	require.NoError(t, json.Unmarshal(stored[0].Data, &event))
	assert.Equal(t, PostInteractedEvent{
		PostID:      post.ID,
		Interaction: "mention",
		ActorID:     taro.ID,
		ActorName:   "taro",
		Message:     "taroさんがあなたをメンションしました",
		URL:         "/timeline/" + post.ID,
		Icon:        "👋",
	}, event)

	select {
	case msg := <-msgs:
		assert.Equal(t, "新着通知", msg.Title)
		assert.Equal(t, "taroさんがメンションしました", msg.Body)
	case <-time.After(time.Second):
		t.Fatal("push message not delivered")
	}
	assert.Empty(t, jobs.names(), "no bot mentioned")
}

func TestBotMentionReplies(t *testing.T) {
	gen := &fakeTextGen{text: "もちろん！🎉"}
	posts, _, jobs := newMentionPosts(t, gen)
	db := posts.DB
	ctx := context.Background()
	hanako := createUser(t, db, "hanako")
	bot := createBot(t, db)

	root, err := posts.CreatePost(ctx, hanako.ID, "金沢に行ってきた")
	require.NoError(t, err)
	asked, err := posts.Reply(ctx, hanako.ID, root.ID, "@クイックン おすすめは？")
	require.NoError(t, err)
	require.Equal(t, []string{"post.bot_reply"}, jobs.names())

	require.Empty(t, jobs.runAll(ctx))

	var replies []models.Post
	require.NoError(t, db.Where("user_id = ?", bot.ID).Find(&replies).Error)
	require.Len(t, replies, 1)
	reply := replies[0]
	assert.Equal(t, "@hanako\nもちろん！🎉", reply.Content)
	require.NotNil(t, reply.ParentPostID)
	assert.Equal(t, asked.ID, *reply.ParentPostID)
	require.NotNil(t, reply.RootPostID)
	assert.Equal(t, root.ID, *reply.RootPostID)

	assert.Equal(t, "ユーザー「hanako」からのメッセージ: @クイックン おすすめは？", gen.lastMessage)
	assert.Contains(t, gen.lastSystem, "返信はわかりやすく、かつ感情豊かに行ってください。")
	assert.Contains(t, gen.lastSystem, "ユーザー「hanako」: 金沢に行ってきた\nユーザー「hanako」: @クイックン おすすめは？\n")

	var mentions int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", hanako.ID, models.NotificationPostInteracted).
		Count(&mentions).Error)
	assert.Equal(t, int64(1), mentions, "the reply mentions its asker")
	assert.Empty(t, jobs.names(), "the reply does not trigger another reply")
}

func TestBotMentionGenerationFailurePostsNothing(t *testing.T) {
	tests := map[string]*fakeTextGen{
		"error": {err: errors.New("rate limited")},
		"empty": {text: "  "},
	}
	for name, gen := range tests {
		t.Run(name, func(t *testing.T) {
			posts, _, jobs := newMentionPosts(t, gen)
			db := posts.DB
			ctx := context.Background()
			hanako := createUser(t, db, "hanako")
			bot := createBot(t, db)

			_, err := posts.CreatePost(ctx, hanako.ID, "@クイックン こんにちは")
			require.NoError(t, err)
			require.Empty(t, jobs.runAll(ctx))
			assert.Equal(t, 1, gen.calls)

			var count int64
			require.NoError(t, db.Model(&models.Post{}).Where("user_id = ?", bot.ID).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestBotResolvedByResolver(t *testing.T) {
	db := newTestDB(t)
	jobs := &recordingDispatcher{}
	posts := NewPostService(db)
	bot := createUser(t, db, "クイックン")
	posts.WithMentions(MentionOptions{
		Bots:       staticBots{bot: bot},
		Jobs:       jobs,
		BotReplies: NewBotReplyService(db, posts, &fakeTextGen{text: "hi"}, time.Second, zap.NewNop()),
	})
	hanako := createUser(t, db, "hanako")

	_, err := posts.CreatePost(context.Background(), hanako.ID, "@クイックン やあ")
	require.NoError(t, err)
	assert.Equal(t, []string{"post.bot_reply"}, jobs.names())
}
