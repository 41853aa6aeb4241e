package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/heofen/botgram/internal/database"
	"github.com/heofen/botgram/internal/media"
	"github.com/heofen/botgram/internal/notify"
)

type fakeDownloader struct {
	calls atomic.Int64
}

func (d *fakeDownloader) Download(_ context.Context, fileID string, dst io.Writer) error {
	d.calls.Add(1)
	_, err := dst.Write([]byte("data:" + fileID))
	return err
}

type fakeTransport struct {
	sent     []*bot.SendMessageParams
	sendResp *models.Message
	photos   *models.UserProfilePhotos
	chatInfo *models.ChatFullInfo
}

func (t *fakeTransport) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	t.sent = append(t.sent, params)
	return t.sendResp, nil
}

func (t *fakeTransport) GetChat(_ context.Context, _ *bot.GetChatParams) (*models.ChatFullInfo, error) {
	return t.chatInfo, nil
}

func (t *fakeTransport) GetUserProfilePhotos(_ context.Context, _ *bot.GetUserProfilePhotosParams) (*models.UserProfilePhotos, error) {
	return t.photos, nil
}

func newTestService(t *testing.T) (*Service, database.Store, *fakeDownloader, *fakeTransport) {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	d := &fakeDownloader{}
	cache, err := media.NewCache(t.TempDir(), 3, d, nil)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	tr := &fakeTransport{}

	svc := NewService(nil, store, notify.NewHub(), 0)
	svc.SetCache(cache)
	svc.SetTransport(tr)
	return svc, store, d, tr
}

func privateTextMessage(chatID int64, messageID int, userID int64, text string) *models.Message {
	return &models.Message{
		ID:   messageID,
		Date: 1000,
		Chat: models.Chat{ID: chatID, Type: "private", FirstName: "Alice"},
		From: &models.User{ID: userID, FirstName: "Alice"},
		Text: text,
	}
}

func photoMessage(chatID int64, messageID int, uniqueID string) *models.Message {
	return &models.Message{
		ID:   messageID,
		Date: 1000,
		Chat: models.Chat{ID: chatID, Type: "private", FirstName: "Alice"},
		From: &models.User{ID: 500, FirstName: "Alice"},
		Photo: []models.PhotoSize{
			{FileID: "small-" + uniqueID, FileUniqueID: uniqueID + "s", Width: 90},
			{FileID: "big-" + uniqueID, FileUniqueID: uniqueID, Width: 1280},
		},
		Caption: "look",
	}
}

func TestHandleMessageMirrorsTextMessage(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.handleMessage(ctx, privateTextMessage(7, 42, 500, "hi"), false); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	chat, err := store.GetChat(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil {
		t.Fatal("chat row missing")
	}
	if chat.Type != database.ChatTypePrivate {
		t.Errorf("chat type = %s, want PRIVATE", chat.Type)
	}
	if chat.LastMessageText.String != "hi" || chat.LastMessageTime != 1000 {
		t.Errorf("preview = %q@%d, want hi@1000", chat.LastMessageText.String, chat.LastMessageTime)
	}

	user, err := store.GetUser(ctx, 500)
	if err != nil {
		t.Fatal(err)
	}
	if user == nil || user.FirstName != "Alice" {
		t.Errorf("user = %+v, want Alice", user)
	}

	msg, err := store.GetMessage(ctx, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil {
		t.Fatal("message row missing")
	}
	if msg.Type != database.MessageTypeText || msg.Text.String != "hi" {
		t.Errorf("message = %s %q, want TEXT hi", msg.Type, msg.Text.String)
	}
	if msg.IsOutgoing {
		t.Error("inbound message flagged as outgoing")
	}
}

func TestHandleMessageIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.handleMessage(ctx, privateTextMessage(7, 42, 500, "hi"), false); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	svc.wg.Wait()

	msgs, err := store.ListChatMessages(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Errorf("messages = %d, want 1", len(msgs))
	}
	chats, err := store.ListChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Errorf("chats = %d, want 1", len(chats))
	}
}

func TestHandleMessageSharesCachedMedia(t *testing.T) {
	t.Parallel()
	svc, store, d, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.handleMessage(ctx, photoMessage(7, 42, "u1"), false); err != nil {
		t.Fatal(err)
	}
	// The same photo forwarded to another chat shares the unique file id.
	if err := svc.handleMessage(ctx, photoMessage(8, 1, "u1"), false); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	if got := d.calls.Load(); got != 1 {
		t.Errorf("downloads = %d, want 1 (forward must reuse the cached file)", got)
	}

	first, err := store.GetMessage(ctx, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.GetMessage(ctx, 8, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !first.FileLocalPath.Valid || first.FileLocalPath.String == "" {
		t.Fatal("first message has no resolved path")
	}
	if first.FileLocalPath.String != second.FileLocalPath.String {
		t.Errorf("paths differ: %q vs %q", first.FileLocalPath.String, second.FileLocalPath.String)
	}
}

func TestHandleEditUpdatesTextOnly(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.handleMessage(ctx, privateTextMessage(7, 42, 500, "original"), false); err != nil {
		t.Fatal(err)
	}

	edit := privateTextMessage(7, 42, 500, "edited")
	edit.EditDate = 2000
	if err := svc.handleEdit(ctx, edit); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	msg, err := store.GetMessage(ctx, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text.String != "edited" {
		t.Errorf("text = %q, want edited", msg.Text.String)
	}
	if !msg.IsEdited || msg.EditedAt.Int64 != 2000 {
		t.Errorf("edit state = %v@%d, want true@2000", msg.IsEdited, msg.EditedAt.Int64)
	}
	if msg.Timestamp != 1000 {
		t.Errorf("timestamp = %d, want original 1000", msg.Timestamp)
	}
}

func TestHandleEditForUnknownMessageIsDropped(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	edit := privateTextMessage(7, 42, 500, "edited")
	edit.EditDate = 2000
	if err := svc.handleEdit(ctx, edit); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	msg, err := store.GetMessage(ctx, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	if msg != nil {
		t.Error("dropped edit must not create a message row")
	}
}

func TestHandlerDispatchesUpdates(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	svc.Handler(ctx, nil, &models.Update{Message: privateTextMessage(7, 42, 500, "hi")})
	svc.wg.Wait()

	edit := privateTextMessage(7, 42, 500, "edited")
	edit.EditDate = 2000
	svc.Handler(ctx, nil, &models.Update{EditedMessage: edit})
	svc.wg.Wait()

	msg, err := store.GetMessage(ctx, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || msg.Text.String != "edited" || !msg.IsEdited {
		t.Errorf("message = %+v, want edited text", msg)
	}
}

func TestSendTextMirrorsOutgoingMessage(t *testing.T) {
	t.Parallel()
	svc, store, _, tr := newTestService(t)
	ctx := context.Background()

	tr.sendResp = &models.Message{
		ID:   7,
		Date: 1000,
		Chat: models.Chat{ID: 9, Type: "private", FirstName: "Bob"},
		From: &models.User{ID: 1, FirstName: "Mirror"},
		Text: "pong",
	}

	if err := svc.SendText(ctx, 9, "pong"); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	if len(tr.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(tr.sent))
	}

	msg, err := store.GetMessage(ctx, 9, 7)
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil {
		t.Fatal("sent message not mirrored")
	}
	if !msg.IsOutgoing {
		t.Error("mirrored sent message must be flagged outgoing")
	}
	if msg.Text.String != "pong" {
		t.Errorf("text = %q, want pong", msg.Text.String)
	}
}

func TestHandleMessageSetsCanWriteFlagForPrivateChatSenders(t *testing.T) {
	t.Parallel()
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.handleMessage(ctx, privateTextMessage(7, 42, 500, "hi"), false); err != nil {
		t.Fatal(err)
	}

	groupMsg := &models.Message{
		ID:   1,
		Date: 1000,
		Chat: models.Chat{ID: 100, Type: "group", Title: "Go enjoyers"},
		From: &models.User{ID: 600, FirstName: "Bob"},
		Text: "hey",
	}
	if err := svc.handleMessage(ctx, groupMsg, false); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	private, err := store.GetUser(ctx, 500)
	if err != nil {
		t.Fatal(err)
	}
	if private == nil || !private.CanWriteMsgToPm {
		t.Error("private-chat sender must have can_write_msg_to_pm set")
	}

	group, err := store.GetUser(ctx, 600)
	if err != nil {
		t.Fatal(err)
	}
	if group == nil || group.CanWriteMsgToPm {
		t.Error("sender seen only in a group must not have can_write_msg_to_pm set")
	}
}

func TestAvatarBackfillRetriesOnLaterMessages(t *testing.T) {
	t.Parallel()
	svc, store, _, tr := newTestService(t)
	ctx := context.Background()

	// First sighting: the user has no profile photos yet, so the backfill
	// finds nothing and records no avatar.
	if err := svc.handleMessage(ctx, privateTextMessage(7, 1, 500, "hi"), false); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	user, err := store.GetUser(ctx, 500)
	if err != nil {
		t.Fatal(err)
	}
	if user.AvatarFileUniqueID.Valid {
		t.Fatal("no avatar should be recorded before one exists")
	}

	// A photo appears later; the next message must re-attempt the backfill.
	tr.photos = &models.UserProfilePhotos{
		TotalCount: 1,
		Photos: [][]models.PhotoSize{
			{{FileID: "av", FileUniqueID: "avu", Width: 640, Height: 640}},
		},
	}
	if err := svc.handleMessage(ctx, privateTextMessage(7, 2, 500, "again"), false); err != nil {
		t.Fatal(err)
	}
	svc.wg.Wait()

	user, err = store.GetUser(ctx, 500)
	if err != nil {
		t.Fatal(err)
	}
	if user.AvatarFileUniqueID.String != "avu" {
		t.Errorf("avatar unique id = %q, want avu", user.AvatarFileUniqueID.String)
	}
	if !user.AvatarLocalPath.Valid {
		t.Fatal("avatar local path missing after retry")
	}
	data, err := os.ReadFile(user.AvatarLocalPath.String)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "data:av" {
		t.Errorf("avatar content = %q, want data:av", data)
	}
}

func TestChatTypeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wire string
		want database.ChatType
	}{
		{"private", database.ChatTypePrivate},
		{"group", database.ChatTypeGroup},
		{"supergroup", database.ChatTypeSupergroup},
		{"channel", database.ChatTypeChannel},
		{"something-new", database.ChatTypePrivate},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			t.Parallel()
			if got := chatTypeOf(tt.wire); got != tt.want {
				t.Errorf("chatTypeOf(%q) = %s, want %s", tt.wire, got, tt.want)
			}
		})
	}
}
