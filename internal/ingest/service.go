// Package ingest implements the update-ingestion pipeline: it consumes the
// long-polling update stream, normalizes message content into the local
// schema, drives the idempotent chat/user/message upserts, and resolves
// referenced media through the cache.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/heofen/botgram/internal/content"
	"github.com/heofen/botgram/internal/database"
	"github.com/heofen/botgram/internal/media"
	"github.com/heofen/botgram/internal/notify"
)

// Transport is the slice of the bot API the ingestion service calls outside
// of update handling. *bot.Bot satisfies it.
type Transport interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	GetUserProfilePhotos(ctx context.Context, params *bot.GetUserProfilePhotosParams) (*models.UserProfilePhotos, error)
}

// Service owns the update loop. Each inbound event is handled in its own
// goroutine; failures inside a handler are logged and never crash the loop.
type Service struct {
	logger       *slog.Logger
	store        database.Store
	cache        *media.Cache
	hub          *notify.Hub
	restartDelay time.Duration

	transport Transport

	wg sync.WaitGroup
}

// NewService creates the ingestion service. The transport and cache are
// attached separately because the bot instance is constructed with this
// service's Handler as an option.
func NewService(logger *slog.Logger, store database.Store, hub *notify.Hub, restartDelay time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:       logger.With("component", "ingest"),
		store:        store,
		hub:          hub,
		restartDelay: restartDelay,
	}
}

// SetTransport attaches the bot transport used for sends and avatar fetches.
// Must be called before Run.
func (s *Service) SetTransport(t Transport) {
	s.transport = t
}

// SetCache attaches the media cache. The cache's downloader depends on the
// bot instance, which in turn is constructed with this service's Handler, so
// the cache arrives after construction. Must be called before Run.
func (s *Service) SetCache(c *media.Cache) {
	s.cache = c
}

// Run drives the long-polling connection until the context is cancelled.
// The transport retries transient errors internally; if polling ever stops
// while the context is still alive, the loop restarts it after a fixed
// delay, indefinitely. On shutdown it waits for in-flight event handlers.
func (s *Service) Run(ctx context.Context, b *bot.Bot) error {
	defer s.wg.Wait()

	for {
		s.logger.Info("Starting long polling...")
		b.Start(ctx)

		if ctx.Err() != nil {
			s.logger.Info("Update loop stopped.")
			return nil
		}

		s.logger.Error("Polling stopped unexpectedly, restarting", "delay", s.restartDelay)
		select {
		case <-time.After(s.restartDelay):
		case <-ctx.Done():
			s.logger.Info("Update loop stopped during restart delay.")
			return nil
		}
	}
}

// Handler is the default update handler registered with the bot. It
// dispatches each event to its own goroutine so a slow media download never
// delays the polling loop or other events.
func (s *Service) Handler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	switch {
	case update.Message != nil:
		s.spawn(ctx, "message", func(ctx context.Context) error {
			return s.handleMessage(ctx, update.Message, false)
		})
	case update.EditedMessage != nil:
		s.spawn(ctx, "edited_message", func(ctx context.Context) error {
			return s.handleEdit(ctx, update.EditedMessage)
		})
	case update.ChannelPost != nil:
		s.spawn(ctx, "channel_post", func(ctx context.Context) error {
			return s.handleMessage(ctx, update.ChannelPost, false)
		})
	case update.EditedChannelPost != nil:
		s.spawn(ctx, "edited_channel_post", func(ctx context.Context) error {
			return s.handleEdit(ctx, update.EditedChannelPost)
		})
	case update.MyChatMember != nil:
		// Membership changes carry no message content; the chat row appears
		// when the first message from the chat arrives.
		s.logger.Info("Membership change received", "chat_id", update.MyChatMember.Chat.ID)
	}
}

// spawn runs an event handler in its own goroutine. Panics and errors are
// contained and logged; nothing propagates back into the polling loop.
func (s *Service) spawn(ctx context.Context, kind string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Event handler panicked", "event", kind, "panic", r)
			}
		}()
		if err := fn(ctx); err != nil {
			s.logger.Error("Event handler failed", "event", kind, "error", err)
		}
	}()
}

// handleMessage ingests a content message: classify, upsert the chat's
// preview, record an unseen sender, upsert the message row, then resolve any
// referenced media. Database writes within one handler run in sequence.
func (s *Service) handleMessage(ctx context.Context, msg *models.Message, outgoing bool) error {
	cls := content.Classify(msg)

	chat := chatFromMessage(msg, cls)

	existing, err := s.store.GetChat(ctx, chat.ID)
	if err != nil {
		return fmt.Errorf("chat lookup: %w", err)
	}
	if err := s.store.UpsertChat(ctx, chat); err != nil {
		return fmt.Errorf("chat upsert: %w", err)
	}
	// Avatars are fetched lazily: every sighting of a chat or sender whose
	// avatar is not yet on disk re-attempts the backfill, so a transient
	// failure on the first attempt heals on a later message.
	if existing == nil || !fileReady(existing.AvatarLocalPath.String) {
		s.spawnAvatarBackfill(ctx, "chat", func(ctx context.Context) error {
			return s.ensureChatAvatar(ctx, chat.ID)
		})
	}

	if msg.From != nil {
		user := userFromMessage(msg)
		if _, err := s.store.InsertUserIfAbsent(ctx, user); err != nil {
			return fmt.Errorf("user insert: %w", err)
		}
		s.spawnAvatarBackfill(ctx, "user", func(ctx context.Context) error {
			return s.ensureUserAvatar(ctx, user.ID)
		})
	}

	m := messageFromMessage(msg, cls, outgoing)
	if err := s.store.UpsertMessage(ctx, m); err != nil {
		return fmt.Errorf("message upsert: %w", err)
	}

	s.hub.Publish(notify.Event{Kind: notify.KindChatUpdated, ChatID: m.ChatID})
	s.hub.Publish(notify.Event{Kind: notify.KindMessageUpserted, ChatID: m.ChatID, MessageID: m.MessageID})

	if cls.FileID != "" {
		if err := s.resolveMessageMedia(ctx, m.ChatID, m.MessageID, cls); err != nil {
			// Transient: the row keeps a NULL local path and a later access
			// retries the download.
			s.logger.WarnContext(ctx, "Media download failed",
				"chat_id", m.ChatID, "message_id", m.MessageID,
				"file_unique_id", cls.FileUniqueID, "error", err)
		}
	}

	return nil
}

// handleEdit applies an edit event to an existing message row, touching only
// the text, caption, and edit-state fields. An edit referencing a message id
// that was never ingested is dropped with a log entry; at-least-once
// redelivery makes this deterministic and safe.
func (s *Service) handleEdit(ctx context.Context, msg *models.Message) error {
	cls := content.Classify(msg)

	editedAt := int64(msg.EditDate)
	if editedAt == 0 {
		editedAt = int64(msg.Date)
	}

	applied, err := s.store.ApplyMessageEdit(ctx, msg.Chat.ID, int64(msg.ID),
		nullString(cls.Text), nullString(cls.Caption), editedAt)
	if err != nil {
		return fmt.Errorf("message edit: %w", err)
	}
	if !applied {
		s.logger.WarnContext(ctx, "Edit for unknown message dropped",
			"chat_id", msg.Chat.ID, "message_id", msg.ID)
		return nil
	}

	s.hub.Publish(notify.Event{Kind: notify.KindMessageEdited, ChatID: msg.Chat.ID, MessageID: int64(msg.ID)})
	return nil
}

// resolveMessageMedia obtains a local path for the message's file, reusing a
// path already resolved for another message with the same unique file id
// before going to the network.
func (s *Service) resolveMessageMedia(ctx context.Context, chatID, messageID int64, cls content.Classification) error {
	localPath := ""

	cached, err := s.store.FindCachedMedia(ctx, cls.FileUniqueID)
	if err != nil {
		return fmt.Errorf("cached media lookup: %w", err)
	}
	if cached != nil && fileReady(cached.FileLocalPath.String) {
		localPath = cached.FileLocalPath.String
	} else {
		if s.cache == nil {
			return fmt.Errorf("media cache not attached")
		}
		localPath, err = s.cache.Resolve(ctx, cls.FileID, cls.FileUniqueID, cls.FileExtension, false)
		if err != nil {
			return err
		}
	}

	if err := s.store.SetMessageFilePath(ctx, chatID, messageID, localPath); err != nil {
		return fmt.Errorf("record file path: %w", err)
	}
	s.hub.Publish(notify.Event{Kind: notify.KindFileResolved, ChatID: chatID, MessageID: messageID})
	return nil
}

// SendText sends an outgoing text message and mirrors the sent message into
// the local store with the outgoing flag set.
func (s *Service) SendText(ctx context.Context, chatID int64, text string) error {
	if s.transport == nil {
		return fmt.Errorf("transport not attached")
	}

	sent, err := s.transport.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}

	if err := s.handleMessage(ctx, sent, true); err != nil {
		return fmt.Errorf("failed to mirror sent message: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func fileReady(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
