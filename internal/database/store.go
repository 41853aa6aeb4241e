package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Store defines the data access interface for the mirrored conversation
// schema. Writes follow an explicit per-field merge policy instead of blind
// replaces: chat upserts never touch avatar columns, user rows are inserted
// at most once, and message edits update only the edit fields.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertChat inserts a chat row or, when it already exists, updates the
	// display and last-message preview fields. Avatar columns are left alone
	// so the lazy avatar backfill never races with ingestion.
	UpsertChat(ctx context.Context, chat *Chat) error

	// InsertUserIfAbsent inserts a user row unless one already exists for the
	// id. Profile fields are written at most once; later sightings of the
	// same sender are no-ops. Reports whether a row was inserted.
	InsertUserIfAbsent(ctx context.Context, user *User) (bool, error)

	// UpsertMessage inserts or replaces a message keyed by
	// (chat_id, message_id), making re-ingestion of a duplicate update
	// idempotent. An already-resolved file_local_path survives replacement.
	UpsertMessage(ctx context.Context, message *Message) error

	// ApplyMessageEdit updates only text, caption, and edit-state fields.
	// Reports whether a matching row existed; an edit for an unknown message
	// id is a no-op.
	ApplyMessageEdit(ctx context.Context, chatID, messageID int64, text, caption sql.NullString, editedAt int64) (bool, error)

	// SetMessageFilePath records the local cache path for a downloaded file.
	SetMessageFilePath(ctx context.Context, chatID, messageID int64, localPath string) error

	// SetChatAvatar and SetUserAvatar record avatar references resolved by
	// the lazy backfill task.
	SetChatAvatar(ctx context.Context, chatID int64, fileID, fileUniqueID, localPath sql.NullString) error
	SetUserAvatar(ctx context.Context, userID int64, fileID, fileUniqueID, localPath sql.NullString) error

	// Point lookups. All return nil, nil when no row exists.
	GetChat(ctx context.Context, id int64) (*Chat, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error)
	GetLastMessage(ctx context.Context, chatID int64) (*Message, error)

	// ListChats returns all chats ordered by last-message time descending.
	ListChats(ctx context.Context) ([]Chat, error)

	// SearchChats returns chats whose title or name contains the query.
	SearchChats(ctx context.Context, query string) ([]Chat, error)

	// ListChatMessages returns a chat's messages ordered by timestamp.
	ListChatMessages(ctx context.Context, chatID int64) ([]Message, error)

	// ListMediaGroup returns the messages of an album ordered by message id.
	ListMediaGroup(ctx context.Context, groupID string) ([]Message, error)

	// FindCachedMedia returns any message referencing the unique file id
	// whose file has already been downloaded, or nil, nil.
	FindCachedMedia(ctx context.Context, fileUniqueID string) (*Message, error)

	// FindUserByAvatar returns any user whose downloaded avatar has the given
	// unique file id, or nil, nil.
	FindUserByAvatar(ctx context.Context, fileUniqueID string) (*User, error)

	// DeleteMessagesBefore removes messages older than the given unix
	// timestamp across all chats and reports how many rows were deleted.
	DeleteMessagesBefore(ctx context.Context, before int64) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) UpsertChat(ctx context.Context, chat *Chat) error {
	if chat == nil {
		return fmt.Errorf("cannot upsert nil chat")
	}
	if chat.ID == 0 {
		return fmt.Errorf("chat must have a non-zero id")
	}

	// Avatar columns are intentionally absent from both column lists: the
	// conflict clause must not clobber paths the backfill task has set.
	query := `
        INSERT INTO chats (id, type, title, first_name, last_name, username,
                           last_message_type, last_message_text, last_message_time, last_message_sender_id)
        VALUES (:id, :type, :title, :first_name, :last_name, :username,
                :last_message_type, :last_message_text, :last_message_time, :last_message_sender_id)
        ON CONFLICT(id) DO UPDATE SET
            type = excluded.type,
            title = excluded.title,
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            username = excluded.username,
            last_message_type = excluded.last_message_type,
            last_message_text = excluded.last_message_text,
            last_message_time = excluded.last_message_time,
            last_message_sender_id = excluded.last_message_sender_id;
    `
	if _, err := s.db.NamedExecContext(ctx, query, chat); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting chat", "chat_id", chat.ID, "error", err)
		return fmt.Errorf("failed to upsert chat %d: %w", chat.ID, err)
	}
	return nil
}

func (s *sqlxStore) InsertUserIfAbsent(ctx context.Context, user *User) (bool, error) {
	if user == nil {
		return false, fmt.Errorf("cannot insert nil user")
	}
	if user.ID == 0 {
		return false, fmt.Errorf("user must have a non-zero id")
	}
	if user.FirstName == "" {
		return false, fmt.Errorf("user must have a non-empty first name")
	}

	query := `
        INSERT INTO users (id, first_name, last_name, bio,
                           avatar_file_id, avatar_file_unique_id, avatar_local_path, can_write_msg_to_pm)
        VALUES (:id, :first_name, :last_name, :bio,
                :avatar_file_id, :avatar_file_unique_id, :avatar_local_path, :can_write_msg_to_pm)
        ON CONFLICT(id) DO NOTHING;
    `
	result, err := s.db.NamedExecContext(ctx, query, user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting user", "user_id", user.ID, "error", err)
		return false, fmt.Errorf("failed to insert user %d: %w", user.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for user %d: %w", user.ID, err)
	}
	return affected > 0, nil
}

func (s *sqlxStore) UpsertMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot upsert nil message")
	}
	if message.ChatID == 0 {
		return fmt.Errorf("message must have a non-zero chat_id")
	}
	if message.MessageID == 0 {
		return fmt.Errorf("message must have a non-zero message_id")
	}

	// Replace-on-conflict, with one exception: a file_local_path already set
	// by the media cache survives re-ingestion of the same update.
	query := `
        INSERT INTO messages (chat_id, message_id, topic_id, sender_id, type, timestamp,
                              text, caption, reply_msg_id,
                              file_name, file_extension, file_id, file_unique_id, file_local_path, file_size,
                              width, height, duration, thumbnail_file_id,
                              is_edited, edited_at, media_group_id, is_outgoing)
        VALUES (:chat_id, :message_id, :topic_id, :sender_id, :type, :timestamp,
                :text, :caption, :reply_msg_id,
                :file_name, :file_extension, :file_id, :file_unique_id, :file_local_path, :file_size,
                :width, :height, :duration, :thumbnail_file_id,
                :is_edited, :edited_at, :media_group_id, :is_outgoing)
        ON CONFLICT(chat_id, message_id) DO UPDATE SET
            topic_id = excluded.topic_id,
            sender_id = excluded.sender_id,
            type = excluded.type,
            timestamp = excluded.timestamp,
            text = excluded.text,
            caption = excluded.caption,
            reply_msg_id = excluded.reply_msg_id,
            file_name = excluded.file_name,
            file_extension = excluded.file_extension,
            file_id = excluded.file_id,
            file_unique_id = excluded.file_unique_id,
            file_local_path = COALESCE(excluded.file_local_path, messages.file_local_path),
            file_size = excluded.file_size,
            width = excluded.width,
            height = excluded.height,
            duration = excluded.duration,
            thumbnail_file_id = excluded.thumbnail_file_id,
            is_edited = excluded.is_edited,
            edited_at = excluded.edited_at,
            media_group_id = excluded.media_group_id,
            is_outgoing = excluded.is_outgoing;
    `
	if _, err := s.db.NamedExecContext(ctx, query, message); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting message",
			"chat_id", message.ChatID, "message_id", message.MessageID, "error", err)
		return fmt.Errorf("failed to upsert message (%d, %d): %w", message.ChatID, message.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) ApplyMessageEdit(ctx context.Context, chatID, messageID int64, text, caption sql.NullString, editedAt int64) (bool, error) {
	query := `
        UPDATE messages
        SET text = ?, caption = ?, is_edited = 1, edited_at = ?
        WHERE chat_id = ? AND message_id = ?;
    `
	result, err := s.db.ExecContext(ctx, query, text, caption, editedAt, chatID, messageID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error applying message edit",
			"chat_id", chatID, "message_id", messageID, "error", err)
		return false, fmt.Errorf("failed to apply edit to message (%d, %d): %w", chatID, messageID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for edit (%d, %d): %w", chatID, messageID, err)
	}
	return affected > 0, nil
}

func (s *sqlxStore) SetMessageFilePath(ctx context.Context, chatID, messageID int64, localPath string) error {
	query := `UPDATE messages SET file_local_path = ? WHERE chat_id = ? AND message_id = ?;`
	if _, err := s.db.ExecContext(ctx, query, localPath, chatID, messageID); err != nil {
		return fmt.Errorf("failed to set file path for message (%d, %d): %w", chatID, messageID, err)
	}
	return nil
}

func (s *sqlxStore) SetChatAvatar(ctx context.Context, chatID int64, fileID, fileUniqueID, localPath sql.NullString) error {
	query := `UPDATE chats SET avatar_file_id = ?, avatar_file_unique_id = ?, avatar_local_path = ? WHERE id = ?;`
	if _, err := s.db.ExecContext(ctx, query, fileID, fileUniqueID, localPath, chatID); err != nil {
		return fmt.Errorf("failed to set avatar for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlxStore) SetUserAvatar(ctx context.Context, userID int64, fileID, fileUniqueID, localPath sql.NullString) error {
	query := `UPDATE users SET avatar_file_id = ?, avatar_file_unique_id = ?, avatar_local_path = ? WHERE id = ?;`
	if _, err := s.db.ExecContext(ctx, query, fileID, fileUniqueID, localPath, userID); err != nil {
		return fmt.Errorf("failed to set avatar for user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) GetChat(ctx context.Context, id int64) (*Chat, error) {
	var chat Chat
	err := s.db.GetContext(ctx, &chat, `SELECT * FROM chats WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chat %d: %w", id, err)
	}
	return &chat, nil
}

func (s *sqlxStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

func (s *sqlxStore) GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error) {
	var message Message
	err := s.db.GetContext(ctx, &message,
		`SELECT * FROM messages WHERE chat_id = ? AND message_id = ?;`, chatID, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message (%d, %d): %w", chatID, messageID, err)
	}
	return &message, nil
}

func (s *sqlxStore) GetLastMessage(ctx context.Context, chatID int64) (*Message, error) {
	var message Message
	err := s.db.GetContext(ctx, &message,
		`SELECT * FROM messages WHERE chat_id = ? ORDER BY timestamp DESC, message_id DESC LIMIT 1;`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last message for chat %d: %w", chatID, err)
	}
	return &message, nil
}

func (s *sqlxStore) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	err := s.db.SelectContext(ctx, &chats, `SELECT * FROM chats ORDER BY last_message_time DESC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

func (s *sqlxStore) SearchChats(ctx context.Context, query string) ([]Chat, error) {
	var chats []Chat
	pattern := "%" + query + "%"
	err := s.db.SelectContext(ctx, &chats, `
        SELECT * FROM chats
        WHERE title LIKE ? OR first_name LIKE ? OR last_name LIKE ?
        ORDER BY last_message_time DESC;
    `, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search chats: %w", err)
	}
	return chats, nil
}

func (s *sqlxStore) ListChatMessages(ctx context.Context, chatID int64) ([]Message, error) {
	var messages []Message
	err := s.db.SelectContext(ctx, &messages,
		`SELECT * FROM messages WHERE chat_id = ? ORDER BY timestamp ASC, message_id ASC;`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for chat %d: %w", chatID, err)
	}
	return messages, nil
}

func (s *sqlxStore) ListMediaGroup(ctx context.Context, groupID string) ([]Message, error) {
	var messages []Message
	err := s.db.SelectContext(ctx, &messages,
		`SELECT * FROM messages WHERE media_group_id = ? ORDER BY message_id ASC;`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media group %s: %w", groupID, err)
	}
	return messages, nil
}

func (s *sqlxStore) FindCachedMedia(ctx context.Context, fileUniqueID string) (*Message, error) {
	var message Message
	err := s.db.GetContext(ctx, &message, `
        SELECT * FROM messages
        WHERE file_unique_id = ? AND file_local_path IS NOT NULL
        LIMIT 1;
    `, fileUniqueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find cached media %s: %w", fileUniqueID, err)
	}
	return &message, nil
}

func (s *sqlxStore) FindUserByAvatar(ctx context.Context, fileUniqueID string) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `
        SELECT * FROM users
        WHERE avatar_file_unique_id = ? AND avatar_local_path IS NOT NULL
        LIMIT 1;
    `, fileUniqueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by avatar %s: %w", fileUniqueID, err)
	}
	return &user, nil
}

func (s *sqlxStore) DeleteMessagesBefore(ctx context.Context, before int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?;`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages before %d: %w", before, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected for delete before %d: %w", before, err)
	}
	if affected > 0 {
		s.logger.InfoContext(ctx, "Deleted old messages", "count", affected, "before", before)
	}
	return affected, nil
}

// RunSQLMaintenance reclaims free pages and refreshes query planner statistics.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		return fmt.Errorf("failed to run ANALYZE: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to run VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "SQL maintenance completed")
	return nil
}
