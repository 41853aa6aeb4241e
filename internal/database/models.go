package database

import "database/sql"

// ChatType describes the kind of Telegram chat a conversation belongs to.
type ChatType string

const (
	ChatTypePrivate    ChatType = "PRIVATE"
	ChatTypeGroup      ChatType = "GROUP"
	ChatTypeChannel    ChatType = "CHANNEL"
	ChatTypeSupergroup ChatType = "SUPERGROUP"
)

// MessageType is the local tag assigned to a message by the content
// classifier. Unclassifiable content falls back to MessageTypeText.
type MessageType string

const (
	MessageTypeText            MessageType = "TEXT"
	MessageTypePhoto           MessageType = "PHOTO"
	MessageTypeVideo           MessageType = "VIDEO"
	MessageTypeAnimation       MessageType = "ANIMATION"
	MessageTypeAudio           MessageType = "AUDIO"
	MessageTypeVoice           MessageType = "VOICE"
	MessageTypeVideoNote       MessageType = "VIDEO_NOTE"
	MessageTypeDocument        MessageType = "DOCUMENT"
	MessageTypeSticker         MessageType = "STICKER"
	MessageTypeAnimatedSticker MessageType = "ANIMATED_STICKER"
	MessageTypeVideoSticker    MessageType = "VIDEO_STICKER"
	MessageTypeContact         MessageType = "CONTACT"
	MessageTypeLocation        MessageType = "LOCATION"
)

// Chat is a mirrored conversation. Exactly one row exists per external chat
// id; the last_message_* columns always reflect the most recently ingested
// message for the chat. Avatar columns are populated lazily by the avatar
// backfill task and are never touched by the ingestion upsert.
type Chat struct {
	ID   int64    `db:"id"`
	Type ChatType `db:"type"`

	Title     sql.NullString `db:"title"`
	FirstName sql.NullString `db:"first_name"`
	LastName  sql.NullString `db:"last_name"`
	Username  sql.NullString `db:"username"`

	LastMessageType     MessageType    `db:"last_message_type"`
	LastMessageText     sql.NullString `db:"last_message_text"`
	LastMessageTime     int64          `db:"last_message_time"`
	LastMessageSenderID sql.NullInt64  `db:"last_message_sender_id"`

	AvatarFileID       sql.NullString `db:"avatar_file_id"`
	AvatarFileUniqueID sql.NullString `db:"avatar_file_unique_id"`
	AvatarLocalPath    sql.NullString `db:"avatar_local_path"`
}

// User is a mirrored message sender. A row is inserted at most once per
// sender id; later messages never rewrite profile fields.
type User struct {
	ID        int64          `db:"id"`
	FirstName string         `db:"first_name"`
	LastName  sql.NullString `db:"last_name"`
	Bio       sql.NullString `db:"bio"`

	AvatarFileID       sql.NullString `db:"avatar_file_id"`
	AvatarFileUniqueID sql.NullString `db:"avatar_file_unique_id"`
	AvatarLocalPath    sql.NullString `db:"avatar_local_path"`

	CanWriteMsgToPm bool `db:"can_write_msg_to_pm"`
}

// Message is a mirrored message, unique per (chat_id, message_id). Rows are
// immutable after ingestion except for the edit fields and file_local_path,
// which is set once the media cache has downloaded the referenced file.
type Message struct {
	ChatID    int64         `db:"chat_id"`
	MessageID int64         `db:"message_id"`
	TopicID   sql.NullInt64 `db:"topic_id"`
	SenderID  sql.NullInt64 `db:"sender_id"`

	Type      MessageType `db:"type"`
	Timestamp int64       `db:"timestamp"`

	Text    sql.NullString `db:"text"`
	Caption sql.NullString `db:"caption"`

	ReplyMsgID sql.NullInt64 `db:"reply_msg_id"`

	FileName        sql.NullString `db:"file_name"`
	FileExtension   sql.NullString `db:"file_extension"`
	FileID          sql.NullString `db:"file_id"`
	FileUniqueID    sql.NullString `db:"file_unique_id"`
	FileLocalPath   sql.NullString `db:"file_local_path"`
	FileSize        sql.NullInt64  `db:"file_size"`
	Width           sql.NullInt64  `db:"width"`
	Height          sql.NullInt64  `db:"height"`
	Duration        sql.NullInt64  `db:"duration"`
	ThumbnailFileID sql.NullString `db:"thumbnail_file_id"`

	IsEdited bool          `db:"is_edited"`
	EditedAt sql.NullInt64 `db:"edited_at"`

	MediaGroupID sql.NullString `db:"media_group_id"`

	IsOutgoing bool `db:"is_outgoing"`
}
