package ingest

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/heofen/botgram/internal/content"
	"github.com/heofen/botgram/internal/database"
)

// chatTypeOf maps the wire chat type onto the stored enumeration. Unknown
// values fall back to private, matching the behavior for chats created
// before the type was recorded.
func chatTypeOf(t string) database.ChatType {
	switch t {
	case "group":
		return database.ChatTypeGroup
	case "supergroup":
		return database.ChatTypeSupergroup
	case "channel":
		return database.ChatTypeChannel
	default:
		return database.ChatTypePrivate
	}
}

// chatFromMessage builds the chat upsert row: identity and display fields
// from the chat object, preview fields from the message itself. Avatar
// columns are deliberately absent; they are owned by the backfill path.
func chatFromMessage(msg *models.Message, cls content.Classification) *database.Chat {
	chat := &database.Chat{
		ID:              msg.Chat.ID,
		Type:            chatTypeOf(string(msg.Chat.Type)),
		Title:           nullString(msg.Chat.Title),
		FirstName:       nullString(msg.Chat.FirstName),
		LastName:        nullString(msg.Chat.LastName),
		Username:        nullString(msg.Chat.Username),
		LastMessageType: cls.Type,
		LastMessageText: nullString(previewText(cls)),
		LastMessageTime: int64(msg.Date),
	}
	if msg.From != nil {
		chat.LastMessageSenderID = nullInt64(msg.From.ID)
	}
	return chat
}

// previewText is the one-line summary shown in chat lists: the text or
// caption when present, otherwise the content kind.
func previewText(cls content.Classification) string {
	if cls.Text != "" {
		return cls.Text
	}
	if cls.Caption != "" {
		return cls.Caption
	}
	return strings.ToLower(string(cls.Type))
}

func userFromMessage(msg *models.Message) *database.User {
	return &database.User{
		ID:        msg.From.ID,
		FirstName: msg.From.FirstName,
		LastName:  nullString(msg.From.LastName),
		// A sender seen in a private chat has messaged the bot directly.
		CanWriteMsgToPm: chatTypeOf(string(msg.Chat.Type)) == database.ChatTypePrivate,
	}
}

// messageFromMessage builds the full message row from a classified message.
func messageFromMessage(msg *models.Message, cls content.Classification, outgoing bool) *database.Message {
	m := &database.Message{
		ChatID:          msg.Chat.ID,
		MessageID:       int64(msg.ID),
		TopicID:         nullInt64(int64(msg.MessageThreadID)),
		Type:            cls.Type,
		Timestamp:       int64(msg.Date),
		Text:            nullString(cls.Text),
		Caption:         nullString(cls.Caption),
		FileName:        nullString(cls.FileName),
		FileExtension:   nullString(cls.FileExtension),
		FileID:          nullString(cls.FileID),
		FileUniqueID:    nullString(cls.FileUniqueID),
		FileSize:        nullInt64(cls.FileSize),
		Width:           nullInt64(cls.Width),
		Height:          nullInt64(cls.Height),
		Duration:        nullInt64(cls.Duration),
		ThumbnailFileID: nullString(cls.ThumbnailFileID),
		MediaGroupID:    nullString(msg.MediaGroupID),
		IsOutgoing:      outgoing,
	}
	if msg.From != nil {
		m.SenderID = nullInt64(msg.From.ID)
	}
	if msg.ReplyToMessage != nil {
		m.ReplyMsgID = nullInt64(int64(msg.ReplyToMessage.ID))
	}
	return m
}
