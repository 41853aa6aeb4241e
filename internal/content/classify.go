// Package content normalizes heterogeneous Telegram message content into the
// local message schema. Classification is a pure function of the incoming
// message: it assigns a message type tag, picks the best file reference for
// media content, and derives file metadata such as dimensions, duration, and
// extension.
package content

import (
	"path"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/heofen/botgram/internal/database"
)

// Classification is the normalized projection of a message's content.
// FileID is empty for content without media. For photos the file reference
// points at the maximum-width variant.
type Classification struct {
	Type database.MessageType

	Text    string
	Caption string

	FileID          string
	FileUniqueID    string
	FileName        string
	FileExtension   string
	FileSize        int64
	Width           int64
	Height          int64
	Duration        int64
	ThumbnailFileID string
}

// mimeExtensions maps MIME types reported for documents to file extensions,
// used when the document carries no usable filename suffix.
var mimeExtensions = map[string]string{
	"image/jpeg":                   "jpg",
	"image/png":                    "png",
	"image/gif":                    "gif",
	"image/webp":                   "webp",
	"video/mp4":                    "mp4",
	"video/mpeg":                   "mpeg",
	"audio/mpeg":                   "mp3",
	"audio/ogg":                    "ogg",
	"application/pdf":              "pdf",
	"application/zip":              "zip",
	"application/x-rar-compressed": "rar",
	"text/plain":                   "txt",
}

// Classify maps a message's content variant onto the local schema. It is
// total: every content shape produces exactly one message type, and content
// this build does not recognize falls back to TEXT with no file fields.
func Classify(msg *models.Message) Classification {
	c := Classification{
		Type:    database.MessageTypeText,
		Text:    msg.Text,
		Caption: msg.Caption,
	}

	switch {
	case len(msg.Photo) > 0:
		best := bestPhoto(msg.Photo)
		c.Type = database.MessageTypePhoto
		c.FileID = best.FileID
		c.FileUniqueID = best.FileUniqueID
		c.FileExtension = "jpg"
		c.FileSize = int64(best.FileSize)
		c.Width = int64(best.Width)
		c.Height = int64(best.Height)
		c.ThumbnailFileID = smallestPhoto(msg.Photo).FileID

	case msg.Video != nil:
		v := msg.Video
		c.Type = database.MessageTypeVideo
		c.FileID = v.FileID
		c.FileUniqueID = v.FileUniqueID
		c.FileName = v.FileName
		c.FileExtension = "mp4"
		c.FileSize = int64(v.FileSize)
		c.Width = int64(v.Width)
		c.Height = int64(v.Height)
		c.Duration = int64(v.Duration)
		c.ThumbnailFileID = thumbnailID(v.Thumbnail)

	case msg.Animation != nil:
		a := msg.Animation
		c.Type = database.MessageTypeAnimation
		c.FileID = a.FileID
		c.FileUniqueID = a.FileUniqueID
		c.FileName = a.FileName
		c.FileExtension = "mp4"
		c.FileSize = int64(a.FileSize)
		c.Width = int64(a.Width)
		c.Height = int64(a.Height)
		c.Duration = int64(a.Duration)
		c.ThumbnailFileID = thumbnailID(a.Thumbnail)

	case msg.Audio != nil:
		a := msg.Audio
		c.Type = database.MessageTypeAudio
		c.FileID = a.FileID
		c.FileUniqueID = a.FileUniqueID
		c.FileName = a.FileName
		c.FileExtension = extensionOr(a.FileName, "mp3")
		c.FileSize = int64(a.FileSize)
		c.Duration = int64(a.Duration)
		c.ThumbnailFileID = thumbnailID(a.Thumbnail)

	case msg.Voice != nil:
		v := msg.Voice
		c.Type = database.MessageTypeVoice
		c.FileID = v.FileID
		c.FileUniqueID = v.FileUniqueID
		c.FileExtension = "ogg"
		c.FileSize = int64(v.FileSize)
		c.Duration = int64(v.Duration)

	case msg.VideoNote != nil:
		v := msg.VideoNote
		c.Type = database.MessageTypeVideoNote
		c.FileID = v.FileID
		c.FileUniqueID = v.FileUniqueID
		c.FileExtension = "mp4"
		c.FileSize = int64(v.FileSize)
		// Video notes are square; Length is the side in pixels.
		c.Width = int64(v.Length)
		c.Height = int64(v.Length)
		c.Duration = int64(v.Duration)
		c.ThumbnailFileID = thumbnailID(v.Thumbnail)

	case msg.Document != nil:
		d := msg.Document
		c.Type = database.MessageTypeDocument
		c.FileID = d.FileID
		c.FileUniqueID = d.FileUniqueID
		c.FileName = d.FileName
		c.FileExtension = documentExtension(d.FileName, d.MimeType)
		c.FileSize = int64(d.FileSize)
		c.ThumbnailFileID = thumbnailID(d.Thumbnail)

	case msg.Sticker != nil:
		s := msg.Sticker
		switch {
		case s.IsAnimated:
			c.Type = database.MessageTypeAnimatedSticker
			c.FileExtension = "tgs"
		case s.IsVideo:
			c.Type = database.MessageTypeVideoSticker
			c.FileExtension = "webm"
		default:
			c.Type = database.MessageTypeSticker
			c.FileExtension = "webp"
		}
		c.FileID = s.FileID
		c.FileUniqueID = s.FileUniqueID
		c.FileSize = int64(s.FileSize)
		c.Width = int64(s.Width)
		c.Height = int64(s.Height)
		c.ThumbnailFileID = thumbnailID(s.Thumbnail)

	case msg.Contact != nil:
		c.Type = database.MessageTypeContact

	case msg.Location != nil:
		c.Type = database.MessageTypeLocation
	}

	return c
}

// bestPhoto picks the maximum-width variant of a photo collection.
func bestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width > best.Width {
			best = s
		}
	}
	return best
}

// smallestPhoto picks the minimum-width variant, used as the thumbnail.
func smallestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	smallest := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width < smallest.Width {
			smallest = s
		}
	}
	return smallest
}

func thumbnailID(thumb *models.PhotoSize) string {
	if thumb == nil {
		return ""
	}
	return thumb.FileID
}

// extensionOr returns the filename's extension, or the fallback when the
// filename has none.
func extensionOr(fileName, fallback string) string {
	if ext := strings.TrimPrefix(path.Ext(fileName), "."); ext != "" {
		return ext
	}
	return fallback
}

// documentExtension infers a document's extension: an explicit filename
// suffix wins, then the MIME lookup table, then a generic default.
func documentExtension(fileName, mimeType string) string {
	if ext := strings.TrimPrefix(path.Ext(fileName), "."); ext != "" {
		return ext
	}
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return "bin"
}
