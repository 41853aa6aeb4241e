package ingest

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/heofen/botgram/internal/notify"
)

// Avatar backfill runs detached from message handling: a profile photo is
// fetched the first time a chat or user is seen, and its absence never
// blocks or fails ingestion.

func (s *Service) spawnAvatarBackfill(ctx context.Context, kind string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Avatar backfill panicked", "kind", kind, "panic", r)
			}
		}()
		if err := fn(ctx); err != nil {
			s.logger.Warn("Avatar backfill failed", "kind", kind, "error", err)
		}
	}()
}

// ensureUserAvatar fetches the user's current profile photo and caches its
// largest variant. A photo already cached for another user with the same
// unique file id is reused without a download.
func (s *Service) ensureUserAvatar(ctx context.Context, userID int64) error {
	if s.transport == nil || s.cache == nil {
		return nil
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if user == nil || fileReady(user.AvatarLocalPath.String) {
		return nil
	}

	photos, err := s.transport.GetUserProfilePhotos(ctx, &bot.GetUserProfilePhotosParams{
		UserID: userID,
		Limit:  1,
	})
	if err != nil {
		return fmt.Errorf("profile photos: %w", err)
	}
	if photos == nil || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return nil
	}

	// Variants are ordered smallest first; take the largest.
	set := photos.Photos[0]
	best := set[len(set)-1]

	localPath := ""
	if other, err := s.store.FindUserByAvatar(ctx, best.FileUniqueID); err != nil {
		return fmt.Errorf("avatar lookup: %w", err)
	} else if other != nil && fileReady(other.AvatarLocalPath.String) {
		localPath = other.AvatarLocalPath.String
	} else {
		localPath, err = s.cache.Resolve(ctx, best.FileID, best.FileUniqueID, "jpg", true)
		if err != nil {
			return fmt.Errorf("avatar download: %w", err)
		}
	}

	if err := s.store.SetUserAvatar(ctx, userID,
		nullString(best.FileID), nullString(best.FileUniqueID), nullString(localPath)); err != nil {
		return fmt.Errorf("record user avatar: %w", err)
	}

	s.hub.Publish(notify.Event{Kind: notify.KindAvatarResolved, UserID: userID})
	return nil
}

// ensureChatAvatar fetches the chat's photo via GetChat and caches the big
// variant.
func (s *Service) ensureChatAvatar(ctx context.Context, chatID int64) error {
	if s.transport == nil || s.cache == nil {
		return nil
	}

	info, err := s.transport.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return fmt.Errorf("chat info: %w", err)
	}
	if info == nil || info.Photo == nil {
		return nil
	}

	localPath, err := s.cache.Resolve(ctx, info.Photo.BigFileID, info.Photo.BigFileUniqueID, "jpg", true)
	if err != nil {
		return fmt.Errorf("avatar download: %w", err)
	}

	if err := s.store.SetChatAvatar(ctx, chatID,
		nullString(info.Photo.BigFileID), nullString(info.Photo.BigFileUniqueID), nullString(localPath)); err != nil {
		return fmt.Errorf("record chat avatar: %w", err)
	}

	s.hub.Publish(notify.Event{Kind: notify.KindAvatarResolved, ChatID: chatID})
	return nil
}
