package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const avatarSize = 64

// Avatars caches decoded user pictures in memory, backed by a disk cache and
// the blob store. Concurrent fetches for the same user share one download.
type Avatars struct {
	blobs  Blobs
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	images   map[string]image.Image
	colors   map[string]color.Color
	inflight map[string][]func(error)
}

// NewAvatars creates an avatar cache rooted at dir.
func NewAvatars(blobs Blobs, dir string, logger *zap.Logger) *Avatars {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Avatars{
		blobs:    blobs,
		dir:      dir,
		logger:   logger,
		images:   make(map[string]image.Image),
		colors:   make(map[string]color.Color),
		inflight: make(map[string][]func(error)),
	}
}

// Local returns a decoded avatar if one is in memory.
func (a *Avatars) Local(userID string) (image.Image, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	img, ok := a.images[userID]
	return img, ok
}

// Color returns the dominant colour of a resolved avatar.
func (a *Avatars) Color(userID string) (color.Color, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.colors[userID]
	return c, ok
}

// Fetch resolves the avatar of userID in the background and calls done.
func (a *Avatars) Fetch(userID string, pictureAt int64, done func(error)) {
	a.mu.Lock()
	if waiters, ok := a.inflight[userID]; ok {
		a.inflight[userID] = append(waiters, done)
		a.mu.Unlock()
		return
	}
	a.inflight[userID] = []func(error){done}
	a.mu.Unlock()

	go func() {
		err := a.fetch(userID, pictureAt)
		if err != nil {
			a.logger.Debug("avatar unavailable", zap.String("user_id", userID), zap.Error(err))
		}
		a.mu.Lock()
		waiters := a.inflight[userID]
		delete(a.inflight, userID)
		a.mu.Unlock()
		for _, w := range waiters {
			w(err)
		}
	}()
}

func (a *Avatars) fetch(userID string, pictureAt int64) error {
	path := filepath.Join(a.dir, fileName(userID), fmt.Sprintf("%d.jpg", pictureAt))
	if !fileExists(path) {
		ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
		defer cancel()
		if err := a.blobs.Download(ctx, AvatarKey(userID, pictureAt), path); err != nil {
			return fmt.Errorf("download avatar: %w", err)
		}
	}
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("decode avatar: %w", err)
	}
	thumb := imaging.Fill(img, avatarSize, avatarSize, imaging.Center, imaging.Lanczos)

	a.mu.Lock()
	a.images[userID] = thumb
	a.colors[userID] = DominantColor(thumb)
	a.mu.Unlock()
	return nil
}

// DominantColor averages an image down to a single pixel.
func DominantColor(img image.Image) color.Color {
	px := imaging.Resize(img, 1, 1, imaging.Box)
	return px.At(0, 0)
}
