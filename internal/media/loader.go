package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/metrics"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	downloadTimeout = 2 * time.Minute
	previewWidth    = 96
	qrSize          = 256
	maxExt          = 8
)

// fileName maps a record id to a single file name element; ids that could
// not name a file safely are hashed.
func fileName(id string) string {
	if store.ValidID(id) {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Loader resolves photo, video and audio attachments into the local cache.
type Loader struct {
	kind     string
	blobs    Blobs
	cacheDir string
	auto     bool
	logger   *zap.Logger
}

// NewLoader creates a loader for one attachment type. auto allows downloads
// without an explicit tap.
func NewLoader(kind string, blobs Blobs, cacheDir string, auto bool, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		kind:     kind,
		blobs:    blobs,
		cacheDir: cacheDir,
		auto:     auto,
		logger:   logger.With(zap.String("media", kind)),
	}
}

// Load resolves the attachment in the background.
func (l *Loader) Load(req feed.MediaRequest, done func(feed.MediaResult)) {
	go func() {
		res := l.resolve(req)
		metrics.MediaLoads.WithLabelValues(l.kind, res.Status.String()).Inc()
		done(res)
	}()
}

func (l *Loader) resolve(req feed.MediaRequest) feed.MediaResult {
	m := req.Message
	if m.LocalPath != "" && fileExists(m.LocalPath) {
		return l.succeeded(m.LocalPath)
	}
	path := l.CachePath(m)
	if fileExists(path) {
		return l.succeeded(path)
	}
	if m.MediaKey == "" {
		l.logger.Warn("cannot load attachment", zap.String("msg_id", m.ObjectID), zap.Error(ErrNoSource))
		return feed.MediaResult{Status: feed.StatusFailed}
	}
	if !req.Manual && !l.auto {
		return feed.MediaResult{Status: feed.StatusManual}
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()
	start := time.Now()
	if err := l.blobs.Download(ctx, m.MediaKey, path); err != nil {
		l.logger.Warn("download failed", zap.String("msg_id", m.ObjectID), zap.String("key", m.MediaKey), zap.Error(err))
		return feed.MediaResult{Status: feed.StatusManual}
	}
	metrics.MediaDownloadDuration.Observe(time.Since(start).Seconds())
	l.logger.Debug("downloaded", zap.String("msg_id", m.ObjectID), zap.Duration("took", time.Since(start)))
	return l.succeeded(path)
}

func (l *Loader) succeeded(path string) feed.MediaResult {
	res := feed.MediaResult{Status: feed.StatusSucceeded, Path: path}
	if l.kind == store.TypePhoto {
		thumb, err := Thumbnail(path, previewWidth)
		if err != nil {
			l.logger.Debug("thumbnail failed", zap.String("path", path), zap.Error(err))
		} else {
			res.Preview = thumb
		}
	}
	return res
}

// CachePath returns where the attachment of m is kept on this device. The
// file name never leaves the cache directory, whatever the record holds.
func (l *Loader) CachePath(m store.Message) string {
	return filepath.Join(l.cacheDir, l.kind, fileName(m.ObjectID)+Ext(m))
}

// Ext returns the file extension of an attachment.
func Ext(m store.Message) string {
	for _, p := range []string{m.MediaKey, m.LocalPath} {
		if ext := filepath.Ext(p); ext != "" && len(ext) <= maxExt && store.ValidID(ext) {
			return ext
		}
	}
	switch m.Type {
	case store.TypePhoto:
		return ".jpg"
	case store.TypeVideo:
		return ".mp4"
	case store.TypeAudio:
		return ".m4a"
	}
	return ""
}

// LocationLoader renders a scannable geo: link for location messages.
type LocationLoader struct{}

// Load resolves immediately with a QR code preview.
func (LocationLoader) Load(req feed.MediaRequest, done func(feed.MediaResult)) {
	go func() {
		img, err := LocationQR(req.Message.Latitude, req.Message.Longitude, qrSize)
		if err != nil {
			done(feed.MediaResult{Status: feed.StatusFailed})
			return
		}
		done(feed.MediaResult{Status: feed.StatusSucceeded, Preview: img})
	}()
}

// GeoURI formats a position as an RFC 5870 geo URI.
func GeoURI(lat, lon float64) string {
	return fmt.Sprintf("geo:%.6f,%.6f", lat, lon)
}

// LocationQR encodes the geo URI of a position.
func LocationQR(lat, lon float64, size int) (image.Image, error) {
	qr, err := qrcode.New(GeoURI(lat, lon), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode location: %w", err)
	}
	return qr.Image(size), nil
}

// Thumbnail decodes the image at path and scales it to width, keeping the aspect ratio.
func Thumbnail(path string, width int) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos), nil
}

// ImageSize returns the pixel dimensions of the image at path.
func ImageSize(path string) (int, int, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// Loaders builds the loader set a feed needs for one session.
func Loaders(blobs Blobs, cacheDir string, auto config.AutoDownload, logger *zap.Logger) map[string]feed.MediaLoader {
	return map[string]feed.MediaLoader{
		store.TypePhoto:    NewLoader(store.TypePhoto, blobs, cacheDir, auto.Photo, logger),
		store.TypeVideo:    NewLoader(store.TypeVideo, blobs, cacheDir, auto.Video, logger),
		store.TypeAudio:    NewLoader(store.TypeAudio, blobs, cacheDir, auto.Audio, logger),
		store.TypeLocation: LocationLoader{},
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
