// Package media resolves, stores and presents message attachments.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/matheus3301/pchat/internal/config"
)

var (
	// ErrNoSource is returned when an attachment has neither a blob key nor a local file.
	ErrNoSource = errors.New("attachment has no source")
	// ErrBadKey is returned for blob keys that point outside the store.
	ErrBadKey = errors.New("invalid blob key")
)

// Blobs moves attachment bytes between the local disk and shared storage.
type Blobs interface {
	Download(ctx context.Context, key, dst string) error
	Upload(ctx context.Context, key, src string) error
}

// S3Store keeps attachments in an S3 (or S3-compatible) bucket.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
}

// NewS3Store loads the default AWS credentials chain. A non-empty endpoint
// selects an S3-compatible server such as MinIO.
func NewS3Store(ctx context.Context, region, bucket, endpoint string) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
	}, nil
}

// Download writes the object at key to dst atomically.
func (s *S3Store) Download(ctx context.Context, key, dst string) error {
	return writeAtomic(dst, func(f *os.File) error {
		_, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

// Upload stores the file at src under key.
func (s *S3Store) Upload(ctx context.Context, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(src)),
	})
	return err
}

// DirStore keeps attachments in a local directory shared by every client on the machine.
type DirStore struct {
	root string
}

// NewDirStore creates a directory-backed store.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Download copies the blob at key to dst.
func (d *DirStore) Download(ctx context.Context, key, dst string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	return copyFile(ctx, path, dst)
}

// Upload copies src into the store under key.
func (d *DirStore) Upload(ctx context.Context, key, src string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	return copyFile(ctx, src, path)
}

// path resolves key under the root; keys that climb out of it are refused.
func (d *DirStore) path(key string) (string, error) {
	path := filepath.Join(d.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return path, nil
}

// NewBlobs picks the store configured for a session.
func NewBlobs(ctx context.Context, cfg config.MediaConfig, fallbackDir string) (Blobs, error) {
	if cfg.Bucket != "" {
		return NewS3Store(ctx, cfg.Region, cfg.Bucket, cfg.Endpoint)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = fallbackDir
	}
	return NewDirStore(dir), nil
}

// Key returns the blob key of a message attachment.
func Key(chatID, messageID, ext string) string {
	return "media/" + chatID + "/" + messageID + ext
}

// AvatarKey returns the blob key of a user picture.
func AvatarKey(userID string, pictureAt int64) string {
	return fmt.Sprintf("avatars/%s/%d.jpg", userID, pictureAt)
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	return writeAtomic(dst, func(f *os.File) error {
		_, err := io.Copy(f, in)
		return err
	})
}

// writeAtomic fills a temp file next to dst and renames it into place.
func writeAtomic(dst string, fill func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".part-*")
	if err != nil {
		return err
	}
	fillErr := fill(tmp)
	closeErr := tmp.Close()
	if fillErr == nil {
		fillErr = closeErr
	}
	if fillErr != nil {
		_ = os.Remove(tmp.Name())
		return fillErr
	}
	return os.Rename(tmp.Name(), dst)
}
