package observation

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

// ImageFetcher downloads an image with the current session.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// SnapshotSource provides the latest device snapshot.
type SnapshotSource interface {
	Snapshot() (status.Snapshot, bool)
}

// SnapshotCamera serves the picture of the most recent alarm.
//
// The last downloaded image is kept and reused while last_alarm_pic does
// not change.
type SnapshotCamera struct {
	fetcher ImageFetcher
	source  SnapshotSource
	logger  Logger

	mu        sync.Mutex
	cachedURL string
	cached    []byte
}

// NewSnapshotCamera creates a camera reading URLs from source.
func NewSnapshotCamera(fetcher ImageFetcher, source SnapshotSource, logger Logger) *SnapshotCamera {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SnapshotCamera{fetcher: fetcher, source: source, logger: logger}
}

// PictureURL returns the current alarm picture URL, if any.
func (c *SnapshotCamera) PictureURL() (string, bool) {
	snap, ok := c.source.Snapshot()
	if !ok {
		return "", false
	}
	return snap.String(status.FieldLastAlarmPic)
}

// Image returns the latest alarm picture.
//
// Returns:
//   - []byte: Image bytes
//   - error: ErrNoImage when there is no picture URL or the download
//     failed; download failures are logged as warnings
func (c *SnapshotCamera) Image(ctx context.Context) ([]byte, error) {
	url, ok := c.PictureURL()
	if !ok {
		return nil, ErrNoImage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if url == c.cachedURL && c.cached != nil {
		return c.cached, nil
	}

	img, err := c.fetcher.FetchImage(ctx, url)
	if err != nil {
		c.logger.Warn("alarm snapshot download failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNoImage, err)
	}
	if len(img) == 0 {
		return nil, ErrNoImage
	}

	c.cachedURL = url
	c.cached = img
	return img, nil
}
