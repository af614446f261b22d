package observation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

type mockFetcher struct {
	data  []byte
	err   error
	calls int
	urls  []string
}

func (m *mockFetcher) FetchImage(_ context.Context, url string) ([]byte, error) {
	m.calls++
	m.urls = append(m.urls, url)
	return m.data, m.err
}

type staticSource struct {
	snap status.Snapshot
	ok   bool
}

func (s *staticSource) Snapshot() (status.Snapshot, bool) { return s.snap, s.ok }

func picSnapshot(url any) status.Snapshot {
	return status.Normalize(map[string]any{"last_alarm_pic": url}, time.Now())
}

func TestSnapshotCamera_Image(t *testing.T) {
	f := &mockFetcher{data: []byte("jpeg")}
	src := &staticSource{snap: picSnapshot("https://example.invalid/a.jpg"), ok: true}
	cam := NewSnapshotCamera(f, src, nil)

	img, err := cam.Image(context.Background())
	if err != nil || string(img) != "jpeg" {
		t.Fatalf("Image() = %q, %v", img, err)
	}
	if f.urls[0] != "https://example.invalid/a.jpg" {
		t.Errorf("fetched %q", f.urls[0])
	}

	if _, err := cam.Image(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.calls != 1 {
		t.Errorf("calls = %d, want cached second read", f.calls)
	}

	src.snap = picSnapshot("https://example.invalid/b.jpg")
	if _, err := cam.Image(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.calls != 2 {
		t.Errorf("calls = %d, new URL should refetch", f.calls)
	}
}

func TestSnapshotCamera_NoImage(t *testing.T) {
	tests := []struct {
		name string
		src  *staticSource
		f    *mockFetcher
	}{
		{"no snapshot", &staticSource{}, &mockFetcher{data: []byte("x")}},
		{"no url", &staticSource{snap: picSnapshot(nil), ok: true}, &mockFetcher{data: []byte("x")}},
		{"empty url", &staticSource{snap: picSnapshot(""), ok: true}, &mockFetcher{data: []byte("x")}},
		{"fetch fails", &staticSource{snap: picSnapshot("https://x/y.jpg"), ok: true}, &mockFetcher{err: errors.New("http 403")}},
		{"empty body", &staticSource{snap: picSnapshot("https://x/y.jpg"), ok: true}, &mockFetcher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NewSnapshotCamera(tt.f, tt.src, nil).Image(context.Background())
			if !errors.Is(err, ErrNoImage) || img != nil {
				t.Errorf("Image() = %v, %v, want ErrNoImage", img, err)
			}
		})
	}
}
