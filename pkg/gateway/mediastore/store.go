// Package mediastore keeps downloaded video bytes in memory and serves them
// back to the studio page under short-lived /media/{token} URLs.
package mediastore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-duet/pkg/core"
	"github.com/vango-go/vai-duet/pkg/core/display"
	"github.com/vango-go/vai-duet/pkg/core/media"
)

// PathPrefix is where the store is mounted.
const PathPrefix = "/media/"

// Fetcher downloads the bytes behind a generated video URI.
type Fetcher interface {
	FetchVideo(ctx context.Context, uri string) (media.Blob, error)
}

type item struct {
	data      []byte
	mimeType  string
	createdAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	fetcher  Fetcher
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*item
	total int64
}

func New(fetcher Fetcher, maxBytes int64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fetcher:  fetcher,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
		items:    make(map[string]*item),
	}
}

// Materialize downloads sourceURI and registers it under a fresh token.
func (s *Store) Materialize(ctx context.Context, sourceURI string) (display.Handle, error) {
	if s.fetcher == nil {
		return nil, core.NewNotReadyError("video downloads are not configured")
	}
	blob, err := s.fetcher.FetchVideo(ctx, sourceURI)
	if err != nil {
		return nil, err
	}
	if len(blob.Data) == 0 {
		return nil, core.NewGenerationFailedError("downloaded video is empty")
	}
	return s.Put(blob.Data, blob.MIMEType)
}

// Put stores data and returns its playback handle.
func (s *Store) Put(data []byte, mimeType string) (display.Handle, error) {
	size := int64(len(data))
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "video/mp4"
	}

	s.mu.Lock()
	if s.maxBytes > 0 && s.total+size > s.maxBytes {
		total := s.total
		s.mu.Unlock()
		s.logger.Warn("media store full", "size", size, "total", total, "max", s.maxBytes)
		return nil, core.NewGenerationFailedError(fmt.Sprintf("video of %d bytes exceeds media store capacity", size))
	}
	token := uuid.NewString()
	s.items[token] = &item{data: data, mimeType: mimeType, createdAt: s.now()}
	s.total += size
	s.mu.Unlock()

	return &handle{store: s, token: token}, nil
}

func (s *Store) release(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[token]
	if !ok {
		return
	}
	delete(s.items, token)
	s.total -= int64(len(it.data))
}

// Len reports the number of live handles.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Bytes reports the bytes held by live handles.
func (s *Store) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ServeHTTP serves GET/HEAD /media/{token} with range support.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, PathPrefix)
	if token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	it, ok := s.items[token]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", it.mimeType)
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, "", it.createdAt, bytes.NewReader(it.data))
}

type handle struct {
	store *Store
	token string
	once  sync.Once
}

func (h *handle) URL() string { return PathPrefix + h.token }

func (h *handle) Release() {
	h.once.Do(func() { h.store.release(h.token) })
}
