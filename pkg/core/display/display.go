// Package display holds the single visible media item and the most recently
// generated video and image artifacts.
package display

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vango-go/vai-duet/pkg/core"
)

// Kind identifies the media type of a view.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// ParseKind validates a show_media kind argument.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindVideo, KindImage:
		return Kind(s), nil
	default:
		return "", core.NewInvalidArgumentError(fmt.Sprintf("kind must be %q or %q", KindVideo, KindImage), "kind")
	}
}

// View is what the page should currently render.
type View struct {
	Kind    Kind   `json:"kind,omitempty"`
	URL     string `json:"url,omitempty"`
	Visible bool   `json:"visible"`
}

// Handle is a materialized local playback reference for a generated video.
// Release must be safe to call once; the State never calls it twice.
type Handle interface {
	URL() string
	Release()
}

// Materializer turns a generated video's source URI into a playback handle,
// typically by downloading it.
type Materializer interface {
	Materialize(ctx context.Context, sourceURI string) (Handle, error)
}

var errClosed = errors.New("display closed")

type cachedHandle struct {
	sourceURI string
	handle    Handle
}

// State is safe for concurrent use. Show calls are serialized so a slow video
// download cannot interleave with another show.
type State struct {
	materializer Materializer

	showMu sync.Mutex

	mu       sync.Mutex
	videoURI string
	imageURI string
	cached   *cachedHandle
	current  View
	closed   bool
}

// New creates an empty display state.
func New(m Materializer) *State {
	return &State{materializer: m}
}

// RecordVideo makes uri the latest generated video.
func (s *State) RecordVideo(uri string) {
	s.mu.Lock()
	s.videoURI = uri
	s.mu.Unlock()
}

// RecordImage makes dataURI the latest generated image.
func (s *State) RecordImage(dataURI string) {
	s.mu.Lock()
	s.imageURI = dataURI
	s.mu.Unlock()
}

// HasVideo reports whether a video was generated in this session.
func (s *State) HasVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoURI != ""
}

// HasImage reports whether an image was generated in this session.
func (s *State) HasImage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imageURI != ""
}

// Show makes the latest artifact of kind visible. It fails with a not_ready
// error, leaving the view unchanged, when no such artifact exists.
func (s *State) Show(ctx context.Context, kind Kind) (View, error) {
	s.showMu.Lock()
	defer s.showMu.Unlock()

	switch kind {
	case KindImage:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return View{}, errClosed
		}
		if s.imageURI == "" {
			return s.current, core.NewNotReadyError("no image generated yet")
		}
		s.current = View{Kind: KindImage, URL: s.imageURI, Visible: true}
		return s.current, nil

	case KindVideo:
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return View{}, errClosed
		}
		uri := s.videoURI
		if uri == "" {
			v := s.current
			s.mu.Unlock()
			return v, core.NewNotReadyError("no video generated yet")
		}
		// A cached handle is published under the same lock Close takes, so a
		// released handle is never shown.
		if s.cached != nil && s.cached.sourceURI == uri {
			s.current = View{Kind: KindVideo, URL: s.cached.handle.URL(), Visible: true}
			v := s.current
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		if s.materializer == nil {
			return s.Current(), fmt.Errorf("no video materializer configured")
		}
		h, err := s.materializer.Materialize(ctx, uri)
		if err != nil {
			return s.Current(), fmt.Errorf("materialize video: %w", err)
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			h.Release()
			return View{}, errClosed
		}
		old := s.cached
		s.cached = &cachedHandle{sourceURI: uri, handle: h}
		s.current = View{Kind: KindVideo, URL: h.URL(), Visible: true}
		v := s.current
		s.mu.Unlock()
		if old != nil {
			old.handle.Release()
		}
		return v, nil

	default:
		return s.Current(), core.NewInvalidArgumentError("unsupported media kind", "kind")
	}
}

// Hide clears the view. It reports whether anything was visible.
func (s *State) Hide() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.current.Visible
	s.current = View{}
	return was
}

// Current returns the current view.
func (s *State) Current() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close releases the cached playback handle. The state must not be used
// afterwards.
func (s *State) Close() {
	s.mu.Lock()
	old := s.cached
	s.cached = nil
	s.current = View{}
	s.closed = true
	s.mu.Unlock()
	if old != nil {
		old.handle.Release()
	}
}
