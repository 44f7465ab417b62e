package gateway

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrStaleGeneration is returned when a load finishes after a newer one
	// claimed the same frame
	ErrStaleGeneration = errors.New("stale frame generation")
	// ErrWriteBlocked is returned when a frame refuses direct document writes
	ErrWriteBlocked = errors.New("document write blocked")
)

// Target is the frame a load renders into. Every write carries the
// generation returned by Claim; writes from a superseded load fail with
// ErrStaleGeneration.
type Target interface {
	Claim() uint64
	WriteDocument(gen uint64, html string) error
	SetSrcdoc(gen uint64, html string) error
	SetSource(gen uint64, src string) error
}

// RenderMode says how a frame's content reaches the browser
type RenderMode string

const (
	// ModeEmpty frames show the placeholder
	ModeEmpty RenderMode = "empty"
	// ModeDocument frames are served as a document at the frame URL
	ModeDocument RenderMode = "document"
	// ModeSrcdoc frames are rendered through the iframe srcdoc attribute
	ModeSrcdoc RenderMode = "srcdoc"
	// ModeSource frames point the iframe src at a URL, such as a data: URL
	ModeSource RenderMode = "source"
)

// FrameState is a point-in-time copy of a frame
type FrameState struct {
	Generation uint64     `json:"generation"`
	Mode       RenderMode `json:"mode"`
	Content    string     `json:"-"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Frame is an in-memory rendering target
type Frame struct {
	mu       sync.RWMutex
	gen      uint64
	mode     RenderMode
	content  string
	updated  time.Time
	writable bool
}

// NewFrame creates an empty frame. A frame that is not writable rejects
// WriteDocument the way a sandbox without same-origin access does.
func NewFrame(writable bool) *Frame {
	return &Frame{mode: ModeEmpty, writable: writable, updated: time.Now()}
}

// Claim starts a new generation, superseding any load in flight
func (f *Frame) Claim() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	return f.gen
}

// Generation returns the current generation
func (f *Frame) Generation() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.gen
}

// WriteDocument replaces the frame's document
func (f *Frame) WriteDocument(gen uint64, html string) error {
	return f.set(gen, ModeDocument, html, true)
}

// SetSrcdoc stores html as the iframe's inline source
func (f *Frame) SetSrcdoc(gen uint64, html string) error {
	return f.set(gen, ModeSrcdoc, html, false)
}

// SetSource points the frame at a URL
func (f *Frame) SetSource(gen uint64, src string) error {
	return f.set(gen, ModeSource, src, false)
}

// Reset clears the frame back to the placeholder and supersedes any load
func (f *Frame) Reset() {
	f.mu.Lock()
	f.gen++
	f.mode = ModeEmpty
	f.content = ""
	f.updated = time.Now()
	f.mu.Unlock()
}

// State returns a copy of the frame
func (f *Frame) State() FrameState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stateLocked()
}

func (f *Frame) set(gen uint64, mode RenderMode, content string, needsWrite bool) error {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return ErrStaleGeneration
	}
	if needsWrite && !f.writable {
		f.mu.Unlock()
		return ErrWriteBlocked
	}
	f.mode = mode
	f.content = content
	f.updated = time.Now()
	f.mu.Unlock()
	return nil
}

func (f *Frame) stateLocked() FrameState {
	return FrameState{
		Generation: f.gen,
		Mode:       f.mode,
		Content:    f.content,
		UpdatedAt:  f.updated,
	}
}
