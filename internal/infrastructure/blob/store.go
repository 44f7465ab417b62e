// Package blob keeps short-lived in-memory objects, such as rewritten
// stylesheets, that frames load through /blob/<id>.
package blob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/shared/id"
)

// PathPrefix is the gateway path blobs are served under
const PathPrefix = "/blob/"

const (
	DefaultTTL      = 30 * time.Minute
	DefaultMaxBytes = 64 << 20
)

var (
	// ErrTooLarge is returned for a single blob larger than the store
	ErrTooLarge = errors.New("blob larger than store capacity")
	// ErrNotFound is returned for unknown or expired ids
	ErrNotFound = errors.New("blob not found")
)

// Blob is one stored object
type Blob struct {
	ID          id.BlobID
	ContentType string
	Data        []byte
	Created     time.Time
	Expires     time.Time
}

// Store holds blobs until they expire or space runs out, evicting the
// oldest first.
type Store struct {
	mu       sync.Mutex
	blobs    map[id.BlobID]*Blob
	order    []id.BlobID
	size     int64
	ttl      time.Duration
	maxBytes int64
	now      func() time.Time
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Config configures a Store
type Config struct {
	TTL      time.Duration
	MaxBytes int64
}

// NewStore creates a store
func NewStore(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		blobs:    make(map[id.BlobID]*Blob),
		ttl:      cfg.TTL,
		maxBytes: cfg.MaxBytes,
		now:      time.Now,
		logger:   logger,
		metrics:  metrics,
	}
}

// Href returns the gateway path for a blob id
func Href(blobID id.BlobID) string {
	return PathPrefix + blobID.String()
}

// Store saves data and returns the href that serves it
func (s *Store) Store(contentType string, data []byte) (string, error) {
	size := int64(len(data))
	if size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	now := s.now()
	b := &Blob{
		ID:          id.NewBlobID(),
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
		Created:     now,
		Expires:     now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sweepLocked(now)
	for s.size+size > s.maxBytes && len(s.order) > 0 {
		s.removeLocked(s.order[0])
	}
	s.blobs[b.ID] = b
	s.order = append(s.order, b.ID)
	s.size += size
	n := len(s.blobs)
	s.mu.Unlock()

	s.metrics.SetBlobsStored(n)
	return Href(b.ID), nil
}

// Get returns a live blob
func (s *Store) Get(blobID string) (*Blob, error) {
	if !id.IsValidBlobID(blobID) {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[id.BlobID(blobID)]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(b.Expires) {
		s.removeLocked(b.ID)
		return nil, ErrNotFound
	}
	return b, nil
}

// Revoke drops a blob
func (s *Store) Revoke(blobID string) bool {
	s.mu.Lock()
	_, ok := s.blobs[id.BlobID(blobID)]
	if ok {
		s.removeLocked(id.BlobID(blobID))
	}
	n := len(s.blobs)
	s.mu.Unlock()

	s.metrics.SetBlobsStored(n)
	return ok
}

// Len returns the number of stored blobs
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// Size returns the stored byte count
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Sweep drops expired blobs and returns how many were removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	removed := s.sweepLocked(s.now())
	n := len(s.blobs)
	s.mu.Unlock()

	s.metrics.SetBlobsStored(n)
	return removed
}

// Run sweeps every interval until ctx is done
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("swept expired blobs", zap.Int("count", n))
			}
		}
	}
}

// blobs expire in insertion order since the ttl is fixed
func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for len(s.order) > 0 {
		b := s.blobs[s.order[0]]
		if b != nil && now.Before(b.Expires) {
			break
		}
		s.removeLocked(s.order[0])
		removed++
	}
	return removed
}

func (s *Store) removeLocked(blobID id.BlobID) {
	if b, ok := s.blobs[blobID]; ok {
		s.size -= int64(len(b.Data))
		delete(s.blobs, blobID)
	}
	for i, o := range s.order {
		if o == blobID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
