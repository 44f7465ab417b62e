package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/domain/settings"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/tabs"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
	"github.com/GriffinCanCode/AuroraGateway/internal/shared/id"
)

// DefaultSearchTemplate turns free text typed into the address bar into a search
const DefaultSearchTemplate = "https://duckduckgo.com/html/?q="

// ErrEmptyInput is returned when a navigation names no target
var ErrEmptyInput = errors.New("nothing to navigate to")

// Prober reports relay reachability
type Prober interface {
	ProbeAll(ctx context.Context) map[string]bool
}

// Navigation is one user request to load something
type Navigation struct {
	// Input is address-bar text or a full URL
	Input string `json:"url"`
	Relay string `json:"relay"`
	// Settings is a settings blob; empty means the persisted settings
	Settings string `json:"settings,omitempty"`
}

// RelayStatus is a relay with its last probe result
type RelayStatus struct {
	relay.Descriptor
	Primary bool `json:"primary"`
	// Online is nil until the relay has been probed
	Online   *bool     `json:"online,omitempty"`
	ProbedAt time.Time `json:"probed_at,omitempty"`
}

// Session is the gateway's controller
type Session struct {
	tabs    *tabs.Manager
	catalog *relay.Catalog
	store   *settings.Store
	prober  Prober
	search  string
	logger  *zap.Logger

	mu       sync.RWMutex
	online   map[string]bool
	probedAt time.Time
}

// Option configures a Session
type Option func(*Session)

// WithSearchTemplate sets the template free text is appended to
func WithSearchTemplate(tmpl string) Option {
	return func(s *Session) {
		if tmpl != "" {
			s.search = tmpl
		}
	}
}

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session. A nil store keeps settings in memory; a nil
// prober reports every relay as unprobed.
func New(tabMgr *tabs.Manager, catalog *relay.Catalog, store *settings.Store, prober Prober, opts ...Option) *Session {
	if catalog == nil {
		catalog = relay.NewCatalog(nil)
	}
	if store == nil {
		store = settings.NewMemoryStore()
	}
	s := &Session{
		tabs:    tabMgr,
		catalog: catalog,
		store:   store,
		prober:  prober,
		search:  DefaultSearchTemplate,
		logger:  zap.NewNop(),
		online:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tabs exposes the tab manager
func (s *Session) Tabs() *tabs.Manager {
	return s.tabs
}

// Catalog returns the relay catalog
func (s *Session) Catalog() *relay.Catalog {
	return s.catalog
}

// Open creates a new active tab. Empty input opens a placeholder tab.
func (s *Session) Open(nav Navigation) (tabs.Tab, error) {
	return s.tabs.Create(s.request(nav))
}

// NavigateActive loads into the active tab, creating one if none is open.
// This is what a gateway URL carrying proxy= and url= parameters does.
func (s *Session) NavigateActive(nav Navigation) (tabs.Tab, error) {
	req := s.request(nav)
	if req.TargetURL == "" {
		return tabs.Tab{}, ErrEmptyInput
	}
	if active, ok := s.tabs.Active(); ok {
		tab, err := s.tabs.Navigate(active.ID, req)
		// closed between the two calls
		if !errors.Is(err, tabs.ErrTabNotFound) {
			return tab, err
		}
	}
	return s.tabs.Create(req)
}

// Navigate loads into the given tab
func (s *Session) Navigate(tabID id.TabID, nav Navigation) (tabs.Tab, error) {
	req := s.request(nav)
	if req.TargetURL == "" {
		return tabs.Tab{}, ErrEmptyInput
	}
	return s.tabs.Navigate(tabID, req)
}

// Activate makes the tab the active one
func (s *Session) Activate(tabID id.TabID) (tabs.Tab, error) {
	return s.tabs.Activate(tabID)
}

// Close closes the tab
func (s *Session) Close(tabID id.TabID) error {
	return s.tabs.Close(tabID)
}

// Relays lists the catalog with the last probe results
func (s *Session) Relays() []RelayStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	primary := s.catalog.PrimaryID()
	out := make([]RelayStatus, 0, len(s.catalog.List()))
	for _, d := range s.catalog.List() {
		status := RelayStatus{Descriptor: d, Primary: d.ID == primary}
		if online, ok := s.online[d.ID]; ok {
			status.Online = &online
			status.ProbedAt = s.probedAt
		}
		out = append(out, status)
	}
	return out
}

// Probe checks every relay and returns the updated list
func (s *Session) Probe(ctx context.Context) []RelayStatus {
	if s.prober == nil {
		return s.Relays()
	}

	results := s.prober.ProbeAll(ctx)
	online := 0
	for _, ok := range results {
		if ok {
			online++
		}
	}
	s.logger.Info("relays probed", zap.Int("relays", len(results)), zap.Int("online", online))

	s.mu.Lock()
	for relayID, ok := range results {
		s.online[relayID] = ok
	}
	s.probedAt = time.Now()
	s.mu.Unlock()

	return s.Relays()
}

// Settings returns the persisted settings
func (s *Session) Settings() settings.Settings {
	return s.store.Load()
}

// SaveSettings persists the settings. Tabs already open keep the settings
// they were loaded with until they navigate again.
func (s *Session) SaveSettings(v settings.Settings) error {
	if err := s.store.Save(v); err != nil {
		return err
	}
	s.logger.Info("settings saved", zap.Bool("debug", v.Debug))
	return nil
}

// request resolves a navigation into a pipeline request. Unknown relays
// fall back to the primary; an unreadable settings blob falls back to the
// persisted settings.
func (s *Session) request(nav Navigation) gateway.Request {
	current := s.store.Load()
	if nav.Settings != "" {
		parsed, err := settings.Parse(nav.Settings)
		if err != nil {
			s.logger.Debug("ignoring navigation settings", zap.Error(err))
		} else {
			current = parsed
		}
	}

	// relay-wrapped addresses are unwrapped later by the pipeline
	return gateway.Request{
		Relay:     s.catalog.BaseFor(nav.Relay).ID,
		TargetURL: urlkind.FromInput(nav.Input, s.search),
		Settings:  current.Blob(),
		Debug:     current.Debug,
	}
}
