package tabs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
	"github.com/GriffinCanCode/AuroraGateway/internal/shared/id"
)

var (
	// ErrTabNotFound is returned for unknown or closed tab ids
	ErrTabNotFound = errors.New("tab not found")
	// ErrShuttingDown is returned for loads requested after Shutdown
	ErrShuttingDown = errors.New("tab manager shutting down")
)

// Loader runs one navigation into a frame
type Loader interface {
	Load(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error)
}

// tab is the manager's private record; callers only see Tab copies
type tab struct {
	info   Tab
	frame  *gateway.Frame
	cancel context.CancelFunc
	// seq identifies the navigation whose outcome may update info
	seq uint64
}

// pinnedFrame hands a load the generation claimed when it was dispatched,
// so a superseded goroutine that runs late cannot claim past a newer load
type pinnedFrame struct {
	*gateway.Frame
	gen uint64
}

func (p pinnedFrame) Claim() uint64 { return p.gen }

// Manager owns the tabs and the frame each one renders into
type Manager struct {
	mu       sync.RWMutex
	tabs     map[id.TabID]*tab // Protected by mu
	order    []id.TabID        // creation order, protected by mu
	activeID id.TabID          // Protected by mu

	listenersMu sync.RWMutex
	listeners   map[int]func(Event)
	nextSub     int

	loader   Loader
	ids      *id.Generator
	writable bool
	ctx      context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Option configures a Manager
type Option func(*Manager)

// WithMetrics adds metrics tracking to the manager
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the manager's logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithIDGenerator replaces the default tab id generator
func WithIDGenerator(gen *id.Generator) Option {
	return func(m *Manager) { m.ids = gen }
}

// WithSrcdocFrames makes frames refuse direct document writes, so every
// page is delivered through the iframe srcdoc attribute
func WithSrcdocFrames() Option {
	return func(m *Manager) { m.writable = false }
}

// NewManager creates a tab manager that runs loads with loader
func NewManager(loader Loader, opts ...Option) *Manager {
	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		tabs:      make(map[id.TabID]*tab),
		listeners: make(map[int]func(Event)),
		loader:    loader,
		ids:       id.Default(),
		writable:  true,
		ctx:       ctx,
		stop:      stop,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a tab and makes it active. A non-empty target starts a load;
// otherwise the tab shows the placeholder.
func (m *Manager) Create(req gateway.Request) (Tab, error) {
	now := time.Now()
	t := &tab{
		info: Tab{
			ID:        m.ids.NewTabID(),
			TargetURL: req.TargetURL,
			RelayID:   req.Relay,
			State:     StateCreated,
			Status:    StatusIdle,
			CreatedAt: now,
			UpdatedAt: now,
		},
		frame: gateway.NewFrame(m.writable),
	}

	m.mu.Lock()
	if req.TargetURL != "" && m.ctx.Err() != nil {
		m.mu.Unlock()
		return Tab{}, ErrShuttingDown
	}
	m.tabs[t.info.ID] = t
	m.order = append(m.order, t.info.ID)
	events := []Event{m.event(EventCreated, t)}
	events = append(events, m.activateLocked(t.info.ID)...)
	if req.TargetURL != "" {
		events = append(events, m.startLocked(t, req))
	}
	snapshot := t.snapshot()
	count := len(m.tabs)
	m.mu.Unlock()

	m.metrics.IncTabsTotal()
	m.metrics.SetTabsActive(count)
	m.emit(events...)

	m.logger.Info("tab created",
		zap.String("tab_id", snapshot.ID.String()),
		zap.String("url", req.TargetURL),
		zap.String("relay", req.Relay))
	return snapshot, nil
}

// Navigate loads a new target into an existing tab, superseding any load
// still in flight
func (m *Manager) Navigate(tabID id.TabID, req gateway.Request) (Tab, error) {
	if req.TargetURL == "" {
		return Tab{}, gateway.ErrEmptyTarget
	}

	m.mu.Lock()
	t, ok := m.tabs[tabID]
	if !ok {
		m.mu.Unlock()
		return Tab{}, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return Tab{}, ErrShuttingDown
	}
	ev := m.startLocked(t, req)
	snapshot := t.snapshot()
	m.mu.Unlock()

	m.emit(ev)
	return snapshot, nil
}

// Activate makes a tab the active one
func (m *Manager) Activate(tabID id.TabID) (Tab, error) {
	m.mu.Lock()
	t, ok := m.tabs[tabID]
	if !ok {
		m.mu.Unlock()
		return Tab{}, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}
	events := m.activateLocked(tabID)
	snapshot := t.snapshot()
	m.mu.Unlock()

	m.emit(events...)
	return snapshot, nil
}

// Close destroys a tab and its frame. Closing the active tab activates the
// most recently created remaining tab, or leaves no tab active.
func (m *Manager) Close(tabID id.TabID) error {
	m.mu.Lock()
	t, ok := m.tabs[tabID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}

	if t.cancel != nil {
		t.cancel()
	}
	t.seq++
	t.frame.Reset()
	t.info.State = StateClosed
	t.info.UpdatedAt = time.Now()
	delete(m.tabs, tabID)
	for i, o := range m.order {
		if o == tabID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	events := []Event{m.event(EventClosed, t)}
	if m.activeID == tabID {
		m.activeID = ""
		if n := len(m.order); n > 0 {
			events = append(events, m.activateLocked(m.order[n-1])...)
		}
	}
	count := len(m.tabs)
	m.mu.Unlock()

	m.metrics.SetTabsActive(count)
	m.emit(events...)
	m.logger.Info("tab closed", zap.String("tab_id", tabID.String()))
	return nil
}

// Get returns a copy of a tab
func (m *Manager) Get(tabID id.TabID) (Tab, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tabs[tabID]
	if !ok {
		return Tab{}, false
	}
	return t.snapshot(), true
}

// Frame returns the rendering target of a tab
func (m *Manager) Frame(tabID id.TabID) (*gateway.Frame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tabs[tabID]
	if !ok {
		return nil, false
	}
	return t.frame, true
}

// Active returns the active tab, if any
func (m *Manager) Active() (Tab, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.activeID == "" {
		return Tab{}, false
	}
	t, ok := m.tabs[m.activeID]
	if !ok {
		return Tab{}, false
	}
	return t.snapshot(), true
}

// List returns every open tab in creation order
func (m *Manager) List() []Tab {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Tab, 0, len(m.order))
	for _, tabID := range m.order {
		out = append(out, m.tabs[tabID].snapshot())
	}
	return out
}

// Stats returns manager statistics
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Total: len(m.tabs), ActiveID: m.activeID}
	for _, t := range m.tabs {
		switch t.info.Status {
		case StatusLoading:
			s.Loading++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Subscribe registers fn for tab events and returns a function that
// removes it. fn runs on the goroutine that caused the event and must not
// block.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.listenersMu.Lock()
	key := m.nextSub
	m.nextSub++
	m.listeners[key] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, key)
		m.listenersMu.Unlock()
	}
}

// Wait blocks until every started load has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every load in flight and waits for them to return
func (m *Manager) Shutdown(ctx context.Context) error {
	// loads start under mu, so none can be added once stop is visible
	m.mu.Lock()
	m.stop()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activateLocked must hold mu
func (m *Manager) activateLocked(tabID id.TabID) []Event {
	if m.activeID == tabID {
		return nil
	}

	var events []Event
	now := time.Now()
	if prev, ok := m.tabs[m.activeID]; ok {
		prev.info.State = StateInactive
		prev.info.UpdatedAt = now
	}

	t := m.tabs[tabID]
	t.info.State = StateActive
	t.info.UpdatedAt = now
	m.activeID = tabID
	events = append(events, m.event(EventActivated, t))
	return events
}

// startLocked must hold mu and is only called while the manager is running.
// It cancels the tab's previous load, claims the frame's next generation and
// runs the new load in the background.
func (m *Manager) startLocked(t *tab, req gateway.Request) Event {
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	t.cancel = cancel
	t.seq++

	t.info.TargetURL = req.TargetURL
	t.info.RelayID = req.Relay
	t.info.Status = StatusLoading
	t.info.Error = ""
	t.info.UpdatedAt = time.Now()

	target := pinnedFrame{Frame: t.frame, gen: t.frame.Claim()}
	m.wg.Add(1)
	go m.run(ctx, t.info.ID, target, t.seq, req)
	return m.event(EventNavigating, t)
}

func (m *Manager) run(ctx context.Context, tabID id.TabID, frame gateway.Target, seq uint64, req gateway.Request) {
	defer m.wg.Done()

	var (
		res *gateway.Result
		err error
	)
	func() {
		// a broken page must not take the manager down with it
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("load panicked: %v", r)
				m.logger.Error("tab load panicked",
					zap.String("tab_id", tabID.String()),
					zap.Any("panic", r))
			}
		}()
		res, err = m.loader.Load(ctx, req, frame)
	}()

	if errors.Is(err, gateway.ErrStaleGeneration) || errors.Is(err, context.Canceled) {
		return
	}
	m.finish(tabID, seq, res, err)
}

func (m *Manager) finish(tabID id.TabID, seq uint64, res *gateway.Result, err error) {
	m.mu.Lock()
	t, ok := m.tabs[tabID]
	if !ok || t.seq != seq {
		m.mu.Unlock()
		return
	}

	t.info.UpdatedAt = time.Now()
	var ev Event
	if err != nil {
		t.info.Status = StatusFailed
		t.info.Error = err.Error()
		ev = m.event(EventFailed, t)
	} else {
		t.info.Status = StatusLoaded
		t.info.Title = res.Title
		t.info.TargetURL = res.TargetURL
		t.info.RelayID = res.Relay
		ev = m.event(EventLoaded, t)
	}
	m.mu.Unlock()

	m.emit(ev)
	if err != nil {
		m.logger.Warn("tab load failed",
			zap.String("tab_id", tabID.String()),
			zap.Error(err))
	}
}

func (m *Manager) event(typ EventType, t *tab) Event {
	return Event{Type: typ, TabID: t.info.ID, Tab: t.snapshot(), Time: time.Now()}
}

func (m *Manager) emit(events ...Event) {
	if len(events) == 0 {
		return
	}

	m.listenersMu.RLock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// snapshot must be called with the manager lock held
func (t *tab) snapshot() Tab {
	info := t.info
	info.Frame = t.frame.State()
	info.Frame.Content = ""
	return info
}
