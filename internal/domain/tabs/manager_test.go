package tabs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
)

// loaderFunc adapts a function to Loader
type loaderFunc func(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error)

func (f loaderFunc) Load(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error) {
	return f(ctx, req, t)
}

// writingLoader renders "<p>" + url + "</p>" into the target
func writingLoader() Loader {
	return loaderFunc(func(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error) {
		gen := t.Claim()
		if err := t.WriteDocument(gen, "<p>"+req.TargetURL+"</p>"); err != nil {
			return nil, err
		}
		return &gateway.Result{TargetURL: req.TargetURL, Relay: req.Relay, Title: "title of " + req.TargetURL}, nil
	})
}

func newTestManager(t *testing.T, loader Loader) *Manager {
	m := NewManager(loader, WithLogger(zaptest.NewLogger(t)), WithMetrics(monitoring.NewMetrics()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func TestCreateEmptyShowsPlaceholder(t *testing.T) {
	m := newTestManager(t, writingLoader())

	tab, err := m.Create(gateway.Request{})
	require.NoError(t, err)
	m.Wait()

	assert.Equal(t, StateActive, tab.State)
	assert.Equal(t, StatusIdle, tab.Status)
	assert.Equal(t, gateway.ModeEmpty, tab.Frame.Mode)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, tab.ID, active.ID)
}

func TestCreateLoadsTarget(t *testing.T) {
	m := newTestManager(t, writingLoader())

	tab, err := m.Create(gateway.Request{TargetURL: "https://example.com/", Relay: "corsproxy"})
	require.NoError(t, err)
	assert.Equal(t, StatusLoading, tab.Status)
	m.Wait()

	got, ok := m.Get(tab.ID)
	require.True(t, ok)
	assert.Equal(t, StatusLoaded, got.Status)
	assert.Equal(t, "title of https://example.com/", got.Title)
	assert.Equal(t, gateway.ModeDocument, got.Frame.Mode)
	assert.Empty(t, got.Frame.Content)

	frame, ok := m.Frame(tab.ID)
	require.True(t, ok)
	assert.Equal(t, "<p>https://example.com/</p>", frame.State().Content)
}

func TestTabIDsIncrease(t *testing.T) {
	m := newTestManager(t, writingLoader())

	var prev string
	for i := 0; i < 20; i++ {
		tab, err := m.Create(gateway.Request{})
		require.NoError(t, err)
		assert.Greater(t, tab.ID.String(), prev)
		prev = tab.ID.String()
	}
}

func TestOnlyOneActive(t *testing.T) {
	m := newTestManager(t, writingLoader())

	first, _ := m.Create(gateway.Request{})
	second, _ := m.Create(gateway.Request{})

	got, _ := m.Get(first.ID)
	assert.Equal(t, StateInactive, got.State)
	got, _ = m.Get(second.ID)
	assert.Equal(t, StateActive, got.State)

	_, err := m.Activate(first.ID)
	require.NoError(t, err)

	active := 0
	for _, tab := range m.List() {
		if tab.IsActive() {
			active++
			assert.Equal(t, first.ID, tab.ID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestCloseActiveActivatesRemaining(t *testing.T) {
	m := newTestManager(t, writingLoader())

	first, _ := m.Create(gateway.Request{})
	second, _ := m.Create(gateway.Request{})

	require.NoError(t, m.Close(second.ID))

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, m.Close(first.ID))
	_, ok = m.Active()
	assert.False(t, ok)
	assert.Empty(t, m.List())
}

func TestCloseActivatesMostRecentlyCreated(t *testing.T) {
	m := newTestManager(t, writingLoader())

	a, _ := m.Create(gateway.Request{})
	b, _ := m.Create(gateway.Request{})
	c, _ := m.Create(gateway.Request{})

	_, err := m.Activate(a.ID)
	require.NoError(t, err)
	require.NoError(t, m.Close(a.ID))

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, c.ID, active.ID)

	got, _ := m.Get(b.ID)
	assert.Equal(t, StateInactive, got.State)
}

func TestCloseInactiveKeepsActive(t *testing.T) {
	m := newTestManager(t, writingLoader())

	first, _ := m.Create(gateway.Request{})
	second, _ := m.Create(gateway.Request{})

	require.NoError(t, m.Close(first.ID))

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)
}

func TestUnknownTab(t *testing.T) {
	m := newTestManager(t, writingLoader())

	_, err := m.Activate("tab_missing")
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.ErrorIs(t, m.Close("tab_missing"), ErrTabNotFound)
	_, err = m.Navigate("tab_missing", gateway.Request{TargetURL: "https://x.test/"})
	assert.ErrorIs(t, err, ErrTabNotFound)

	tab, _ := m.Create(gateway.Request{})
	require.NoError(t, m.Close(tab.ID))
	assert.ErrorIs(t, m.Close(tab.ID), ErrTabNotFound)
}

func TestFailureStaysInItsTab(t *testing.T) {
	loader := loaderFunc(func(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error) {
		gen := t.Claim()
		if req.TargetURL == "https://broken.test/" {
			_ = t.WriteDocument(gen, "Failed to load")
			return nil, errors.New("relay unreachable")
		}
		if req.TargetURL == "https://panic.test/" {
			panic("page exploded")
		}
		_ = t.WriteDocument(gen, "ok")
		return &gateway.Result{TargetURL: req.TargetURL}, nil
	})
	m := newTestManager(t, loader)

	good, _ := m.Create(gateway.Request{TargetURL: "https://good.test/"})
	broken, _ := m.Create(gateway.Request{TargetURL: "https://broken.test/"})
	exploded, _ := m.Create(gateway.Request{TargetURL: "https://panic.test/"})
	m.Wait()

	got, _ := m.Get(good.ID)
	assert.Equal(t, StatusLoaded, got.Status)

	got, _ = m.Get(broken.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "relay unreachable", got.Error)

	got, _ = m.Get(exploded.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "page exploded")

	assert.Len(t, m.List(), 3)
	assert.Equal(t, 2, m.Stats().Failed)
}

func TestNavigateSupersedesInFlightLoad(t *testing.T) {
	release := make(chan struct{})
	var cancelled sync.WaitGroup
	cancelled.Add(1)

	loader := loaderFunc(func(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error) {
		gen := t.Claim()
		if req.TargetURL == "https://slow.test/" {
			select {
			case <-ctx.Done():
				cancelled.Done()
				<-release
				return nil, ctx.Err()
			case <-release:
			}
		}
		if err := t.WriteDocument(gen, req.TargetURL); err != nil {
			return nil, err
		}
		return &gateway.Result{TargetURL: req.TargetURL, Title: req.TargetURL}, nil
	})
	m := newTestManager(t, loader)

	tab, _ := m.Create(gateway.Request{TargetURL: "https://slow.test/"})
	_, err := m.Navigate(tab.ID, gateway.Request{TargetURL: "https://fast.test/"})
	require.NoError(t, err)

	cancelled.Wait()
	close(release)
	m.Wait()

	got, _ := m.Get(tab.ID)
	assert.Equal(t, StatusLoaded, got.Status)
	assert.Equal(t, "https://fast.test/", got.TargetURL)

	frame, _ := m.Frame(tab.ID)
	assert.Equal(t, "https://fast.test/", frame.State().Content)
}

func TestCloseCancelsLoad(t *testing.T) {
	started := make(chan struct{})
	loader := loaderFunc(func(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error) {
		t.Claim()
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := newTestManager(t, loader)

	tab, _ := m.Create(gateway.Request{TargetURL: "https://hang.test/"})
	<-started
	require.NoError(t, m.Close(tab.ID))

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("closing the tab did not cancel its load")
	}
}

func TestEvents(t *testing.T) {
	m := newTestManager(t, writingLoader())

	var mu sync.Mutex
	var types []EventType
	unsubscribe := m.Subscribe(func(ev Event) {
		mu.Lock()
		types = append(types, ev.Type)
		mu.Unlock()
	})

	tab, _ := m.Create(gateway.Request{TargetURL: "https://example.com/"})
	m.Wait()
	require.NoError(t, m.Close(tab.ID))

	unsubscribe()
	_, _ = m.Create(gateway.Request{})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventCreated, EventActivated, EventNavigating, EventLoaded, EventClosed}, types)
}

func TestSrcdocFrames(t *testing.T) {
	m := NewManager(writingLoader(), WithSrcdocFrames())

	tab, _ := m.Create(gateway.Request{TargetURL: "https://example.com/"})
	m.Wait()

	got, _ := m.Get(tab.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, gateway.ErrWriteBlocked.Error())
}

func TestLateSupersededLoadKeepsNewerPage(t *testing.T) {
	newerClaimed := make(chan struct{})
	olderClaimed := make(chan struct{})

	loader := loaderFunc(func(ctx context.Context, req gateway.Request, t gateway.Target) (*gateway.Result, error) {
		if req.TargetURL == "https://a.test/" {
			// scheduled after the newer load has already claimed the frame
			<-newerClaimed
			t.Claim()
			close(olderClaimed)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		gen := t.Claim()
		close(newerClaimed)
		<-olderClaimed
		if err := t.WriteDocument(gen, req.TargetURL); err != nil {
			return nil, err
		}
		return &gateway.Result{TargetURL: req.TargetURL, Title: "b"}, nil
	})
	m := newTestManager(t, loader)

	tab, err := m.Create(gateway.Request{TargetURL: "https://a.test/"})
	require.NoError(t, err)
	_, err = m.Navigate(tab.ID, gateway.Request{TargetURL: "https://b.test/"})
	require.NoError(t, err)
	m.Wait()

	got, _ := m.Get(tab.ID)
	assert.Equal(t, StatusLoaded, got.Status)
	assert.Equal(t, "https://b.test/", got.TargetURL)
	assert.Equal(t, gateway.ModeDocument, got.Frame.Mode)

	frame, _ := m.Frame(tab.ID)
	assert.Equal(t, "https://b.test/", frame.State().Content)
}

func TestLoadsRejectedAfterShutdown(t *testing.T) {
	m := newTestManager(t, writingLoader())

	tab, err := m.Create(gateway.Request{})
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))

	_, err = m.Create(gateway.Request{TargetURL: "https://late.test/"})
	assert.ErrorIs(t, err, ErrShuttingDown)
	_, err = m.Navigate(tab.ID, gateway.Request{TargetURL: "https://late.test/"})
	assert.ErrorIs(t, err, ErrShuttingDown)

	got, _ := m.Get(tab.ID)
	assert.Equal(t, StatusIdle, got.Status)
	assert.Len(t, m.List(), 1)
}
