package tabs

import (
	"time"

	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
	"github.com/GriffinCanCode/AuroraGateway/internal/shared/id"
)

// State is a tab's place in its lifecycle:
// created -> active <-> inactive -> closed
type State string

const (
	StateCreated  State = "created"
	StateActive   State = "active"
	StateInactive State = "inactive"
	StateClosed   State = "closed"
)

// Status tracks the tab's current load
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// Tab is a copy of one tab's state
type Tab struct {
	ID        id.TabID           `json:"id"`
	TargetURL string             `json:"url"`
	RelayID   string             `json:"relay"`
	Title     string             `json:"title,omitempty"`
	State     State              `json:"state"`
	Status    Status             `json:"status"`
	Error     string             `json:"error,omitempty"`
	Frame     gateway.FrameState `json:"frame"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// IsActive reports whether this is the active tab
func (t Tab) IsActive() bool {
	return t.State == StateActive
}

// EventType names a tab event
type EventType string

const (
	EventCreated    EventType = "created"
	EventActivated  EventType = "activated"
	EventNavigating EventType = "navigating"
	EventLoaded     EventType = "loaded"
	EventFailed     EventType = "failed"
	EventClosed     EventType = "closed"
)

// Event reports a tab change to subscribers
type Event struct {
	Type  EventType `json:"type"`
	TabID id.TabID  `json:"tab_id"`
	Tab   Tab       `json:"tab"`
	Time  time.Time `json:"time"`
}

// Stats summarizes the manager
type Stats struct {
	Total    int      `json:"total"`
	Loading  int      `json:"loading"`
	Failed   int      `json:"failed"`
	ActiveID id.TabID `json:"active_id,omitempty"`
}
