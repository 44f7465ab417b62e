package http

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/GriffinCanCode/AuroraGateway/internal/domain/session"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/settings"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/tabs"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
	"github.com/GriffinCanCode/AuroraGateway/internal/shared/id"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"deref":   func(b *bool) bool { return b != nil && *b },
	"offline": func(b *bool) bool { return b != nil && !*b },
}).ParseFS(templateFS, "templates/*.html.tmpl"))

// GatewayPage is the data behind the gateway page
type GatewayPage struct {
	Tabs     []tabs.Tab
	Active   *tabs.Tab
	Frames   []FrameView
	Relays   []session.RelayStatus
	Relay    string
	Settings settings.Settings
	// Unprobed is set while some relay has no probe result yet
	Unprobed bool
}

// FrameView is one tab's iframe
type FrameView struct {
	ID         id.TabID
	Active     bool
	Mode       string
	Generation uint64
	Srcdoc     string
	Source     template.URL
}

// Placeholder is the document shown by tabs with nothing loaded
type Placeholder struct {
	Title   string
	Message string
}

func renderGateway(w io.Writer, page GatewayPage) error {
	return pages.ExecuteTemplate(w, "gateway.html.tmpl", page)
}

func renderPlaceholder(w io.Writer, p Placeholder) error {
	return pages.ExecuteTemplate(w, "placeholder.html.tmpl", p)
}

// frameView exposes a frame to the page. Only data: sources are trusted
// as iframe URLs.
func frameView(tab tabs.Tab, state gateway.FrameState) FrameView {
	v := FrameView{
		ID:         tab.ID,
		Active:     tab.IsActive(),
		Mode:       string(state.Mode),
		Generation: state.Generation,
	}
	switch state.Mode {
	case gateway.ModeSrcdoc:
		v.Srcdoc = state.Content
	case gateway.ModeSource:
		if strings.HasPrefix(strings.ToLower(state.Content), "data:") {
			v.Source = template.URL(state.Content)
		} else {
			v.Mode = string(gateway.ModeDocument)
		}
	}
	return v
}

func placeholderFor(tab tabs.Tab) Placeholder {
	switch tab.Status {
	case tabs.StatusLoading:
		return Placeholder{Title: "Loading", Message: tab.TargetURL}
	case tabs.StatusFailed:
		return Placeholder{Title: "Failed to load", Message: tab.Error}
	default:
		return Placeholder{Title: "New tab", Message: "Enter an address to browse through a relay."}
	}
}
