// Package session is the gateway's single controller.
//
// A Session ties the tab manager to the relay catalog, the persisted
// settings and the address-bar search template. Every user action the
// HTTP surface exposes goes through it:
//
//   - Open: new tab from address-bar input
//   - NavigateActive: load into the active tab, creating one when none is open
//   - Navigate, Activate, Close: per-tab operations
//   - Relays, Probe: relay list with last known reachability
//   - Settings, SaveSettings: the persisted settings blob
//
// Example Usage:
//
//	s := session.New(tabMgr, catalog, store, prober, session.WithSearchTemplate(tmpl))
//	tab, err := s.Open(session.Navigation{Input: "example.com", Relay: "corsproxy"})
package session
