// Package tabs manages the gateway's tabs.
//
// Each tab owns exactly one frame and runs its loads on its own goroutine,
// cancelled when the tab navigates again or closes. At most one tab is
// active at a time. Ids are prefixed ULIDs from a monotonic generator, so
// they are unique, increase with creation order and are never reused.
package tabs
