// Package ws streams tab events to the gateway page over a WebSocket.
//
// Every connection receives each tab event as it happens and may drive the
// session with small JSON commands.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - open: Open a tab (url, relay, settings)
//   - navigate: Load into a tab (tab_id, url, relay, settings)
//   - activate: Activate a tab (tab_id)
//   - close: Close a tab (tab_id)
//   - list: Request the current tab list
//
// Message Types (Server → Client):
//   - system: Connection established
//   - tab: A tab event (created, activated, navigating, loaded, failed, closed)
//   - tabs: The current tab list
//   - pong: Reply to ping
//   - error: A command failed
//
// Example Usage:
//
//	handler := ws.NewHandler(sess, logger, metrics)
//	router.GET("/stream", handler.HandleConnection)
package ws
