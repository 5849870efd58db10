// Package panel serves the bus monitor web page.
//
// The page is embedded into the binary with go:embed. It connects to the
// API's WebSocket endpoint, subscribes to the telegram and state channels
// and renders a live telegram log next to the current datapoint values.
//
// Handler can serve the assets from a directory instead, which is useful
// while editing the page. Unknown paths fall back to index.html.
package panel
