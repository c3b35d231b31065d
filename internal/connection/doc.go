// Package connection implements the WebSocket Connection Manager.
//
// A Manager owns exactly one physical socket and its lifecycle state
// (disconnected, connecting, connected, error). It does not reconnect on its
// own: when the socket dies it reports once through the down handler, and the
// owner decides whether to build a fresh Manager. Disconnect is idempotent
// and safe before any successful connect.
package connection
