// Package userdata manages the authenticated user-data stream.
//
// A listen key from the REST API scopes a dedicated socket to the
// account; the key expires unless kept alive, so the manager renews it on
// a timer. When the server drops the socket (listen key expiry, network
// fault) the manager acquires a fresh key, dials a new socket and
// re-subscribes the private order channel, keeping registered callbacks
// intact across the reconnect.
package userdata
