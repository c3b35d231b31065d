// Package exchange provides the top-level MEXC connector.
//
// The connector ties the layers together: it owns the public market-data
// socket, decodes incoming frames, fans events out through the
// subscription registry, and delegates account events to the user-data
// stream. Subscribe calls both register a callback and send the matching
// SUBSCRIPTION envelope; when the public socket drops, a monitor dials a
// fresh one and replays every active channel.
package exchange
