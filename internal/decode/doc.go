// Package decode turns raw WebSocket frames into tagged events.
//
// The exchange's streaming channels use an undocumented protobuf-like wire
// format, so extraction is heuristic: byte and pattern scanning against the
// classes of frames observed in production. Decode is a pure function of the
// frame bytes and never panics outward; a frame it cannot make sense of
// becomes an Unknown or DecodeError event so the read loop keeps running.
//
// Keep the heuristics inside this package. Callers only see model.Event, so
// a schema-driven decoder can replace the internals without touching them.
package decode
