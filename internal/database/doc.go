// Package database provides connection pool management for TimescaleDB.
//
// The streamer keeps a single time-series database holding captured raw
// frames and their decoded events, used to grow the golden corpus the
// frame decoder heuristics are tuned against.
package database
