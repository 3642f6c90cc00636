// Package playout drives a playlist on air.
//
// The Engine owns every state change of a playlist: activation, set-next,
// take, hold, ad-lib insertion, stopping layers, playback confirmations from
// devices and rundown updates from ingest. Each change runs under the
// playlist's lock and ends with a full regeneration of the timeline, which is
// stored and then published to the device layer over MQTT and to operators
// over WebSocket.
//
// # Locking
//
// LockManager hands out one lease per playlist at a time. Waiters are served
// by priority, then arrival, so playout actions overtake queued ingest work.
// Callbacks registered with Lease.Defer run after the lease is released;
// publishing and timer scheduling happen there, never under the lock.
//
// # Timers
//
// Two single-slot timers exist per playlist. The auto-next timer follows the
// autoNext field of the latest timeline: a newer timeline replaces or cancels
// it. The recompute timer regenerates once a simulation window lapses.
//
// # Persistence
//
// Repository stores playlists, parts, part instances and the latest timeline.
// SQLiteRepository keeps structured values as JSON TEXT columns.
package playout
