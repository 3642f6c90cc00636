// Package api implements the HTTP REST API and WebSocket server of the
// playout core.
//
// This package provides:
//   - REST endpoints for playlist inspection and operator actions
//     (activate, take, set next, hold, adlib, stop layers)
//   - Rundown ingest (PUT of the full part list)
//   - The latest generated timeline of each playlist
//   - WebSocket hub broadcasting timeline.generated and playout.take events
//   - An audit trail of operator actions
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// Operators and inspection tools talk to the API; every action goes to the
// playout engine, which regenerates the timeline and publishes it to the
// devices over MQTT. The WebSocket hub is shared with the engine so clients
// see each published timeline.
//
// # Graceful Degradation
//
// The server runs without MQTT or InfluxDB. Timelines are still generated,
// stored and pushed over WebSocket.
package api
