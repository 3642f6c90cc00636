// Package influxdb provides InfluxDB connectivity for the playout core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, health monitoring and timeline generation metrics. One point
// is written per regeneration with the playlist, its generation counter,
// the object count and how long the build took.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	engine := playout.NewEngine(playout.EngineDeps{Metrics: client, ...})
//
// # Error Handling
//
// Writes are non-blocking and batch errors are reported via SetOnError.
// Connection and health check errors are returned directly.
package influxdb
