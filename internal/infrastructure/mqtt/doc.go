// Package mqtt provides MQTT client connectivity for the playout core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained timeline publishing with QoS guarantees
//   - Playback confirmation subscriptions, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The engine publishes each generated timeline, retained, on a per-studio
// topic. Playout devices resolve it against their own clock and report back
// when objects actually start playing.
//
//	Playout Core ↔ MQTT Broker ↔ Playout Devices
//
// Because timelines are retained, a device that reconnects receives the
// latest one immediately and keeps playing it if the core goes offline.
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: "playout"}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.Playback("studio0"), 1, engine.HandlePlaybackMessage)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
package mqtt
