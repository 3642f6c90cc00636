package mqtt

import "errors"

// Sentinel errors. Callers match them with errors.Is; the wrapped detail
// carries the broker's own error or the timeout.
var (
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed covers timeline and status publishes the broker did
	// not acknowledge in time.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the playback subscription is refused.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrPayloadTooLarge is returned for a timeline above maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
