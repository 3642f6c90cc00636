package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// generationMeasurement holds one point per timeline regeneration.
const generationMeasurement = "timeline_generation"

// WriteGenerationMetric records one timeline regeneration.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Calls on a closed client are dropped.
//
// Example:
//
//	client.WriteGenerationMetric("pl-1", 42, 17, 3*time.Millisecond, false)
func (c *Client) WriteGenerationMetric(playlistID string, generation int64, objects int, took time.Duration, autoNext bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(generationPoint(playlistID, generation, objects, took, autoNext, time.Now()))
}

// generationPoint builds the point written by WriteGenerationMetric.
// The auto-next flag is a tag so takes triggered by the scheduler can be
// told apart from operator takes without a field scan.
func generationPoint(playlistID string, generation int64, objects int, took time.Duration, autoNext bool, at time.Time) *write.Point {
	return write.NewPoint(
		generationMeasurement,
		map[string]string{
			"playlist_id": playlistID,
			"auto_next":   strconv.FormatBool(autoNext),
		},
		map[string]interface{}{
			"generation":  generation,
			"objects":     objects,
			"duration_ms": float64(took.Microseconds()) / 1000,
		},
		at,
	)
}
