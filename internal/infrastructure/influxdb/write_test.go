package influxdb

import (
	"testing"
	"time"

	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
)

func TestOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{"configured", config.InfluxDBConfig{BatchSize: 20, FlushInterval: 2}, 20, 2000},
		{"defaults", config.InfluxDBConfig{}, defaultBatchSize, defaultFlushInterval * 1000},
		{"negative falls back", config.InfluxDBConfig{BatchSize: -1, FlushInterval: -5}, defaultBatchSize, defaultFlushInterval * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options(tt.cfg)
			if opts.BatchSize() != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", opts.BatchSize(), tt.wantBatch)
			}
			if opts.FlushInterval() != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", opts.FlushInterval(), tt.wantFlush)
			}
			if opts.Precision() != time.Millisecond {
				t.Errorf("Precision() = %v, want 1ms", opts.Precision())
			}
		})
	}
}

func TestGenerationPoint(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	p := generationPoint("pl-1", 7, 12, 1500*time.Microsecond, true, at)

	if p.Name() != generationMeasurement {
		t.Errorf("Name() = %q, want %q", p.Name(), generationMeasurement)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["playlist_id"] != "pl-1" || tags["auto_next"] != "true" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["generation"] != int64(7) {
		t.Errorf("generation = %v (%T), want 7", fields["generation"], fields["generation"])
	}
	if fields["objects"] != int64(12) {
		t.Errorf("objects = %v (%T), want 12", fields["objects"], fields["objects"])
	}
	if fields["duration_ms"] != 1.5 {
		t.Errorf("duration_ms = %v, want 1.5", fields["duration_ms"])
	}
}

func TestWriteGenerationMetric_Disconnected(t *testing.T) {
	c := &Client{}
	// Must not touch the nil write API.
	c.WriteGenerationMetric("pl-1", 1, 1, time.Millisecond, false)
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}
