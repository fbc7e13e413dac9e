package telemetry

import (
	"context"

	"github.com/nerrad567/jsonwp-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// PointWriter is the InfluxDB surface InfluxSink needs.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WriteCommand(p influxdb.CommandPoint)
}

// InfluxSink records one point per dispatched command. The influx write
// API batches internally, so no queue is needed here.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink writing to w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// CommandDispatched implements jsonwp.Observer.
func (s *InfluxSink) CommandDispatched(_ context.Context, ev jsonwp.CommandEvent) {
	s.w.WriteCommand(influxdb.CommandPoint{
		Command:        ev.Command,
		Method:         ev.Method,
		HTTPStatus:     ev.HTTPStatus,
		ProtocolStatus: ev.ProtocolStatus,
		Proxied:        ev.Proxied,
		Duration:       ev.Duration,
		Time:           ev.Time,
	})
}
