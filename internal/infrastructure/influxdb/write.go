package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// CommandMeasurement is the measurement holding one point per command.
const CommandMeasurement = "jsonwp_commands"

// CommandPoint is one dispatched command.
type CommandPoint struct {
	Command        string
	Method         string
	HTTPStatus     int
	ProtocolStatus int
	Proxied        bool
	Duration       time.Duration
	Time           time.Time
}

// WriteCommand records a dispatched command. The write is non-blocking.
//
// Tags: command, method, http_status, proxied.
// Fields: duration_ms, protocol_status.
//
// Session ids are never tagged (unbounded cardinality).
func (c *Client) WriteCommand(p CommandPoint) {
	if !c.IsConnected() {
		return
	}

	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		CommandMeasurement,
		map[string]string{
			"command":     p.Command,
			"method":      p.Method,
			"http_status": strconv.Itoa(p.HTTPStatus),
			"proxied":     strconv.FormatBool(p.Proxied),
		},
		map[string]any{
			"duration_ms":     float64(p.Duration) / float64(time.Millisecond),
			"protocol_status": p.ProtocolStatus,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}
