package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/plc-core/internal/dimmer"
)

// Measurement names.
const (
	MeasurementUniverse = "universe"
	MeasurementUpdate   = "updates"
	MeasurementClients  = "clients"
)

// WriteUniverse records one broadcast of universe levels. Each channel
// becomes an integer field named ch<N>, tagged with the broadcast origin
// ("full" or "input").
func (c *Client) WriteUniverse(origin string, levels dimmer.Levels, at time.Time) {
	if !c.IsConnected() || len(levels) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(levels))
	for ch, v := range levels {
		fields["ch"+strconv.Itoa(ch)] = int64(v)
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementUniverse,
		map[string]string{"origin": origin},
		fields,
		at,
	))
}

// WriteUpdate records an applied update: which registry and entity were
// resolved, at what master level, and how many channels resulted.
func (c *Client) WriteUpdate(kind, id string, level float64, channels int) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"kind": kind}
	if id != "" {
		tags["id"] = id
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementUpdate,
		tags,
		map[string]interface{}{
			"level":    level,
			"channels": int64(channels),
		},
		time.Now(),
	))
}

// WriteClients records the number of registered clients.
func (c *Client) WriteClients(count int) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementClients,
		nil,
		map[string]interface{}{"registered": int64(count)},
		time.Now(),
	))
}
