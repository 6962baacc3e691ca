// Package influxdb records universe telemetry in InfluxDB v2.
//
// Every broadcast of universe levels, every applied update and the number
// of registered clients are written through the non-blocking batching
// write API. Telemetry is optional: a nil *Client accepts every write and
// drops it.
package influxdb
