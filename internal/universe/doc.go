// Package universe holds the DMX universe state and moves frames in and out
// of the server.
//
// A Universe mixes the levels computed by the controller with live input
// from a desk according to its Mode. A Driver runs on its own goroutine,
// turning input frames into channel deltas for the controller and writing
// mixed frames to the configured Sink. Sources and sinks exist for MQTT
// topics and OSC over UDP.
package universe
