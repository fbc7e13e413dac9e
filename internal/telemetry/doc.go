// Package telemetry fans dispatcher events out to the gateway's
// observability sinks: in-process counters, MQTT and InfluxDB.
//
// Every sink implements jsonwp.Observer and must return quickly; sinks
// that talk to the network queue events and publish from one goroutine.
package telemetry
