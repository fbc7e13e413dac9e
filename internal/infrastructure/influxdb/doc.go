// Package influxdb records per-command latency and status in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommand(influxdb.CommandPoint{Command: "setUrl", Method: "POST", HTTPStatus: 200})
//
// # Error Handling
//
// Writes are batched (batch_size, flush_interval) and never block the
// caller; batch failures are delivered to the SetOnError callback.
package influxdb
