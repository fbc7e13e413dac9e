// Package mqtt publishes gateway events to an MQTT broker.
//
// The client reconnects on its own and keeps a retained status topic
// current, with a Last Will so the broker marks the gateway offline if it
// vanishes.
//
// # Topics
//
//	{prefix}/system/status      retained {"status":"online"|"offline",...}
//	{prefix}/events/{command}   one JSON event per dispatched command
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not local
//   - Set credentials through JSONWP_MQTT_USERNAME / JSONWP_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishEvent(client.Topics().CommandEvent("setUrl"), payload)
package mqtt
