// Package mqtt publishes launcher lifecycle events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker, failing fast when it is unreachable
//   - A retained online/offline status with Last Will and Testament
//   - JSON event publishing on <prefix>/<client_id>/events
//   - Subscriptions, used by "pvrun events" to follow other launchers
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not local
//   - Pass credentials through PVRUN_MQTT_USERNAME and PVRUN_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishEvent(event)
package mqtt
