// Package mqtt provides MQTT connectivity for the EZVIZ bridge.
//
// The bridge is one of many Gray Logic protocol bridges sharing a Mosquitto
// broker with Core:
//
//	Gray Logic Core ↔ MQTT Broker ↔ EZVIZ bridge ↔ EZVIZ cloud
//
// This package manages:
//   - Connection with auto-reconnect and subscription replay
//   - Publishing with QoS and payload-size checks
//   - A retained online/offline status with Last Will and Testament
//   - Topic builders for the flat graylogic/{category}/ezviz/{serial} scheme
//
// # Usage
//
//	topics := mqtt.Topics{}
//	client, err := mqtt.Connect(cfg.MQTT, topics.Health())
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.Command(serial), 1, handleCommand)
//
// # Security
//
// Use TLS (mqtt.broker.tls) and broker ACLs outside development. Unlock
// commands travel over this bus.
package mqtt
