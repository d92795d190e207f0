// Package mqtt connects the Nest sync service to an MQTT broker.
//
// It provides:
//   - Connection management with auto-reconnect and an offline LWT
//   - Topic builders for device state, device events, commands and acks
//   - A payload Codec selected by configuration (JSON or CBOR)
//
// # Topics
//
//	graylogic/nest/status                          retained service status (LWT)
//	graylogic/nest/auth                            session and pairing events
//	graylogic/nest/structure/{id}                  retained structure state
//	graylogic/nest/device/{kind}/{id}/state        retained full device state
//	graylogic/nest/device/{kind}/{id}/event        device transitions
//	graylogic/nest/command/{kind}/{id}             inbound attribute writes
//	graylogic/nest/ack/{kind}/{id}                 command outcomes
//
// The status topic is always JSON. Everything else uses the configured
// codec.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishMessage(mqtt.Topics{}.Auth(), msg, false)
package mqtt
