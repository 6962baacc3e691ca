// Package mqtt connects plcd to an MQTT broker.
//
// The broker carries raw universe frames: the live input desk publishes a
// frame per change on the input topic and plcd publishes its mixed output on
// the output topic. A retained status message on the status topic, backed
// by a last will, tells other services whether plcd is online.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.MQTT.Topics.Input, 0,
//	    func(topic string, payload []byte) error {
//	        frames <- payload
//	        return nil
//	    })
package mqtt
