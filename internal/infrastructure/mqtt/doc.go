// Package mqtt connects tpuartd to an MQTT broker.
//
// The gateway publishes every telegram it accepts from the KNX line and
// takes write and read requests from MQTT. All topics hang off one
// configurable prefix, see Topics. The client publishes a retained
// online/offline status and registers a Last Will so subscribers notice a
// crashed gateway.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), 1, handleCommand)
package mqtt
