// Package mqtt mirrors Stream Lights activity to an MQTT broker and accepts
// remote lamp commands from it.
//
// Topics (all under "streamlights/"):
//
//	action/{lamp}     every executed or rejected audience action (JSON)
//	session/state     EventSub session state (retained)
//	system/status     online/offline (retained, offline is also the LWT)
//	system/health     periodic health report (retained)
//	command/{lamp}    inbound chat-style commands, e.g. "color red"
//
// The client reconnects with exponential backoff and restores its
// subscriptions. MQTT is optional; with mqtt.enabled false the service runs
// without it.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeCommands(func(lamp, text string) error {
//	    dispatcher.HandleRemoteCommand(ctx, lamp, text)
//	    return nil
//	})
package mqtt
