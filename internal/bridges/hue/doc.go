// Package hue talks to a Philips Hue bridge.
//
// It covers the two phases of bridge use:
//
//   - Registration: RegistrationPoller repeatedly POSTs to /api until a
//     person presses the bridge's link button, then publishes the issued
//     AppRegistration exactly once (Done/Result) and persists it.
//   - Control: Client drives lights through the CLIP v2 REST API
//     (GET/PUT /clip/v2/resource/light) with the hue-application-key header.
//
// There is no maintained Go library for CLIP v2, so the client is written
// directly on net/http. Commands are throttled with golang.org/x/time/rate
// (the bridge drops bursts above roughly 10 requests per second) and pass
// through a sony/gobreaker circuit breaker so an unplugged bridge fails fast.
//
// Colors are sent as CIE xy chromaticity converted from RGB hex; see HexToXY.
//
// Usage:
//
//	poller, _ := hue.NewRegistrationPoller(hue.PollerOptions{
//	    Registrar:     hue.NewLinkButtonRegistrar(nil, "streamlights", "core"),
//	    BridgeAddress: cfg.Hue.BridgeIP,
//	    Store:         store,
//	})
//	reg, err := poller.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	client, _ := hue.NewClient(hue.ClientOptions{Registration: reg, InsecureTLS: true})
//	devices, _ := hue.LoadDeviceNameMap(ctx, client, logger)
package hue
