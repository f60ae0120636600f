// Package helix is a small client for the Twitch Helix API.
//
// It covers the two calls Stream Lights makes: creating EventSub
// subscriptions bound to a websocket session, and posting chat messages
// as the bot user. Requests carry the Client-Id header and a bearer token
// from an oauth2.TokenSource which refreshes with the refresh-token grant
// and writes rotated tokens to the settings store.
//
// # Usage
//
//	ts, err := helix.NewTokenSource(ctx, cfg.Twitch, store, logger)
//	client, err := helix.NewClient(ctx, helix.ClientOptions{
//	    ClientID:    cfg.Twitch.ClientID,
//	    TokenSource: ts,
//	    BaseURL:     cfg.Twitch.HelixURL,
//	})
//	subs, err := helix.NewSubscriptionManager(client, helix.SubscriptionManagerOptions{
//	    BroadcasterID: cfg.Twitch.BroadcasterID,
//	    Chat:          cfg.Twitch.SubscribeChat,
//	})
//	err = subs.SubscribeAll(ctx, sessionID)
//
// A 409 Conflict from the subscriptions endpoint means the subscription
// already exists on the session and is treated as success.
package helix
