// Package eventsub runs a Twitch EventSub websocket session.
//
// A Session owns one connection, reassembles messages from frames, and
// drives the protocol state machine:
//
//	Connecting -> WaitingForWelcome -> Subscribed -> Reconnecting -> WaitingForWelcome
//	                                            \-> Closed
//
// On session_welcome the Subscriber creates the event subscriptions for the
// new session id. Notifications are handed to the NotificationHandler
// synchronously, so events are processed one at a time in arrival order.
// On session_reconnect the old socket is closed and the reconnect URL is
// dialed; the session waits for a new welcome.
//
// After the first welcome each read carries a deadline of the announced
// keepalive timeout plus a grace period. A lapse ends the session with
// ErrKeepaliveTimeout.
//
// The session reads through the Conn interface. WebsocketDialer provides the
// gorilla/websocket implementation, which streams each message in 8 KiB
// frames.
package eventsub
