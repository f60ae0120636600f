// Package irc is an optional chat-command source that reads the channel
// over Twitch IRC (go-twitch-irc) instead of the channel.chat.message
// EventSub subscription.
//
// Each PRIVMSG is parsed with dispatch.ParseCommand and handed to the
// dispatcher with source "irc". The IRC password is the Helix user token,
// re-read from the token source periodically so reconnects use a fresh one.
package irc
