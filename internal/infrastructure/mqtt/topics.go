package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Stream Lights topic.
const TopicPrefix = "streamlights"

// UnknownLamp replaces a lamp name that cannot be used as a topic level.
const UnknownLamp = "unknown"

// Topics provides builders for Stream Lights MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Action("left")   // streamlights/action/left
//	topics.SessionState()   // streamlights/session/state
type Topics struct{}

// Action returns the topic audience actions on a lamp are mirrored to.
// A lamp that is empty or contains '/', '+' or '#' is published under
// UnknownLamp.
//
// Example: streamlights/action/left
func (Topics) Action(lamp string) string {
	if !ValidTopicLevel(lamp) {
		lamp = UnknownLamp
	}
	return fmt.Sprintf("%s/action/%s", TopicPrefix, lamp)
}

// Command returns the topic remote commands for a lamp arrive on.
//
// Example: streamlights/command/left
func (Topics) Command(lamp string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, lamp)
}

// AllCommands returns a pattern matching every lamp's command topic.
//
// Pattern: streamlights/command/+
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// SessionState returns the retained EventSub session state topic.
func (Topics) SessionState() string {
	return TopicPrefix + "/session/state"
}

// SystemStatus returns the online/offline status topic (LWT).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// SystemHealth returns the periodic health report topic.
func (Topics) SystemHealth() string {
	return TopicPrefix + "/system/health"
}

// LampFromCommandTopic extracts the lamp from a command topic.
func LampFromCommandTopic(topic string) (string, bool) {
	lamp, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok || lamp == "" || strings.Contains(lamp, "/") {
		return "", false
	}
	return lamp, true
}

// ValidTopicLevel reports whether s can be used as a single level of a
// publish topic: non-empty, with no separator, wildcard or NUL.
func ValidTopicLevel(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}
