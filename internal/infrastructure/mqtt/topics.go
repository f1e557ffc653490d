package mqtt

import "strings"

// Topic layout under the configured prefix:
//
//	<prefix>/status                   retained online/offline
//	<prefix>/devices/<id>/state       retained device JSON, empty once deleted
//	<prefix>/devices/<id>/set         inbound JSON patch
//	<prefix>/notifications            new notifications

func prefixOf(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return "homesim"
	}
	return prefix
}

func StatusTopic(prefix string) string {
	return prefixOf(prefix) + "/status"
}

func DeviceStateTopic(prefix, id string) string {
	return prefixOf(prefix) + "/devices/" + id + "/state"
}

// DeviceCommandFilter matches the command topic of every device.
func DeviceCommandFilter(prefix string) string {
	return prefixOf(prefix) + "/devices/+/set"
}

func NotificationsTopic(prefix string) string {
	return prefixOf(prefix) + "/notifications"
}

// DeviceFromCommandTopic extracts the device id from a command topic.
func DeviceFromCommandTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefixOf(prefix)+"/devices/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
