package mqtt

import "strings"

// Topics builds the gateway's MQTT topic names under a common prefix.
//
// Layout:
//
//	{prefix}/system/status        retained online/offline status (LWT)
//	{prefix}/events/{command}     one message per dispatched command
type Topics struct {
	Prefix string
}

// Status returns the retained gateway status topic.
func (t Topics) Status() string {
	return t.root() + "/system/status"
}

// CommandEvent returns the topic for events of one command.
// Characters with MQTT meaning are replaced so a command name can never
// widen a subscription.
func (t Topics) CommandEvent(command string) string {
	if command == "" {
		command = "unknown"
	}
	return t.root() + "/events/" + topicSegment.Replace(command)
}

// AllCommandEvents returns a wildcard matching every command event.
func (t Topics) AllCommandEvents() string {
	return t.root() + "/events/#"
}

func (t Topics) root() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return "jsonwp"
	}
	return p
}

var topicSegment = strings.NewReplacer("/", "_", "+", "_", "#", "_")
