package mqtt

import "fmt"

// Topics builds the launcher's topic names.
//
// Every launcher publishes under its own client ID:
//
//	topics := mqtt.NewTopics("pvrun", "edge-01")
//	topics.Events() // "pvrun/edge-01/events"
//	topics.Status() // "pvrun/edge-01/status"
type Topics struct {
	Prefix   string
	ClientID string
}

// NewTopics returns the topic builder for one launcher.
func NewTopics(prefix, clientID string) Topics {
	return Topics{Prefix: prefix, ClientID: clientID}
}

// Events is where lifecycle events for each run are published.
func (t Topics) Events() string {
	return fmt.Sprintf("%s/%s/events", t.Prefix, t.ClientID)
}

// Status holds the retained online/offline state, including the LWT.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", t.Prefix, t.ClientID)
}

// AllEvents matches the events of every launcher under the prefix.
func (t Topics) AllEvents() string {
	return t.Prefix + "/+/events"
}
