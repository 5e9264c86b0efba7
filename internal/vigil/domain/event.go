package domain

import (
	"strings"
	"time"
)

// GlobalTopic carries terminal state changes and deletions of any object.
const GlobalTopic = "objects"

const objectTopicPrefix = "object:"

// ObjectTopic returns the per-object progress topic.
func ObjectTopic(objectID string) string {
	return objectTopicPrefix + objectID
}

// ObjectIDFromTopic reports the object id addressed by a per-object topic.
func ObjectIDFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, objectTopicPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, objectTopicPrefix)
	return id, id != ""
}

// Event is a progress notification. Classification is only set on terminal
// events. Message is advisory text for display.
type Event struct {
	ObjectID        string          `json:"objectId"`
	ProgressPercent int             `json:"progressPercent"`
	LifecycleState  LifecycleState  `json:"lifecycleState"`
	Classification  *Classification `json:"classification,omitempty"`
	Message         string          `json:"message"`
	Deleted         bool            `json:"deleted,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

func (e Event) IsTerminal() bool {
	return e.LifecycleState.IsTerminal()
}
