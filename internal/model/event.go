package model

import (
	"time"
)

// InstallEvent is published on the event bus for every status transition of an
// item's install pipeline. Announce, when non-empty, is the phrase the speech
// collaborator should say for this transition.
type InstallEvent struct {
	Item     string        `json:"item"`
	Status   InstallStatus `json:"status"`
	Message  string        `json:"message,omitempty"`
	Announce string        `json:"announce,omitempty"`
	At       time.Time     `json:"at"`
}

// ProgressEvent reports download progress for an item as a whole percentage.
type ProgressEvent struct {
	Item    string `json:"item"`
	Percent int    `json:"percent"`
}

// LogEvent is a line appended to the shared activity log.
type LogEvent struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
