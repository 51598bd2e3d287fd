package models

import "time"

// RunEventType identifies the kind of a run event.
type RunEventType string

const (
	// RunEventStatus is a free-text progress note.
	RunEventStatus RunEventType = "status"

	// RunEventThinking is an attributed reasoning fragment. Source and Label
	// distinguish concurrent reasoning streams (e.g. several sub-analysts).
	RunEventThinking RunEventType = "thinking"

	// RunEventToken carries incremental output text.
	RunEventToken RunEventType = "token"

	// RunEventDone is terminal and carries the final answer plus artifacts.
	RunEventDone RunEventType = "done"

	// RunEventError is terminal and carries a failure message.
	RunEventError RunEventType = "error"
)

// RunEvent is one observable step of an in-progress run.
//
// Every run publishes exactly one terminal event (done or error), and it is
// always the last element of the run's event log. Seq is assigned by the
// broadcaster in publication order.
type RunEvent struct {
	Type      RunEventType `json:"type"`
	Seq       uint64       `json:"seq"`
	Time      time.Time    `json:"time"`
	Text      string       `json:"text,omitempty"`
	Source    string       `json:"source,omitempty"`
	Label     string       `json:"label,omitempty"`
	Answer    string       `json:"answer,omitempty"`
	Artifacts []Artifact   `json:"artifacts,omitempty"`
	Message   string       `json:"message,omitempty"`

	// KeepAlive marks a synthetic liveness notification. Keep-alives are
	// pushed to connected observers but never appended to the replay log.
	KeepAlive bool `json:"keep_alive,omitempty"`
}

// IsTerminal reports whether the event ends a run's observable lifetime.
func (e RunEvent) IsTerminal() bool {
	return e.Type == RunEventDone || e.Type == RunEventError
}

// StatusEvent builds a progress note.
func StatusEvent(text string) RunEvent {
	return RunEvent{Type: RunEventStatus, Time: time.Now(), Text: text}
}

// ThinkingEvent builds an attributed reasoning fragment.
func ThinkingEvent(source, label, text string) RunEvent {
	return RunEvent{Type: RunEventThinking, Time: time.Now(), Source: source, Label: label, Text: text}
}

// TokenEvent builds an incremental output text fragment.
func TokenEvent(text string) RunEvent {
	return RunEvent{Type: RunEventToken, Time: time.Now(), Text: text}
}

// DoneEvent builds the successful terminal event.
func DoneEvent(answer string, artifacts []Artifact) RunEvent {
	return RunEvent{Type: RunEventDone, Time: time.Now(), Answer: answer, Artifacts: artifacts}
}

// ErrorEvent builds the failure terminal event.
func ErrorEvent(message string) RunEvent {
	return RunEvent{Type: RunEventError, Time: time.Now(), Message: message}
}

// KeepAliveEvent builds a synthetic liveness notification.
func KeepAliveEvent() RunEvent {
	return RunEvent{Type: RunEventStatus, Time: time.Now(), Text: "keep-alive", KeepAlive: true}
}
