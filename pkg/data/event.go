package data

import "fmt"

// EventKind classifies what the caller's presentation layer should do with
// an Event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventWarning  EventKind = "warning"
	// EventVerify asks the user to complete an out-of-band verification at URL.
	EventVerify EventKind = "verify"
)

// Event is emitted by the pipeline components. Position is 1-based and zero
// when the event is chapter scoped.
type Event struct {
	Kind     EventKind
	Comic    string
	Chapter  string
	Position int
	Current  int
	Total    int
	Message  string
	URL      string
	Err      error
}

func (e Event) String() string {
	scope := fmt.Sprintf("《%s》 %s", e.Comic, e.Chapter)
	if e.Position > 0 {
		scope = fmt.Sprintf("%s #%d", scope, e.Position)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", scope, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", scope, e.Message)
}

// EventSink receives pipeline events. Implementations must be safe for
// concurrent use.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard EventSink = SinkFunc(func(Event) {})

// WarningFor builds a chapter-scoped warning.
func WarningFor(ch *Chapter, msg string, err error) Event {
	return Event{
		Kind:    EventWarning,
		Comic:   ch.ComicTitle,
		Chapter: ch.Title,
		Message: msg,
		Err:     err,
	}
}
