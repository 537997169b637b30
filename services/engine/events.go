package engine

type EventType int

const (
	EventEntry EventType = iota
	EventExit
	EventReverse
	EventStopTriggered
)

var eventTypeNames = [...]string{"entry", "exit", "reverse", "stop_triggered"}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "unknown"
}

// Event is a position change or fired exit rule on one bar.
type Event struct {
	Ts       int64
	Bar      int
	Type     EventType
	Position Position
	Price    float64
	Reason   ExitReason
}

// EventLog collects the events of one simulation. A nil *EventLog discards
// everything, so the bar loop never has to check.
type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) {
	if l == nil {
		return
	}
	l.Events = append(l.Events, e)
}

// Filter returns the events of type t.
func (l *EventLog) Filter(t EventType) []Event {
	if l == nil {
		return nil
	}
	var out []Event
	for _, e := range l.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
