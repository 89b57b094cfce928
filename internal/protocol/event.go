package protocol

import "fmt"

// EventKind discriminates Event.
type EventKind string

const (
	EventClick      EventKind = "click"
	EventHoverEnter EventKind = "hover_enter"
	EventHoverExit  EventKind = "hover_exit"
	EventDrop       EventKind = "drop"
	EventSelected   EventKind = "selected"
	EventDeselected EventKind = "deselected"
)

// Event is an input event. Only the fields belonging to Kind are meaningful:
// Button, X and Y for clicks, Paths for drops.
type Event struct {
	Kind   EventKind `json:"kind"`
	Button uint32    `json:"button,omitempty"`
	X      Number    `json:"x,omitempty"`
	Y      Number    `json:"y,omitempty"`
	Paths  []string  `json:"paths,omitempty"`
}

// Click builds a click event.
func Click(button uint32, x, y float64) Event {
	return Event{Kind: EventClick, Button: button, X: Number(x), Y: Number(y)}
}

// Drop builds a drop event. Path order is preserved.
func Drop(paths ...string) Event {
	return Event{Kind: EventDrop, Paths: paths}
}

// HoverEnter, HoverExit, Selected and Deselected carry no fields.
func HoverEnter() Event { return Event{Kind: EventHoverEnter} }
func HoverExit() Event  { return Event{Kind: EventHoverExit} }
func Selected() Event   { return Event{Kind: EventSelected} }
func Deselected() Event { return Event{Kind: EventDeselected} }

// Validate checks the discriminator.
func (e Event) Validate() error {
	switch e.Kind {
	case EventClick, EventHoverEnter, EventHoverExit, EventDrop, EventSelected, EventDeselected:
		return nil
	case "":
		return fmt.Errorf("event kind missing")
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
}
