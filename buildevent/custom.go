package buildevent

import "fmt"

// CustomKind discriminates the closed set of custom events on the wire.
type CustomKind uint16

const (
	// CustomProjectStarted tags ProjectStartedEvent.
	CustomProjectStarted CustomKind = 1
	// CustomProjectFinished tags ProjectFinishedEvent.
	CustomProjectFinished CustomKind = 2
)

// CustomEvent is implemented only by the custom variants in this package.
type CustomEvent interface {
	Event
	// Kind returns the wire discriminator of the concrete variant.
	Kind() CustomKind
}

// NewCustom returns a blank custom event for kind.
func NewCustom(kind CustomKind) (CustomEvent, error) {
	switch kind {
	case CustomProjectStarted:
		return &ProjectStartedEvent{}, nil
	case CustomProjectFinished:
		return &ProjectFinishedEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown custom event kind %d", kind)
	}
}

// ProjectStartedEvent reports that an external project build started.
type ProjectStartedEvent struct {
	EventArgs
	ProjectFile string
	TargetNames string
}

// Category implements Event.
func (*ProjectStartedEvent) Category() Category { return CategoryCustom }

// Kind implements CustomEvent.
func (*ProjectStartedEvent) Kind() CustomKind { return CustomProjectStarted }

func (*ProjectStartedEvent) sealed() {}

// WriteTo implements Event.
func (e *ProjectStartedEvent) WriteTo(w *Writer) error {
	e.writeArgs(w)
	w.WriteOptionalString(e.ProjectFile)
	w.WriteOptionalString(e.TargetNames)
	return w.Err()
}

// ReadFrom implements Event.
func (e *ProjectStartedEvent) ReadFrom(r *Reader, _ int) error {
	e.readArgs(r)
	e.ProjectFile = r.ReadOptionalString()
	e.TargetNames = r.ReadOptionalString()
	return r.Err()
}

// ProjectFinishedEvent reports that an external project build finished.
type ProjectFinishedEvent struct {
	EventArgs
	ProjectFile string
	Succeeded   bool
}

// Category implements Event.
func (*ProjectFinishedEvent) Category() Category { return CategoryCustom }

// Kind implements CustomEvent.
func (*ProjectFinishedEvent) Kind() CustomKind { return CustomProjectFinished }

func (*ProjectFinishedEvent) sealed() {}

// WriteTo implements Event.
func (e *ProjectFinishedEvent) WriteTo(w *Writer) error {
	e.writeArgs(w)
	w.WriteOptionalString(e.ProjectFile)
	w.WriteBool(e.Succeeded)
	return w.Err()
}

// ReadFrom implements Event.
func (e *ProjectFinishedEvent) ReadFrom(r *Reader, _ int) error {
	e.readArgs(r)
	e.ProjectFile = r.ReadOptionalString()
	e.Succeeded = r.ReadBool()
	return r.Err()
}
