// Package buildevent defines the build-log events a resolution node forwards to
// the launching engine.
//
// The set of events is closed: Error, Warning, Message, and the Custom family
// {ProjectStarted, ProjectFinished}. Every event serializes its own body in the
// engine's binary event layout, so the bodies stay compatible with the engine's
// event stream regardless of how the surrounding packet is encoded.
package buildevent

import "time"

// Category classifies an event into one of the four forwarded sequences.
type Category int

const (
	// CategoryError holds build errors.
	CategoryError Category = iota
	// CategoryWarning holds build warnings.
	CategoryWarning
	// CategoryMessage holds informational messages.
	CategoryMessage
	// CategoryCustom holds the closed set of custom events.
	CategoryCustom
)

func (c Category) String() string {
	switch c {
	case CategoryError:
		return "error"
	case CategoryWarning:
		return "warning"
	case CategoryMessage:
		return "message"
	case CategoryCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Event is implemented by every forwarded event type.
// The unexported method closes the set to this package.
type Event interface {
	// Common returns the fields shared by all events.
	Common() *EventArgs
	// Category reports which forwarded sequence the event belongs to.
	Category() Category
	// WriteTo writes the event body.
	WriteTo(w *Writer) error
	// ReadFrom populates a blank event from a body written by WriteTo.
	// Fields introduced after version are not read.
	ReadFrom(r *Reader, version int) error

	sealed()
}

// Context locates an event within the engine's build graph.
type Context struct {
	NodeID            int32
	ProjectContextID  int32
	TargetID          int32
	TaskID            int32
	SubmissionID      int32
	ProjectInstanceID int32
	EvaluationID      int32
}

// EventArgs are the fields every event carries.
type EventArgs struct {
	Message     string
	HelpKeyword string
	SenderName  string
	Timestamp   time.Time
	ThreadID    int32
	// BuildContext is nil when the event was raised outside a build request.
	BuildContext *Context
}

// Common implements Event.
func (a *EventArgs) Common() *EventArgs {
	return a
}

func (a *EventArgs) writeArgs(w *Writer) {
	w.WriteOptionalString(a.Message)
	w.WriteOptionalString(a.HelpKeyword)
	w.WriteOptionalString(a.SenderName)
	w.WriteTimestamp(a.Timestamp)
	w.WriteInt32(a.ThreadID)
	if a.BuildContext == nil {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	c := a.BuildContext
	w.WriteInt32(c.NodeID)
	w.WriteInt32(c.ProjectContextID)
	w.WriteInt32(c.TargetID)
	w.WriteInt32(c.TaskID)
	w.WriteInt32(c.SubmissionID)
	w.WriteInt32(c.ProjectInstanceID)
	w.WriteInt32(c.EvaluationID)
}

func (a *EventArgs) readArgs(r *Reader) {
	a.Message = r.ReadOptionalString()
	a.HelpKeyword = r.ReadOptionalString()
	a.SenderName = r.ReadOptionalString()
	a.Timestamp = r.ReadTimestamp()
	a.ThreadID = r.ReadInt32()
	if !r.ReadBool() {
		a.BuildContext = nil
		return
	}
	a.BuildContext = &Context{
		NodeID:            r.ReadInt32(),
		ProjectContextID:  r.ReadInt32(),
		TargetID:          r.ReadInt32(),
		TaskID:            r.ReadInt32(),
		SubmissionID:      r.ReadInt32(),
		ProjectInstanceID: r.ReadInt32(),
		EvaluationID:      r.ReadInt32(),
	}
}

// Location identifies the source position a diagnostic points at.
type Location struct {
	Subcategory     string
	Code            string
	File            string
	ProjectFile     string
	LineNumber      int32
	ColumnNumber    int32
	EndLineNumber   int32
	EndColumnNumber int32
}

func (l *Location) writeLocation(w *Writer) {
	w.WriteOptionalString(l.Subcategory)
	w.WriteOptionalString(l.Code)
	w.WriteOptionalString(l.File)
	w.WriteOptionalString(l.ProjectFile)
	w.WriteInt32(l.LineNumber)
	w.WriteInt32(l.ColumnNumber)
	w.WriteInt32(l.EndLineNumber)
	w.WriteInt32(l.EndColumnNumber)
}

func (l *Location) readLocation(r *Reader) {
	l.Subcategory = r.ReadOptionalString()
	l.Code = r.ReadOptionalString()
	l.File = r.ReadOptionalString()
	l.ProjectFile = r.ReadOptionalString()
	l.LineNumber = r.ReadInt32()
	l.ColumnNumber = r.ReadInt32()
	l.EndLineNumber = r.ReadInt32()
	l.EndColumnNumber = r.ReadInt32()
}

// helpLinkVersion is the first event version that carries HelpLink.
const helpLinkVersion = 2

// Sink receives events as they are raised.
type Sink interface {
	LogEvent(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// LogEvent implements Sink.
func (f SinkFunc) LogEvent(ev Event) {
	f(ev)
}
