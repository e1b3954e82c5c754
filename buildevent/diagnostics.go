package buildevent

// ErrorEvent is a build error.
type ErrorEvent struct {
	EventArgs
	Location
	HelpLink string
}

// Category implements Event.
func (*ErrorEvent) Category() Category { return CategoryError }

func (*ErrorEvent) sealed() {}

// WriteTo implements Event.
func (e *ErrorEvent) WriteTo(w *Writer) error {
	e.writeArgs(w)
	e.writeLocation(w)
	w.WriteOptionalString(e.HelpLink)
	return w.Err()
}

// ReadFrom implements Event.
func (e *ErrorEvent) ReadFrom(r *Reader, version int) error {
	e.readArgs(r)
	e.readLocation(r)
	if version >= helpLinkVersion {
		e.HelpLink = r.ReadOptionalString()
	}
	return r.Err()
}

// WarningEvent is a build warning.
type WarningEvent struct {
	EventArgs
	Location
	HelpLink string
}

// Category implements Event.
func (*WarningEvent) Category() Category { return CategoryWarning }

func (*WarningEvent) sealed() {}

// WriteTo implements Event.
func (e *WarningEvent) WriteTo(w *Writer) error {
	e.writeArgs(w)
	e.writeLocation(w)
	w.WriteOptionalString(e.HelpLink)
	return w.Err()
}

// ReadFrom implements Event.
func (e *WarningEvent) ReadFrom(r *Reader, version int) error {
	e.readArgs(r)
	e.readLocation(r)
	if version >= helpLinkVersion {
		e.HelpLink = r.ReadOptionalString()
	}
	return r.Err()
}

// Importance ranks a message for verbosity filtering.
type Importance int32

const (
	// ImportanceHigh messages show at minimal verbosity.
	ImportanceHigh Importance = iota
	// ImportanceNormal messages show at normal verbosity.
	ImportanceNormal
	// ImportanceLow messages show at detailed verbosity.
	ImportanceLow
)

func (i Importance) String() string {
	switch i {
	case ImportanceHigh:
		return "high"
	case ImportanceNormal:
		return "normal"
	case ImportanceLow:
		return "low"
	default:
		return "unknown"
	}
}

// MessageEvent is an informational message.
type MessageEvent struct {
	EventArgs
	Location
	Importance Importance
}

// Category implements Event.
func (*MessageEvent) Category() Category { return CategoryMessage }

func (*MessageEvent) sealed() {}

// WriteTo implements Event.
func (e *MessageEvent) WriteTo(w *Writer) error {
	e.writeArgs(w)
	w.WriteInt32(int32(e.Importance))
	e.writeLocation(w)
	return w.Err()
}

// ReadFrom implements Event.
func (e *MessageEvent) ReadFrom(r *Reader, _ int) error {
	e.readArgs(r)
	e.Importance = Importance(r.ReadInt32())
	e.readLocation(r)
	return r.Err()
}
