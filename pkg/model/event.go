package model

// Event is one item of the agent's live event stream, decided once at the
// boundary where messages arrive from the model runtime.
type Event struct {
	TurnComplete bool
	Interrupted  bool
	Partial      bool
	Parts        []EventPart
}

// IsControl reports whether the event signals end-of-turn or barge-in
func (e *Event) IsControl() bool {
	return e.TurnComplete || e.Interrupted
}

// FirstPart returns the first content part or nil
func (e *Event) FirstPart() EventPart {
	if len(e.Parts) == 0 {
		return nil
	}
	return e.Parts[0]
}

// EventPart is a closed set of content kinds: TextPart, BlobPart, OtherPart
type EventPart interface {
	eventPart()
}

// TextPart carries model text
type TextPart struct {
	Text string
}

// BlobPart carries inline binary data such as PCM audio
type BlobPart struct {
	MIMEType string
	Data     []byte
}

// OtherPart stands for content the bridge does not forward
type OtherPart struct {
	Kind string
}

func (TextPart) eventPart()  {}
func (BlobPart) eventPart()  {}
func (OtherPart) eventPart() {}
