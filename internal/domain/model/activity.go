package model

import "time"

// RecordKind distinguishes call and message activity.
type RecordKind string

const (
	KindCall    RecordKind = "calls"
	KindMessage RecordKind = "messages"
)

// ParseRecordKind converts a user-supplied string into a RecordKind.
func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case KindCall, KindMessage:
		return RecordKind(s), nil
	}
	return "", &ValidationError{Field: "kind", Reason: `must be "calls" or "messages"`}
}

// Direction of a record relative to the account: inbound terminates at an
// owned number, outbound originates from one.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ActivityRecord is one call or message as fetched from the provider.
// Immutable once fetched. Timestamp is zero when the provider sent an
// unparseable date; such records sort last.
type ActivityRecord struct {
	SID       string
	Kind      RecordKind
	Direction Direction
	From      string
	To        string
	Timestamp time.Time
	Status    string

	// Duration in seconds; calls only.
	Duration int

	// Body is a single-line preview; messages only. The full body is
	// available through the message detail drill-down.
	Body         string
	ErrorCode    string
	ErrorMessage string

	// EventsURI points at the provider's event trail for drill-down.
	EventsURI string
}

// CallEvent is one entry of a call's event trail.
type CallEvent struct {
	Name           string
	Timestamp      string
	RequestURL     string
	RequestMethod  string
	ResponseStatus int
}

// MessageDetail is the full record behind a message's drill-down view.
type MessageDetail struct {
	SID          string
	Direction    string
	From         string
	To           string
	DateSent     time.Time
	DateUpdated  time.Time
	Status       string
	Body         string
	ErrorCode    string
	ErrorMessage string
	Price        string
	PriceUnit    string
	NumSegments  string
	NumMedia     string
}
