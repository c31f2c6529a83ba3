package model

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports user input that was rejected before any network
// call was issued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DateRange is a closed date interval. End is inclusive; adapters querying
// providers with exclusive upper bounds extend it by one day themselves.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks that both bounds are set and ordered.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &ValidationError{Field: "date range", Reason: "start and end are required"}
	}
	if r.Start.After(r.End) {
		return &ValidationError{Field: "date range", Reason: "start must not be after end"}
	}
	return nil
}

// QueryRequest describes one call/message search.
type QueryRequest struct {
	AccountName string
	Kind        RecordKind
	Number      string
	Range       DateRange
}

// Normalize validates the request and rewrites Number into canonical E.164
// form. It must succeed before the request reaches the API client.
func (q *QueryRequest) Normalize() error {
	if _, err := ParseRecordKind(string(q.Kind)); err != nil {
		return err
	}
	number, err := NormalizePhoneNumber(q.Number)
	if err != nil {
		return err
	}
	q.Number = number
	return q.Range.Validate()
}

// NormalizePhoneNumber converts user input into E.164 form. Bare 10-digit
// and 1-prefixed 11-digit NANP numbers are accepted and prefixed; anything
// else must already carry a leading plus.
func NormalizePhoneNumber(raw string) (string, error) {
	n := strings.TrimSpace(raw)
	if n == "" {
		return "", &ValidationError{Field: "phone number", Reason: "must not be empty"}
	}

	if strings.HasPrefix(n, "+") {
		digits := n[1:]
		if !isDigits(digits) || len(digits) < 8 || len(digits) > 15 {
			return "", &ValidationError{Field: "phone number", Reason: "not a valid E.164 number"}
		}
		return n, nil
	}

	if isDigits(n) {
		switch {
		case len(n) == 10:
			return "+1" + n, nil
		case len(n) == 11 && n[0] == '1':
			return "+" + n, nil
		}
	}

	return "", &ValidationError{
		Field:  "phone number",
		Reason: "must be E.164 (+19193736940) or a 10-digit US number",
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
