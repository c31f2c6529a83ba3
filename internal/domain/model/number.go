package model

import "time"

// OwnedNumber is a phone number provisioned on the account.
type OwnedNumber struct {
	SID          string
	PhoneNumber  string
	FriendlyName string
}

// NumberConfig is a read-only configuration snapshot for a single number.
// Values maps flattened configuration keys (voice_url, sms_method,
// capabilities.voice, ...) to their display values; keys with empty values
// are omitted.
type NumberConfig struct {
	SID          string
	PhoneNumber  string
	FriendlyName string
	Values       map[string]string
}

// InactiveNumber pairs a number with its most recent observed activity.
// LastActivity is nil when no activity was found in the scanned window.
type InactiveNumber struct {
	Number       OwnedNumber
	LastActivity *time.Time
	CallCount    int
	MessageCount int
}
