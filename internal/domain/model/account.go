// Package model contains the domain types shared across ports and adapters.
package model

import "strings"

// Account is a named set of credentials for one telephony sub-account.
// AuthToken is held in plaintext in memory; the credential store owns
// its encoded form at rest.
type Account struct {
	Name      string
	SID       string
	AuthToken string
}

// Validate checks the credential format before any network call is issued.
// Twilio account SIDs start with "AC" and are 34 characters; auth tokens
// are at least 32 characters.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !strings.HasPrefix(a.SID, "AC") || len(a.SID) != 34 {
		return &ValidationError{Field: "account_sid", Reason: "must start with AC and be 34 characters"}
	}
	if len(a.AuthToken) < 32 {
		return &ValidationError{Field: "auth_token", Reason: "too short to be a valid auth token"}
	}
	return nil
}
