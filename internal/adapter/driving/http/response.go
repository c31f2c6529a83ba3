package httphandler

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/twilman/twilman/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// AccountResponse is the JSON representation of a stored account.
// Auth tokens never appear in responses.
type AccountResponse struct {
	Name       string `json:"name"`
	AccountSID string `json:"account_sid"`
}

// ActiveAccountResponse reports which account queries run against.
type ActiveAccountResponse struct {
	Name string `json:"name"`
}

// PutAccountRequest is the JSON body for the add and update account endpoints.
type PutAccountRequest struct {
	Name       string `json:"name"`
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
}

// SetActiveRequest is the JSON body for the set active account endpoint.
type SetActiveRequest struct {
	Name string `json:"name"`
}

// ActivityRecordResponse is the JSON representation of one call or message.
type ActivityRecordResponse struct {
	SID          string `json:"sid"`
	Kind         string `json:"kind"`
	Direction    string `json:"direction"`
	From         string `json:"from"`
	To           string `json:"to"`
	Timestamp    string `json:"timestamp,omitempty"`
	Status       string `json:"status"`
	Duration     int    `json:"duration,omitempty"`
	Body         string `json:"body,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ActivityResponse is the envelope of a search: the normalized query echo
// plus its records, newest first.
type ActivityResponse struct {
	Account string                   `json:"account"`
	Kind    string                   `json:"kind"`
	Number  string                   `json:"number"`
	Count   int                      `json:"count"`
	Records []ActivityRecordResponse `json:"records"`
}

// NumberResponse is the JSON representation of a provisioned number.
type NumberResponse struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
}

// NumberConfigResponse is the flattened configuration of one number.
type NumberConfigResponse struct {
	SID         string            `json:"sid"`
	PhoneNumber string            `json:"phone_number"`
	Values      map[string]string `json:"values"`
}

// InactiveNumberResponse is one number flagged by an inactivity scan.
// LastActivity is empty when no activity was found at all.
type InactiveNumberResponse struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	LastActivity string `json:"last_activity,omitempty"`
	CallCount    int    `json:"call_count"`
	MessageCount int    `json:"message_count"`
}

// CallEventResponse is one entry of a call's event trail.
type CallEventResponse struct {
	Name           string `json:"name"`
	Timestamp      string `json:"timestamp"`
	RequestURL     string `json:"request_url,omitempty"`
	RequestMethod  string `json:"request_method,omitempty"`
	ResponseStatus int    `json:"response_status,omitempty"`
}

// MessageDetailResponse is the full record behind a message drill-down.
type MessageDetailResponse struct {
	SID          string `json:"sid"`
	Direction    string `json:"direction"`
	From         string `json:"from"`
	To           string `json:"to"`
	DateSent     string `json:"date_sent,omitempty"`
	DateUpdated  string `json:"date_updated,omitempty"`
	Status       string `json:"status"`
	Body         string `json:"body"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Price        string `json:"price,omitempty"`
	PriceUnit    string `json:"price_unit,omitempty"`
	NumSegments  string `json:"num_segments,omitempty"`
	NumMedia     string `json:"num_media,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toAccountResponse converts a domain Account to its JSON representation,
// dropping the auth token.
func toAccountResponse(acc model.Account) AccountResponse {
	return AccountResponse{
		Name:       acc.Name,
		AccountSID: acc.SID,
	}
}

// toActivityRecordResponse converts a domain ActivityRecord to its JSON
// representation. Zero timestamps become empty strings.
func toActivityRecordResponse(rec model.ActivityRecord) ActivityRecordResponse {
	ts := ""
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.UTC().Format(time.RFC3339)
	}

	return ActivityRecordResponse{
		SID:          rec.SID,
		Kind:         string(rec.Kind),
		Direction:    string(rec.Direction),
		From:         rec.From,
		To:           rec.To,
		Timestamp:    ts,
		Status:       rec.Status,
		Duration:     rec.Duration,
		Body:         rec.Body,
		ErrorCode:    rec.ErrorCode,
		ErrorMessage: rec.ErrorMessage,
	}
}

// toNumberResponse converts a domain OwnedNumber to its JSON representation.
func toNumberResponse(n model.OwnedNumber) NumberResponse {
	return NumberResponse{
		SID:          n.SID,
		PhoneNumber:  n.PhoneNumber,
		FriendlyName: n.FriendlyName,
	}
}

// toNumberConfigResponse converts a domain NumberConfig to its JSON representation.
func toNumberConfigResponse(cfg model.NumberConfig) NumberConfigResponse {
	values := cfg.Values
	if values == nil {
		values = map[string]string{}
	}
	return NumberConfigResponse{
		SID:         cfg.SID,
		PhoneNumber: cfg.PhoneNumber,
		Values:      values,
	}
}

// toInactiveNumberResponse converts a domain InactiveNumber to its JSON representation.
func toInactiveNumberResponse(in model.InactiveNumber) InactiveNumberResponse {
	last := ""
	if in.LastActivity != nil {
		last = in.LastActivity.UTC().Format(time.RFC3339)
	}
	return InactiveNumberResponse{
		SID:          in.Number.SID,
		PhoneNumber:  in.Number.PhoneNumber,
		FriendlyName: in.Number.FriendlyName,
		LastActivity: last,
		CallCount:    in.CallCount,
		MessageCount: in.MessageCount,
	}
}

// toCallEventResponse converts a domain CallEvent to its JSON representation.
func toCallEventResponse(ev model.CallEvent) CallEventResponse {
	return CallEventResponse{
		Name:           ev.Name,
		Timestamp:      ev.Timestamp,
		RequestURL:     ev.RequestURL,
		RequestMethod:  ev.RequestMethod,
		ResponseStatus: ev.ResponseStatus,
	}
}

// toMessageDetailResponse converts a domain MessageDetail to its JSON representation.
func toMessageDetailResponse(d model.MessageDetail) MessageDetailResponse {
	sent := ""
	if !d.DateSent.IsZero() {
		sent = d.DateSent.UTC().Format(time.RFC3339)
	}
	updated := ""
	if !d.DateUpdated.IsZero() {
		updated = d.DateUpdated.UTC().Format(time.RFC3339)
	}

	return MessageDetailResponse{
		SID:          d.SID,
		Direction:    d.Direction,
		From:         d.From,
		To:           d.To,
		DateSent:     sent,
		DateUpdated:  updated,
		Status:       d.Status,
		Body:         d.Body,
		ErrorCode:    d.ErrorCode,
		ErrorMessage: d.ErrorMessage,
		Price:        d.Price,
		PriceUnit:    d.PriceUnit,
		NumSegments:  d.NumSegments,
		NumMedia:     d.NumMedia,
	}
}
