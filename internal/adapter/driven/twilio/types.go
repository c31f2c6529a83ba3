package twilio

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/twilman/twilman/internal/domain/model"
)

// timeLayout is the timestamp format used throughout the provider's REST
// API, e.g. "Mon, 02 Jan 2006 15:04:05 +0000".
const timeLayout = time.RFC1123Z

// bodyPreviewLen caps the message body preview used in tabular views.
const bodyPreviewLen = 50

type callPage struct {
	Calls       []callRecord `json:"calls"`
	NextPageURI string       `json:"next_page_uri"`
}

type callRecord struct {
	SID             string            `json:"sid"`
	Direction       string            `json:"direction"`
	From            string            `json:"from"`
	To              string            `json:"to"`
	StartTime       string            `json:"start_time"`
	Duration        string            `json:"duration"`
	Status          string            `json:"status"`
	SubresourceURIs map[string]string `json:"subresource_uris"`
}

type messagePage struct {
	Messages    []messageRecord `json:"messages"`
	NextPageURI string          `json:"next_page_uri"`
}

type messageRecord struct {
	SID          string `json:"sid"`
	Direction    string `json:"direction"`
	From         string `json:"from"`
	To           string `json:"to"`
	DateSent     string `json:"date_sent"`
	Body         string `json:"body"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type numberPage struct {
	IncomingPhoneNumbers []numberRecord `json:"incoming_phone_numbers"`
	NextPageURI          string         `json:"next_page_uri"`
}

type numberRecord struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
}

type numberConfigRecord struct {
	SID                 string `json:"sid"`
	PhoneNumber         string `json:"phone_number"`
	FriendlyName        string `json:"friendly_name"`
	VoiceURL            string `json:"voice_url"`
	VoiceMethod         string `json:"voice_method"`
	VoiceFallbackURL    string `json:"voice_fallback_url"`
	StatusCallback      string `json:"status_callback"`
	SMSURL              string `json:"sms_url"`
	SMSMethod           string `json:"sms_method"`
	SMSFallbackURL      string `json:"sms_fallback_url"`
	EmergencyStatus     string `json:"emergency_status"`
	TrunkSID            string `json:"trunk_sid"`
	VoiceApplicationSID string `json:"voice_application_sid"`
	SMSApplicationSID   string `json:"sms_application_sid"`
	Capabilities        struct {
		Voice bool `json:"voice"`
		SMS   bool `json:"sms"`
		MMS   bool `json:"mms"`
	} `json:"capabilities"`
}

type callEventsPage struct {
	Events []callEventRecord `json:"events"`
}

type callEventRecord struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Request   *struct {
		URL    string `json:"url"`
		Method string `json:"method"`
	} `json:"request"`
	Response *struct {
		StatusCode int `json:"status_code"`
	} `json:"response"`
}

type messageDetailRecord struct {
	SID          string `json:"sid"`
	Direction    string `json:"direction"`
	From         string `json:"from"`
	To           string `json:"to"`
	DateSent     string `json:"date_sent"`
	DateUpdated  string `json:"date_updated"`
	Status       string `json:"status"`
	Body         string `json:"body"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Price        string `json:"price"`
	PriceUnit    string `json:"price_unit"`
	NumSegments  string `json:"num_segments"`
	NumMedia     string `json:"num_media"`
}

// mapCall converts a provider call record to a domain ActivityRecord.
func mapCall(c callRecord) model.ActivityRecord {
	duration, _ := strconv.Atoi(c.Duration)

	return model.ActivityRecord{
		SID:       c.SID,
		Kind:      model.KindCall,
		Direction: mapDirection(c.Direction),
		From:      c.From,
		To:        c.To,
		Timestamp: parseTimestamp(c.StartTime),
		Status:    c.Status,
		Duration:  duration,
		EventsURI: c.SubresourceURIs["events"],
	}
}

// mapMessage converts a provider message record to a domain ActivityRecord.
func mapMessage(m messageRecord) model.ActivityRecord {
	rec := model.ActivityRecord{
		SID:          m.SID,
		Kind:         model.KindMessage,
		Direction:    mapDirection(m.Direction),
		From:         m.From,
		To:           m.To,
		Timestamp:    parseTimestamp(m.DateSent),
		Status:       m.Status,
		Body:         previewBody(m.Body),
		ErrorMessage: m.ErrorMessage,
	}
	if m.ErrorCode != nil {
		rec.ErrorCode = strconv.Itoa(*m.ErrorCode)
	}
	return rec
}

func mapNumber(n numberRecord) model.OwnedNumber {
	return model.OwnedNumber{
		SID:          n.SID,
		PhoneNumber:  n.PhoneNumber,
		FriendlyName: n.FriendlyName,
	}
}

// mapNumberConfig flattens the provider record into display key/value pairs,
// omitting empty fields.
func mapNumberConfig(c numberConfigRecord) *model.NumberConfig {
	values := map[string]string{}
	put := func(key, value string) {
		if value != "" {
			values[key] = value
		}
	}

	put("phone_number", c.PhoneNumber)
	put("friendly_name", c.FriendlyName)
	put("sid", c.SID)
	put("voice_url", c.VoiceURL)
	put("voice_method", c.VoiceMethod)
	put("voice_fallback_url", c.VoiceFallbackURL)
	put("status_callback", c.StatusCallback)
	put("sms_url", c.SMSURL)
	put("sms_method", c.SMSMethod)
	put("sms_fallback_url", c.SMSFallbackURL)
	put("capabilities.voice", strconv.FormatBool(c.Capabilities.Voice))
	put("capabilities.sms", strconv.FormatBool(c.Capabilities.SMS))
	put("capabilities.mms", strconv.FormatBool(c.Capabilities.MMS))
	put("emergency_status", c.EmergencyStatus)
	put("trunk_sid", c.TrunkSID)
	put("voice_application_sid", c.VoiceApplicationSID)
	put("sms_application_sid", c.SMSApplicationSID)

	return &model.NumberConfig{
		SID:          c.SID,
		PhoneNumber:  c.PhoneNumber,
		FriendlyName: c.FriendlyName,
		Values:       values,
	}
}

func mapCallEvent(e callEventRecord) model.CallEvent {
	ev := model.CallEvent{
		Name:      e.Name,
		Timestamp: e.Timestamp,
	}
	if e.Request != nil {
		ev.RequestURL = e.Request.URL
		ev.RequestMethod = e.Request.Method
	}
	if e.Response != nil {
		ev.ResponseStatus = e.Response.StatusCode
	}
	return ev
}

func mapMessageDetail(m messageDetailRecord) *model.MessageDetail {
	detail := &model.MessageDetail{
		SID:          m.SID,
		Direction:    m.Direction,
		From:         m.From,
		To:           m.To,
		DateSent:     parseTimestamp(m.DateSent),
		DateUpdated:  parseTimestamp(m.DateUpdated),
		Status:       m.Status,
		Body:         m.Body,
		ErrorMessage: m.ErrorMessage,
		Price:        m.Price,
		PriceUnit:    m.PriceUnit,
		NumSegments:  m.NumSegments,
		NumMedia:     m.NumMedia,
	}
	if m.ErrorCode != nil {
		detail.ErrorCode = strconv.Itoa(*m.ErrorCode)
	}
	return detail
}

// mapDirection folds the provider's direction variants ("inbound",
// "outbound-api", "outbound-dial", ...) into the two domain directions.
func mapDirection(d string) model.Direction {
	if strings.HasPrefix(d, "outbound") {
		return model.DirectionOutbound
	}
	return model.DirectionInbound
}

// parseTimestamp returns the zero time for unparseable input; such records
// sort last rather than failing the whole fetch.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// previewBody collapses newlines and truncates long bodies for grid display.
func previewBody(body string) string {
	s := strings.ReplaceAll(body, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	if utf8.RuneCountInString(s) <= bodyPreviewLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:bodyPreviewLen]) + "..."
}
