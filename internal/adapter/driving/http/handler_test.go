package httphandler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/twilman/twilman/internal/adapter/driving/http"
	"github.com/twilman/twilman/internal/application"
	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

// --- Mock implementations ---

// mockStore implements driven.CredentialStore in memory.
type mockStore struct {
	accounts map[string]model.Account
}

func newMockStore(accounts ...model.Account) *mockStore {
	s := &mockStore{accounts: map[string]model.Account{}}
	for _, acc := range accounts {
		s.accounts[acc.Name] = acc
	}
	return s
}

func (m *mockStore) Load(_ context.Context) (map[string]model.Account, error) {
	out := make(map[string]model.Account, len(m.accounts))
	for name, acc := range m.accounts {
		out[name] = acc
	}
	return out, nil
}

func (m *mockStore) Save(_ context.Context, accounts map[string]model.Account) error {
	m.accounts = accounts
	return nil
}

func (m *mockStore) Put(_ context.Context, acc model.Account) error {
	m.accounts[acc.Name] = acc
	return nil
}

func (m *mockStore) Add(_ context.Context, acc model.Account) error {
	if _, exists := m.accounts[acc.Name]; exists {
		return driven.ErrDuplicateName
	}
	m.accounts[acc.Name] = acc
	return nil
}

func (m *mockStore) Remove(_ context.Context, name string) error {
	if _, exists := m.accounts[name]; !exists {
		return driven.ErrNotFound
	}
	delete(m.accounts, name)
	return nil
}

// mockClient implements driven.TelephonyClient with canned results.
type mockClient struct {
	calls     []model.ActivityRecord
	messages  []model.ActivityRecord
	numbers   []model.OwnedNumber
	config    *model.NumberConfig
	events    []model.CallEvent
	detail    *model.MessageDetail
	searchErr error
	detailErr error
}

func (m *mockClient) SearchCalls(_ context.Context, _ string, _ model.DateRange) ([]model.ActivityRecord, error) {
	return m.calls, m.searchErr
}

func (m *mockClient) SearchMessages(_ context.Context, _ string, _ model.DateRange) ([]model.ActivityRecord, error) {
	return m.messages, m.searchErr
}

func (m *mockClient) ListNumbers(_ context.Context) ([]model.OwnedNumber, error) {
	return m.numbers, m.searchErr
}

func (m *mockClient) GetNumberConfig(_ context.Context, _ string) (*model.NumberConfig, error) {
	return m.config, m.detailErr
}

func (m *mockClient) GetCallEvents(_ context.Context, _ string) ([]model.CallEvent, error) {
	return m.events, m.detailErr
}

func (m *mockClient) GetMessageDetail(_ context.Context, _ string) (*model.MessageDetail, error) {
	return m.detail, m.detailErr
}

// --- Test helpers ---

func testAccount(name string) model.Account {
	return model.Account{
		Name:      name,
		SID:       "AC" + strings.Repeat("0", 32),
		AuthToken: strings.Repeat("a", 32),
	}
}

// newTestServer wires the full stack (registry over a mock store, fetch
// service over a mock client) behind the real mux and middleware.
func newTestServer(t *testing.T, client *mockClient, accounts ...model.Account) (http.Handler, *application.AccountRegistry) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := application.NewAccountRegistry(newMockStore(accounts...))
	require.NoError(t, registry.Reload(context.Background()))

	factory := func(_ model.Account) driven.TelephonyClient { return client }
	fetchSvc := application.NewFetchService(registry, factory, 365)

	handler := httphandler.NewHandler(registry, fetchSvc, 30, logger)
	return httphandler.NewServeMux(handler, logger), registry
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

const activityQuery = "/api/v1/activity?kind=calls&number=%2B19193736940&start=2026-08-01&end=2026-08-15"

// --- Tests ---

func TestHealth(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[httphandler.HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
}

func TestListAccounts_OmitsTokens(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{}, testAccount("prod"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/accounts", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "auth_token")
	assert.NotContains(t, rec.Body.String(), strings.Repeat("a", 32))

	resp := decodeJSON[[]httphandler.AccountResponse](t, rec)
	require.Len(t, resp, 1)
	assert.Equal(t, "prod", resp[0].Name)
}

func TestAddAccount(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{})

	body := `{"name":"prod","account_sid":"AC` + strings.Repeat("0", 32) + `","auth_token":"` + strings.Repeat("a", 32) + `"}`
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/accounts", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "auth_token")

	// Duplicate add conflicts.
	rec = doRequest(t, handler, http.MethodPost, "/api/v1/accounts", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddAccount_InvalidCredentials(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{})

	body := `{"name":"prod","account_sid":"bogus","auth_token":"short"}`
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/accounts", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "account_sid")
}

func TestPutAccount_Upserts(t *testing.T) {
	handler, registry := newTestServer(t, &mockClient{}, testAccount("prod"))

	newToken := strings.Repeat("b", 32)
	body := `{"account_sid":"AC` + strings.Repeat("0", 32) + `","auth_token":"` + newToken + `"}`
	rec := doRequest(t, handler, http.MethodPut, "/api/v1/accounts/prod", body)

	require.Equal(t, http.StatusOK, rec.Code)

	acc, err := registry.Get("prod")
	require.NoError(t, err)
	assert.Equal(t, newToken, acc.AuthToken)
}

func TestRemoveAccount(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{}, testAccount("prod"))

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/accounts/prod", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, handler, http.MethodDelete, "/api/v1/accounts/prod", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveAccount(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{}, testAccount("prod"))

	// No active account at startup.
	rec := doRequest(t, handler, http.MethodGet, "/api/v1/accounts/active", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPut, "/api/v1/accounts/active", `{"name":"prod"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/accounts/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[httphandler.ActiveAccountResponse](t, rec)
	assert.Equal(t, "prod", resp.Name)

	// Unknown account cannot become active.
	rec = doRequest(t, handler, http.MethodPut, "/api/v1/accounts/active", `{"name":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchActivity(t *testing.T) {
	ts := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	client := &mockClient{
		calls: []model.ActivityRecord{
			{SID: "CA01", Kind: model.KindCall, Direction: model.DirectionInbound, Timestamp: ts, Status: "completed", Duration: 61},
		},
	}
	handler, registry := newTestServer(t, client, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	rec := doRequest(t, handler, http.MethodGet, activityQuery, "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[httphandler.ActivityResponse](t, rec)
	assert.Equal(t, "prod", resp.Account)
	assert.Equal(t, "+19193736940", resp.Number, "normalized number is echoed")
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "CA01", resp.Records[0].SID)
	assert.Equal(t, 61, resp.Records[0].Duration)
}

func TestSearchActivity_NoActiveAccount(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{}, testAccount("prod"))

	rec := doRequest(t, handler, http.MethodGet, activityQuery, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchActivity_BadParams(t *testing.T) {
	handler, registry := newTestServer(t, &mockClient{}, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	for name, target := range map[string]string{
		"missing kind":   "/api/v1/activity?number=%2B19193736940&start=2026-08-01&end=2026-08-15",
		"bad kind":       "/api/v1/activity?kind=faxes&number=%2B19193736940&start=2026-08-01&end=2026-08-15",
		"bad date":       "/api/v1/activity?kind=calls&number=%2B19193736940&start=August&end=2026-08-15",
		"missing number": "/api/v1/activity?kind=calls&start=2026-08-01&end=2026-08-15",
		"inverted range": "/api/v1/activity?kind=calls&number=%2B19193736940&start=2026-08-15&end=2026-08-01",
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchActivity_ProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		kind       driven.APIErrorKind
		wantStatus int
	}{
		{name: "auth", kind: driven.APIErrAuth, wantStatus: http.StatusBadGateway},
		{name: "network", kind: driven.APIErrNetwork, wantStatus: http.StatusBadGateway},
		{name: "rate limited", kind: driven.APIErrRateLimited, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{searchErr: &driven.APIError{Kind: tt.kind, Message: "boom"}}
			handler, registry := newTestServer(t, client, testAccount("prod"))
			require.NoError(t, registry.SetActive("prod"))

			rec := doRequest(t, handler, http.MethodGet, activityQuery, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestExportActivity_CSV(t *testing.T) {
	ts := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	client := &mockClient{
		calls: []model.ActivityRecord{
			{SID: "CA01", Kind: model.KindCall, Direction: model.DirectionInbound, Timestamp: ts, Status: "completed", Duration: 61},
		},
	}
	handler, registry := newTestServer(t, client, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/activity/export?kind=calls&number=%2B19193736940&start=2026-08-01&end=2026-08-15", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Direction,From,To,Start Time"))
	assert.Contains(t, rec.Body.String(), "CA01")
}

func TestGetCallEvents(t *testing.T) {
	client := &mockClient{
		events: []model.CallEvent{{Name: "initiated", Timestamp: "2026-08-10T12:00:00Z"}},
	}
	handler, registry := newTestServer(t, client, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/calls/CA01/events", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[[]httphandler.CallEventResponse](t, rec)
	require.Len(t, resp, 1)
	assert.Equal(t, "initiated", resp[0].Name)
}

func TestGetMessageDetail_NotFound(t *testing.T) {
	client := &mockClient{
		detailErr: &driven.APIError{Kind: driven.APIErrNotFound, StatusCode: 404, Message: "no such message"},
	}
	handler, registry := newTestServer(t, client, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/messages/SM404", "")

	// Provider errors surface as gateway failures, not local 404s.
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListNumbersAndConfig(t *testing.T) {
	client := &mockClient{
		numbers: []model.OwnedNumber{{SID: "PN01", PhoneNumber: "+15550001111", FriendlyName: "Main"}},
		config: &model.NumberConfig{
			SID:         "PN01",
			PhoneNumber: "+15550001111",
			Values:      map[string]string{"voice_url": "https://example.com/voice"},
		},
	}
	handler, registry := newTestServer(t, client, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/numbers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	numbers := decodeJSON[[]httphandler.NumberResponse](t, rec)
	require.Len(t, numbers, 1)
	assert.Equal(t, "Main", numbers[0].FriendlyName)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/numbers/PN01/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeJSON[httphandler.NumberConfigResponse](t, rec)
	assert.Equal(t, "https://example.com/voice", cfg.Values["voice_url"])
}

func TestScanInactiveNumbers(t *testing.T) {
	client := &mockClient{
		numbers: []model.OwnedNumber{{SID: "PN01", PhoneNumber: "+15550001111"}},
	}
	handler, registry := newTestServer(t, client, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/numbers/inactive?days=60", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[[]httphandler.InactiveNumberResponse](t, rec)
	require.Len(t, resp, 1)
	assert.Equal(t, "PN01", resp[0].SID)
	assert.Empty(t, resp[0].LastActivity)
}

func TestScanInactiveNumbers_BadDays(t *testing.T) {
	handler, registry := newTestServer(t, &mockClient{}, testAccount("prod"))
	require.NoError(t, registry.SetActive("prod"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/numbers/inactive?days=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/numbers/inactive?days=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	handler, _ := newTestServer(t, &mockClient{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/health", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
