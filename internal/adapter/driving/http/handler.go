package httphandler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/twilman/twilman/internal/application"
	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

const queryDateLayout = "2006-01-02"

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	registry     *application.AccountRegistry
	fetchSvc     *application.FetchService
	inactiveDays int
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. inactiveDays
// is the scan threshold used when the request does not carry one.
func NewHandler(
	registry *application.AccountRegistry,
	fetchSvc *application.FetchService,
	inactiveDays int,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry:     registry,
		fetchSvc:     fetchSvc,
		inactiveDays: inactiveDays,
		logger:       logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/accounts", h.ListAccounts)
	mux.HandleFunc("POST /api/v1/accounts", h.AddAccount)
	mux.HandleFunc("PUT /api/v1/accounts/{name}", h.PutAccount)
	mux.HandleFunc("DELETE /api/v1/accounts/{name}", h.RemoveAccount)
	mux.HandleFunc("GET /api/v1/accounts/active", h.GetActiveAccount)
	mux.HandleFunc("PUT /api/v1/accounts/active", h.SetActiveAccount)

	mux.HandleFunc("GET /api/v1/activity", h.SearchActivity)
	mux.HandleFunc("GET /api/v1/activity/export", h.ExportActivity)
	mux.HandleFunc("GET /api/v1/calls/{sid}/events", h.GetCallEvents)
	mux.HandleFunc("GET /api/v1/messages/{sid}", h.GetMessageDetail)

	mux.HandleFunc("GET /api/v1/numbers", h.ListNumbers)
	mux.HandleFunc("GET /api/v1/numbers/inactive", h.ScanInactiveNumbers)
	mux.HandleFunc("GET /api/v1/numbers/{sid}/config", h.GetNumberConfig)

	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListAccounts returns all stored accounts, tokens omitted.
func (h *Handler) ListAccounts(w http.ResponseWriter, _ *http.Request) {
	accounts := h.registry.List()

	resp := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		resp = append(resp, toAccountResponse(acc))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddAccount stores a new account. An existing name is a conflict; updates
// go through PutAccount.
func (h *Handler) AddAccount(w http.ResponseWriter, r *http.Request) {
	var req PutAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acc := model.Account{Name: req.Name, SID: req.AccountSID, AuthToken: req.AuthToken}
	if err := h.registry.Add(r.Context(), acc); err != nil {
		h.writeDomainError(w, err, "add account", "name", req.Name)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(acc))
}

// PutAccount creates or replaces the named account.
func (h *Handler) PutAccount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req PutAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" && req.Name != name {
		writeError(w, http.StatusBadRequest, "name in body does not match URL")
		return
	}

	acc := model.Account{Name: name, SID: req.AccountSID, AuthToken: req.AuthToken}
	if err := h.registry.Put(r.Context(), acc); err != nil {
		h.writeDomainError(w, err, "put account", "name", name)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// RemoveAccount deletes the named account from the store.
func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.registry.Remove(r.Context(), name); err != nil {
		h.writeDomainError(w, err, "remove account", "name", name)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetActiveAccount reports which account queries currently run against.
func (h *Handler) GetActiveAccount(w http.ResponseWriter, _ *http.Request) {
	acc, err := h.registry.Active()
	if err != nil {
		h.writeDomainError(w, err, "get active account")
		return
	}

	writeJSON(w, http.StatusOK, ActiveAccountResponse{Name: acc.Name})
}

// SetActiveAccount switches the account queries run against.
func (h *Handler) SetActiveAccount(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.registry.SetActive(req.Name); err != nil {
		h.writeDomainError(w, err, "set active account", "name", req.Name)
		return
	}

	writeJSON(w, http.StatusOK, ActiveAccountResponse{Name: req.Name})
}

// SearchActivity fetches call or message activity for a number over a date
// range and returns it newest first.
func (h *Handler) SearchActivity(w http.ResponseWriter, r *http.Request) {
	req, err := parseQueryRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.fetchSvc.SearchActivity(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "search activity", "kind", req.Kind, "number", req.Number)
		return
	}

	resp := ActivityResponse{
		Account: req.AccountName,
		Kind:    string(req.Kind),
		Number:  req.Number,
		Count:   len(records),
		Records: make([]ActivityRecordResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, toActivityRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ExportActivity runs the same search as SearchActivity and streams the
// result as a CSV download.
func (h *Handler) ExportActivity(w http.ResponseWriter, r *http.Request) {
	req, err := parseQueryRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.fetchSvc.SearchActivity(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "export activity", "kind", req.Kind, "number", req.Number)
		return
	}

	filename := fmt.Sprintf("%s_%s_%s.csv", req.Kind, req.Number, time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	if err := application.WriteCSV(w, req.Kind, records); err != nil {
		// Headers are already sent; all we can do is log.
		h.logger.Error("csv export failed mid-stream", "error", err)
	}
}

// GetCallEvents returns the event trail of one call.
func (h *Handler) GetCallEvents(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	events, err := h.fetchSvc.CallEvents(r.Context(), r.URL.Query().Get("account"), sid)
	if err != nil {
		h.writeDomainError(w, err, "get call events", "sid", sid)
		return
	}

	resp := make([]CallEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toCallEventResponse(ev))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetMessageDetail returns the full record of one message.
func (h *Handler) GetMessageDetail(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	detail, err := h.fetchSvc.MessageDetail(r.Context(), r.URL.Query().Get("account"), sid)
	if err != nil {
		h.writeDomainError(w, err, "get message detail", "sid", sid)
		return
	}

	writeJSON(w, http.StatusOK, toMessageDetailResponse(*detail))
}

// ListNumbers returns the account's provisioned numbers.
func (h *Handler) ListNumbers(w http.ResponseWriter, r *http.Request) {
	numbers, err := h.fetchSvc.ListNumbers(r.Context(), r.URL.Query().Get("account"))
	if err != nil {
		h.writeDomainError(w, err, "list numbers")
		return
	}

	resp := make([]NumberResponse, 0, len(numbers))
	for _, n := range numbers {
		resp = append(resp, toNumberResponse(n))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetNumberConfig returns the configuration snapshot of one number.
func (h *Handler) GetNumberConfig(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	cfg, err := h.fetchSvc.NumberConfig(r.Context(), r.URL.Query().Get("account"), sid)
	if err != nil {
		h.writeDomainError(w, err, "get number config", "sid", sid)
		return
	}

	writeJSON(w, http.StatusOK, toNumberConfigResponse(*cfg))
}

// ScanInactiveNumbers lists numbers with no activity in the trailing
// threshold window. The days query parameter overrides the configured
// default.
func (h *Handler) ScanInactiveNumbers(w http.ResponseWriter, r *http.Request) {
	days := h.inactiveDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid days parameter")
			return
		}
		days = parsed
	}

	inactive, err := h.fetchSvc.ScanInactive(r.Context(), r.URL.Query().Get("account"), days, nil)
	if err != nil {
		h.writeDomainError(w, err, "scan inactive numbers", "days", days)
		return
	}

	resp := make([]InactiveNumberResponse, 0, len(inactive))
	for _, in := range inactive {
		resp = append(resp, toInactiveNumberResponse(in))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// parseQueryRequest builds a QueryRequest from search query parameters.
// Full normalization happens in the application layer; this only parses
// shapes the URL can get wrong.
func parseQueryRequest(r *http.Request) (model.QueryRequest, error) {
	q := r.URL.Query()

	kind, err := model.ParseRecordKind(q.Get("kind"))
	if err != nil {
		return model.QueryRequest{}, err
	}

	start, err := parseQueryDate(q.Get("start"), "start")
	if err != nil {
		return model.QueryRequest{}, err
	}
	end, err := parseQueryDate(q.Get("end"), "end")
	if err != nil {
		return model.QueryRequest{}, err
	}

	return model.QueryRequest{
		AccountName: q.Get("account"),
		Kind:        kind,
		Number:      q.Get("number"),
		Range:       model.DateRange{Start: start, End: end},
	}, nil
}

func parseQueryDate(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, &model.ValidationError{Field: field, Reason: "is required (YYYY-MM-DD)"}
	}
	t, err := time.Parse(queryDateLayout, raw)
	if err != nil {
		return time.Time{}, &model.ValidationError{Field: field, Reason: "must be YYYY-MM-DD"}
	}
	return t, nil
}

// writeDomainError maps application and port errors onto HTTP statuses.
// Unrecognized errors are logged and returned as opaque 500s.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, op string, args ...any) {
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, vErr.Error())
		return
	}

	switch {
	case errors.Is(err, application.ErrNoAccountSelected):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, driven.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, driven.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrFetchInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, driven.ErrCorruptStore):
		h.logger.Error("credential store is corrupt", "error", err)
		writeError(w, http.StatusInternalServerError, "credential store is corrupt")
	default:
		var apiErr *driven.APIError
		if errors.As(err, &apiErr) {
			status := http.StatusBadGateway
			if apiErr.Kind == driven.APIErrRateLimited {
				status = http.StatusServiceUnavailable
			}
			h.logger.Error("provider request failed", append([]any{"op", op, "error", err}, args...)...)
			writeError(w, status, apiErr.Error())
			return
		}

		h.logger.Error("request failed", append([]any{"op", op, "error", err}, args...)...)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
