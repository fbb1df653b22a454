package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// ErrorBody is the JSON shape of every failed response
type ErrorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorBody{Error: message})
}

// StatusOf maps an error kind to its HTTP status
func StatusOf(err error) int {
	switch contracts.KindOf(err) {
	case contracts.KindInputValidation:
		return http.StatusBadRequest
	case contracts.KindNotFound:
		return http.StatusNotFound
	case contracts.KindConcurrencyConflict, contracts.KindExecutionMismatch, contracts.KindInvalidTransition:
		return http.StatusConflict
	case contracts.KindDataUnavailable:
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondErr writes a typed error; anything untyped is logged and hidden
func respondErr(w http.ResponseWriter, log *logger.Logger, err error, msg string) {
	status := StatusOf(err)

	var cerr *contracts.Error
	if !errors.As(err, &cerr) {
		log.WithError(err).Error(msg)
		respondError(w, status, msg)
		return
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).Error(msg)
	}
	respondJSON(w, status, ErrorBody{
		Error:     cerr.Error(),
		Kind:      string(cerr.Kind),
		Code:      cerr.Code,
		Field:     cerr.Field,
		Reason:    cerr.Reason,
		Retryable: contracts.Retryable(err),
	})
}

// decodeJSON reads a JSON body into dst; an empty body leaves dst untouched
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return contracts.InvalidInput("body", "invalid JSON: %v", err)
	}
	return nil
}

// pathID parses a positive integer route variable
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, contracts.InvalidInput(name, "invalid id %q", raw)
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter
func queryID(r *http.Request, name string) (int64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, contracts.InvalidInput(name, "invalid id %q", raw)
	}
	return id, true, nil
}

// parseDay parses YYYY-MM-DD; empty yields the zero time
func parseDay(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, contracts.InvalidInput(field, "expected YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}
