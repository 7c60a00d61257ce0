package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/middleware"
)

const (
	FlagComplete = "ACTION_COMPLETE"
	FlagFailed   = "ACTION_FAILED"

	maxBodyBytes = 1 << 20
)

// Responder writes the {log, flag, ...payload} envelope every endpoint
// answers with.
type Responder struct {
	// Always200 answers failures with 200 as older clients expect.
	Always200 bool
	Log       *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Complete writes a success envelope. payload keys sit beside log and flag,
// which always win.
func (rs Responder) Complete(w http.ResponseWriter, msg string, payload map[string]any) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["log"] = msg
	body["flag"] = FlagComplete
	writeJSON(w, http.StatusOK, body)
}

// Fail maps err to a status code and writes a failure envelope. Storage
// details are logged, never returned.
func (rs Responder) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := common.Message(err)

	switch {
	case errors.Is(err, common.ErrTimeout):
		msg = "Request timed out"
		rs.Log.WarnContext(r.Context(), "request timed out",
			"request_id", middleware.RequestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	case status >= http.StatusInternalServerError:
		msg = "Server execution error"
		rs.Log.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.RequestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}

	if rs.Always200 {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"log": msg, "flag": FlagFailed})
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrVerificationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrDuplicateRequest),
		errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrQuorumNotMet):
		return http.StatusConflict
	case errors.Is(err, common.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errBadBody = common.Validation("Invalid request body")

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return errBadBody
	}
	return nil
}

// otpValue accepts the code as a JSON number or a string.
type otpValue string

func (o *otpValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = otpValue(s)
		return nil
	}
	if string(data) == "null" {
		*o = ""
		return nil
	}
	*o = otpValue(strings.TrimSpace(string(data)))
	return nil
}
