package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/middleware"
	"github.com/capitalize-ai/assistant-engine/internal/model"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON error shape.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the status for err's code.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeJSON(w, statusFor(code), errorBody{Error: errorDetail{Code: code, Message: apperr.Message(err)}})
}

// writeUnavailable reports a collaborator that is not configured.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errorDetail{
		Code:    apperr.CodeUpstreamUnavailable,
		Message: message,
	}})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeAlreadyTerminal:
		return http.StatusConflict
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case apperr.CodeConfirmationRequired:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// writeAction writes an ActionResult. Executed and confirmation results are
// 200; errors use statusFor.
func writeAction(w http.ResponseWriter, r *model.ActionResult) {
	status := http.StatusOK
	if r.Kind == model.ActionError {
		status = statusFor(r.Code)
	}
	writeJSON(w, status, actionBody(r))
}

func actionBody(r *model.ActionResult) map[string]any {
	body := map[string]any{
		"success": r.Success(),
		"kind":    r.Kind,
		"message": r.Message,
	}
	if r.Resource != "" {
		body["resource"] = r.Resource
	}
	if r.Payload != nil {
		body["data"] = r.Payload
	}
	if r.Code != "" {
		body["code"] = r.Code
	}
	if r.Kind == model.ActionConfirmationRequired {
		body["requires_confirmation"] = true
	}
	return body
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// confirmedFlag reads confirmed from the query string, then from a JSON
// body. Anything else counts as not confirmed.
func confirmedFlag(r *http.Request) bool {
	if v := r.URL.Query().Get("confirmed"); v != "" {
		ok, _ := strconv.ParseBool(v)
		return ok
	}
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	var body struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return false
	}
	return body.Confirmed
}

// urlID parses the {id} route parameter.
func urlID(r *http.Request) (uint, error) {
	return middleware.ParseID(chi.URLParam(r, "id"))
}

// queryBool reads an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Validation("invalid %s %q", name, raw)
	}
	return v, nil
}
