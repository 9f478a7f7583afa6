package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"backend/internal/domain"
	"backend/internal/repository"
)

// All responses share one envelope: {ok:true,data} on success and
// {ok:false,error:{code,message,details}} on failure. Clients branch on the
// error code, never the message.

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"ok": true, "data": data})
}

func writeErr(w http.ResponseWriter, err error) {
	var domainErr *domain.Error
	switch {
	case errors.As(err, &domainErr):
		writeJSON(w, domainErr.Status, map[string]any{"ok": false, "error": errorBody{
			Code: domainErr.Code, Message: domainErr.Message, Details: domainErr.Details,
		}})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": errorBody{
			Code: domain.CodeNotFound, Message: "not found",
		}})
	case errors.Is(err, repository.ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": errorBody{
			Code: domain.CodeDuplicate, Message: "already exists",
		}})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": errorBody{
			Code: domain.CodeInternal, Message: "internal error",
		}})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var validate = validator.New()

// decodeJSON parses the body and runs struct-tag validation. Unknown fields
// are rejected so typos surface as 400s instead of silently dropped data.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %s", err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return domain.Validationf("field %s failed on %s", first.Field(), first.Tag())
		}
		return domain.Validationf("%s", err.Error())
	}
	return nil
}

func parseOptionalInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	var value int
	if _, err := fmt.Sscanf(raw, "%d", &value); err != nil {
		return 0, domain.Validationf("invalid integer %q", raw)
	}
	return value, nil
}
