package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"preecode/internal/api/middleware"
	"preecode/internal/common"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so clients can map errors to inputs.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Guards are the middleware chains handlers attach to protected routes.
type Guards struct {
	Auth func(http.Handler) http.Handler
	// EarlyAccess is nil when enforcement is off.
	EarlyAccess func(http.Handler) http.Handler
}

func (g Guards) authed() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{g.Auth}
}

func (g Guards) gated() []func(http.Handler) http.Handler {
	if g.EarlyAccess == nil {
		return g.authed()
	}
	return []func(http.Handler) http.Handler{g.Auth, g.EarlyAccess}
}

// decodeAndValidate writes the error response itself and reports whether the
// handler should continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.RespondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			common.RespondWithValidationError(w, fieldMessages(verrs))
			return false
		}
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func fieldMessages(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without_all":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return "is invalid"
	}
}

// respondError maps err to a status and hides internal details from 5xx
// responses. The full error is logged.
func respondError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := common.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	common.RespondWithError(w, status, common.PublicMessage(err))
}

// pathUserID reads {id} and rejects anything that is not a UUID.
func pathUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid user id")
		return "", false
	}
	return id, true
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return "", false
	}
	return userID, true
}
