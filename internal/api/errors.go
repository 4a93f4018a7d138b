package api

import (
	"encoding/json"
	"net/http"

	"sessionbook/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// httpStatus maps a service error to its HTTP status.
func httpStatus(e *domain.Error) int {
	switch e.Kind {
	case domain.KindValidation:
		if e.Code == domain.ErrRateLimited.Code {
			return http.StatusTooManyRequests
		}
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(e *domain.Error) codes.Code {
	switch e.Kind {
	case domain.KindValidation:
		if e.Code == domain.ErrRateLimited.Code {
			return codes.ResourceExhausted
		}
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		if e.Code == domain.ErrInvalidTransition.Code {
			return codes.FailedPrecondition
		}
		return codes.AlreadyExists
	case domain.KindAuthorization:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// publicMessage hides the cause of dependency failures from callers.
func publicMessage(e *domain.Error) string {
	if e.Kind == domain.KindDependency {
		return domain.ErrStoreFailure.Message
	}
	return e.Message
}

func grpcError(err error) error {
	e := domain.AsError(err)
	return status.Error(grpcCode(e), e.Code+": "+publicMessage(e))
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	e := domain.AsError(err)
	writeJSON(w, httpStatus(e), map[string]string{"error": publicMessage(e), "code": e.Code})
}
