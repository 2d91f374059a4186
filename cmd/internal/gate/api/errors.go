package gateapi

import (
	"errors"
	"net/http"

	"gatepass/cmd/internal/actor"
	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/credential"
	"gatepass/cmd/internal/gate"
	"gatepass/cmd/internal/visit"
	"gatepass/cmd/visitor"
)

// writeDomainError maps domain sentinels to HTTP responses. Unknown errors
// become opaque 500s; the caller logs them.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, actor.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed for this actor")
	case errors.Is(err, blacklist.ErrBlocked):
		writeError(w, http.StatusForbidden, "visitor_blacklisted", "visitor is blacklisted")
	case errors.Is(err, gate.ErrConsentRequired):
		writeError(w, http.StatusBadRequest, "consent_required", "visitor consent is required for check-in")
	case errors.Is(err, gate.ErrOutsideArrivalWindow):
		writeError(w, http.StatusConflict, "outside_arrival_window", "arrival is outside the expected window; retry with override_window")
	case errors.Is(err, gate.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "busy", "gate is busy, please retry")
	case errors.Is(err, credential.ErrAlreadyConsumed):
		writeError(w, http.StatusConflict, "already_consumed", "credential was already used")
	case errors.Is(err, credential.ErrInvalidCredential):
		writeError(w, http.StatusNotFound, "invalid_credential", "invalid or expired credential")
	case errors.Is(err, visit.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "visit is not in a state that allows this action")
	case errors.Is(err, visit.ErrNotFound),
		errors.Is(err, visitor.ErrNotFound),
		errors.Is(err, blacklist.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, visit.ErrInvalidInput),
		errors.Is(err, visitor.ErrInvalidInput),
		errors.Is(err, blacklist.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// isServerError reports whether the mapped status would be 5xx, so handlers
// know when to log at error level.
func isServerError(err error) bool {
	if errors.Is(err, gate.ErrBusy) {
		return false
	}
	for _, sentinel := range []error{
		actor.ErrForbidden,
		blacklist.ErrBlocked,
		gate.ErrConsentRequired,
		gate.ErrOutsideArrivalWindow,
		credential.ErrAlreadyConsumed,
		credential.ErrInvalidCredential,
		visit.ErrInvalidTransition,
		visit.ErrNotFound,
		visitor.ErrNotFound,
		blacklist.ErrNotFound,
		visit.ErrInvalidInput,
		visitor.ErrInvalidInput,
		blacklist.ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}
