package httpadapter

import (
	"net/http"

	"questmine/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrAttributionMissing):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrBackendRejected):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrNetworkFailure):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
