package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/groshare/groupbuy/internal/domain/order"
)

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respondDomainError maps domain error kinds to HTTP statuses. Only the
// transport layer knows about status codes; the lifecycle service returns
// error kinds.
func respondDomainError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, order.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, order.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, order.ErrAuthorization):
		code = http.StatusForbidden
	case errors.Is(err, order.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, order.ErrConcurrency):
		// Transient: the caller retries from a fresh read.
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}
	respondJSON(w, code, map[string]string{"error": err.Error()})
}

// Pagination is the list-response envelope.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalOrders int  `json:"totalOrders"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

func newPagination(page, limit, total int) Pagination {
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalOrders: total,
		HasNext:     page*limit < total,
		HasPrev:     page > 1,
	}
}
