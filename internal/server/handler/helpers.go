package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sidebet/relayer/internal/domain"
)

// decodeJSON reads and decodes a JSON request body, rejecting unknown
// fields so typos in client payloads surface as validation errors.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseListOpts extracts standard pagination parameters from the query
// string. Default limit is 50; the documented range is 1..100 and violations
// are rejected as a ValidationError rather than silently clamped. offset
// defaults to 0 and must be non-negative.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return domain.ListOpts{}, errors.New("limit must be an integer between 1 and 100")
		}
		limit = n
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return domain.ListOpts{}, errors.New("offset must be a non-negative integer")
		}
		offset = n
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}, nil
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
