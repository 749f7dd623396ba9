package util

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// APIError represents a structured error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the top-level error envelope.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a structured error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error: APIError{Code: code, Message: message},
	})
}

// ParseFrom extracts the "from" query parameter, the exclusive lower bound
// of an accession listing. Absent or unparsable values mean zero (list from
// the beginning).
func ParseFrom(r *http.Request) uint64 {
	s := r.URL.Query().Get("from")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseLimit extracts the limit query parameter with default and max bounds.
func ParseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// Negotiate picks the first offered media type acceptable to the request.
// An empty Accept header accepts the first offer. Returns "" when nothing
// offered is acceptable, which callers map to a 415.
func Negotiate(r *http.Request, offers ...string) string {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return offers[0]
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(part)
		if i := strings.IndexByte(mediaType, ';'); i >= 0 {
			mediaType = strings.TrimSpace(mediaType[:i])
		}
		if mediaType == "*/*" {
			return offers[0]
		}
		for _, offer := range offers {
			if strings.EqualFold(mediaType, offer) {
				return offer
			}
			if prefix, ok := strings.CutSuffix(mediaType, "/*"); ok &&
				strings.HasPrefix(offer, strings.ToLower(prefix)+"/") {
				return offer
			}
		}
	}
	return ""
}
