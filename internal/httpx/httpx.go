// Package httpx holds the small JSON and paging helpers shared by the REST
// surfaces of the four services.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// Page is a paging request parsed from query params.
type Page struct {
	Number int // zero-based
	Size   int
}

// ParsePage reads page/size query params with sane bounds.
func ParsePage(r *http.Request) Page {
	p := Page{Number: 0, Size: 20}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v >= 0 {
		p.Number = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && v > 0 && v <= 100 {
		p.Size = v
	}
	return p
}

// Offset returns the row offset for the page.
func (p Page) Offset() int { return p.Number * p.Size }
