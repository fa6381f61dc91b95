package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/intake-tracker/internal/apperror"
)

// decodeJSON reads a JSON request body into dst, rejecting unknown fields and
// bodies over 64 KiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be a valid JSON object: "+err.Error())
	}
	return nil
}

// pathParam returns a chi URL parameter, decoded exactly once.
//
// chi routes on r.URL.RawPath when it is set, and then hands back params
// still escaped. Otherwise it routes on r.URL.Path, which net/http has
// already decoded, and a second unescape would turn "a%41" into "aA".
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
