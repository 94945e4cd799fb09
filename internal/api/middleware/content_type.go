package middleware

import (
	"mime"
	"net/http"

	"github.com/saferoute/saferoute/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only set if not already set (allows handlers to override)
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON answers 415 when a POST, PUT or PATCH body is declared as
// anything but application/json. Requests without a Content-Type, and
// bodyless commands such as POST /incidents:refresh, are passed through.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBody(r) && !declaresJSON(r.Header.Get("Content-Type")) {
			models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be application/json").
				WithInstance(r.URL.Path).
				Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hasBody treats an unknown length (-1) as a body unless the request carries
// no body reader at all.
func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
	}
	return false
}

func declaresJSON(ct string) bool {
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == "application/json"
}
