package middleware

import (
	"net/http"
	"strings"
)

// Identity is established upstream; these headers carry it to the service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

func UserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

func UserName(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserName))
}
