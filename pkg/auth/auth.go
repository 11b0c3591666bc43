package auth

import (
	"net/http"
	"strings"
)

// Header carries the caller identity set by the upstream auth layer.
const Header = "X-User-ID"

// UserID returns the caller identity from the request, or false when the
// header is missing or blank.
func UserID(r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(Header))
	return userID, userID != ""
}
