package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// TokenCookie carries the player token for browser clients.
const TokenCookie = "lobby_token"

// requestToken returns the player token from the "token" query parameter or
// the lobby_token cookie, in that order.
func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
