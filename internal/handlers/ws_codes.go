// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby handler.
const (
	BadSubprotocolError   = 3000 // Client connected without the lobby subprotocol.
	InvalidAuthTokenError = 3001 // Presented player token was invalid or expired.
)
