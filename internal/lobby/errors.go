// internal/lobby/errors.go
package lobby

// Error codes reported to clients in lobby:error.
const (
	CodeLobbyNotFound     = "LobbyNotFound"
	CodeLobbyFull         = "LobbyFull"
	CodeAlreadyMember     = "AlreadyMember"
	CodeNotAMember        = "NotAMember"
	CodeInvalidTransition = "InvalidTransition"
	CodeEngineUnavailable = "EngineUnavailable"
)

// Error is a client-recoverable lobby error. Errors are compared by Code, so
// errors.Is(err, ErrLobbyFull) holds for any *Error with the LobbyFull code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches on code so callers can attach context to a sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrLobbyNotFound     = &Error{Code: CodeLobbyNotFound, Message: "lobby does not exist"}
	ErrLobbyFull         = &Error{Code: CodeLobbyFull, Message: "lobby is full"}
	ErrAlreadyMember     = &Error{Code: CodeAlreadyMember, Message: "player is already a lobby member"}
	ErrNotAMember        = &Error{Code: CodeNotAMember, Message: "player is not a member of this lobby"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "command not allowed in the current lobby state"}
	ErrEngineUnavailable = &Error{Code: CodeEngineUnavailable, Message: "game engine did not accept the handoff, retry game:init"}

	errLobbyClosed = &Error{Code: CodeInvalidTransition, Message: "lobby is closed"}
)

func invalidTransition(msg string) *Error {
	return &Error{Code: CodeInvalidTransition, Message: msg}
}
