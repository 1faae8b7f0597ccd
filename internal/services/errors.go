package services

import "errors"

// Request-scoped errors travel back through the acknowledgement callback or
// a *:error event scoped to the requester; they are never broadcast and
// never fatal to the connection. Connection-fatal ones close the socket.
var (
	ErrAuthentication    = errors.New("invalid or missing credentials")
	ErrKeyExchange       = errors.New("key exchange failed")
	ErrSessionExpired    = errors.New("session expired")
	ErrTenantMismatch    = errors.New("target client not found in tenant")
	ErrNotAMember        = errors.New("user is not a member of this room")
	ErrRoomNotFound      = errors.New("room not found")
	ErrValidation        = errors.New("invalid input")
	ErrDecryptionFailure = errors.New("frame decryption failed")
)
