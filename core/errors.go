package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrIdentityNotFound = errors.New("wallet identity not found")
	ErrNonceNotFound    = errors.New("nonce not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionEnded     = errors.New("session has ended")
	ErrInvalidEventKind = errors.New("unknown event kind")
	ErrMissingCourseID  = errors.New("payload is missing courseId")
	ErrStoreUnavailable = errors.New("store operation failed")
)
