package domain

import "errors"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrMessageNotFound  = errors.New("message not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrEmptyMessage     = errors.New("message must have content or an image")
	ErrEmailTaken       = errors.New("email already registered")
	ErrStoreUnavailable = errors.New("store unavailable")
)
