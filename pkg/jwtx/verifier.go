package jwtx

import "errors"

var (
	ErrWeakSecret = errors.New("jwtx: signing secret must be at least 32 characters")

	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrInvalidSig    = errors.New("jwtx: invalid signature")
	ErrExpired       = errors.New("jwtx: token expired")
	ErrNotYetValid   = errors.New("jwtx: token not yet valid")
	ErrInvalidClaims = errors.New("jwtx: invalid claims")
)
