package auth

import "errors"

var (
	ErrStoreRequired   = errors.New("session store is required")
	ErrLoginSuperseded = errors.New("login superseded by a later session change")
)
