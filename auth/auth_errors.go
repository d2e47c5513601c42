package auth

import "errors"

var (
	// ErrPlatformChanged aborts a mount whose platform is no longer the detected one.
	ErrPlatformChanged = errors.New("platform changed")
	// ErrNoAutoLogin is returned by strategies that never log in on their own.
	ErrNoAutoLogin = errors.New("no automatic login for this platform")
)
