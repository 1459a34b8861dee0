package auth

import "fmt"

var (
	ErrInvalidToken         = fmt.Errorf("invalid token")
	ErrInvalidSigningMethod = fmt.Errorf("invalid signing method")
	ErrInvalidCredentials   = fmt.Errorf("invalid email or password")
	ErrUnknownRole          = fmt.Errorf("unknown role")
)
