package service

import (
	"context"

	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/pkg/logger"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticate(email, password string) (*auth.Account, error)
}

type AuthService struct {
	accounts Authenticator
	issuer   *auth.TokenIssuer
}

func NewAuthService(accounts Authenticator, issuer *auth.TokenIssuer) *AuthService {
	return &AuthService{
		accounts: accounts,
		issuer:   issuer,
	}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *auth.Session, *Error) {
	l := logger.FromContext(ctx)

	acc, err := s.accounts.Authenticate(email, password)
	if err != nil {
		l.Info("login refused", zap.String("email", email))
		return "", nil, NewError(ErrorCodeUnauthorized, "invalid email or password")
	}

	token, session, err := s.issuer.Issue(acc)
	if err != nil {
		l.Error("failed to issue session token", zap.Error(err))
		return "", nil, NewError(ErrorCodeUnspecified, "failed to start session")
	}

	l.Info("signed in", zap.String("email", session.Email), zap.String("role", string(session.Role)))
	return token, session, nil
}

func (s *AuthService) Verify(token string) (*auth.Session, *Error) {
	session, err := s.issuer.Verify(token)
	if err != nil {
		return nil, NewError(ErrorCodeUnauthorized, "session expired or invalid")
	}
	return session, nil
}

// SessionTTL is the session lifetime in seconds, used as the cookie max age.
func (s *AuthService) SessionTTL() int {
	return int(s.issuer.TTL().Seconds())
}
