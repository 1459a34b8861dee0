package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/backend"
	"github.com/yakoovad/people-drive/internal/form"
	"github.com/yakoovad/people-drive/internal/model"
)

func pdfUpload(name string) *form.Upload {
	data := "%PDF-1.4\n%%EOF\n"
	return &form.Upload{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(data)), nil },
	}
}

func formInput() *form.Input {
	return &form.Input{
		FullName:   "Asha Rao",
		Email:      "asha@example.com",
		Phone:      "9876543210",
		Department: "Tech",
		Files: map[model.DocumentKind]*form.Upload{
			model.DocumentResume:   pdfUpload("cv.pdf"),
			model.DocumentAadhaar:  pdfUpload("aadhaar.pdf"),
			model.DocumentPAN:      pdfUpload("pan.pdf"),
			model.DocumentPassbook: pdfUpload("passbook.pdf"),
		},
	}
}

func TestSubmissionService_Submit(t *testing.T) {
	tests := []struct {
		name          string
		input         func() *form.Input
		setupMocks    func(*MockTarget)
		expectedError bool
		errorCode     ErrorCode
		message       string
	}{
		{
			name:  "success",
			input: formInput,
			setupMocks: func(m *MockTarget) {
				m.On("Submit", mock.Anything, mock.Anything).Return(&model.Application{ID: "reg-1"}, nil)
			},
		},
		{
			name: "invalid form",
			input: func() *form.Input {
				in := formInput()
				in.Email = "nope"
				return in
			},
			setupMocks:    func(*MockTarget) {},
			expectedError: true,
			errorCode:     ErrorCodeValidationFailed,
		},
		{
			name:  "backend message is surfaced",
			input: formInput,
			setupMocks: func(m *MockTarget) {
				m.On("Submit", mock.Anything, mock.Anything).
					Return(nil, pkgerrors.Wrap(backend.ErrRejected, "email already registered"))
			},
			expectedError: true,
			errorCode:     ErrorCodeRejected,
			message:       "submission failed: email already registered",
		},
		{
			name:  "backend down",
			input: formInput,
			setupMocks: func(m *MockTarget) {
				m.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
			},
			expectedError: true,
			errorCode:     ErrorCodeBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := new(MockTarget)
			tt.setupMocks(target)

			svc := NewSubmissionService(target, form.NewValidator(nil, 0))
			app, err := svc.Submit(context.Background(), tt.input())

			if tt.expectedError {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				if tt.message != "" {
					assert.Equal(t, tt.message, err.Message)
				}
				assert.Nil(t, app)
			} else {
				require.Nil(t, err)
				assert.Equal(t, "reg-1", app.ID)
			}
			target.AssertExpectations(t)
		})
	}
}

func TestSubmissionService_ValidationDetails(t *testing.T) {
	in := formInput()
	delete(in.Files, model.DocumentPAN)

	v := form.NewValidator(nil, 0).WithRequiredDocuments([]model.DocumentKind{model.DocumentPAN})
	_, err := NewSubmissionService(new(MockTarget), v).Submit(context.Background(), in)

	require.NotNil(t, err)
	fields, ok := err.Details.([]form.FieldError)
	require.True(t, ok)
	assert.Equal(t, []form.FieldError{{Field: "pan", Message: "is required"}}, fields)
}

func TestAuthService_Login(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)

	tests := []struct {
		name          string
		setupMocks    func(*MockAuthenticator)
		expectedError bool
	}{
		{
			name: "success",
			setupMocks: func(m *MockAuthenticator) {
				m.On("Authenticate", "hr@peopledrive.io", "pw").
					Return(&auth.Account{Email: "hr@peopledrive.io", Name: "HR", Role: auth.RoleHR}, nil)
			},
		},
		{
			name: "bad credentials",
			setupMocks: func(m *MockAuthenticator) {
				m.On("Authenticate", "hr@peopledrive.io", "pw").Return(nil, auth.ErrInvalidCredentials)
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := new(MockAuthenticator)
			tt.setupMocks(accounts)

			svc := NewAuthService(accounts, issuer)
			token, session, err := svc.Login(context.Background(), "hr@peopledrive.io", "pw")

			if tt.expectedError {
				require.NotNil(t, err)
				assert.Equal(t, ErrorCodeUnauthorized, err.Code)
				assert.Empty(t, token)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, auth.RoleHR, session.Role)

			verified, verr := svc.Verify(token)
			require.Nil(t, verr)
			assert.Equal(t, session.Email, verified.Email)
		})
	}
}
