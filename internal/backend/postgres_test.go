package backend

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/internal/repository"
)

type inlineTransactor struct{}

func (inlineTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockApplicationRepo struct {
	mock.Mock
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *repository.Application) error {
	return m.Called(ctx, app).Error(0)
}

func (m *mockApplicationRepo) Get(ctx context.Context, id string) (*repository.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Application), args.Error(1)
}

func (m *mockApplicationRepo) List(ctx context.Context) ([]*repository.Application, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Application), args.Error(1)
}

func (m *mockApplicationRepo) SetStatus(ctx context.Context, id, status string) (*repository.Application, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Application), args.Error(1)
}

func (m *mockApplicationRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockDocumentRepo struct {
	mock.Mock
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *repository.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockDocumentRepo) Get(ctx context.Context, id string) (*repository.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Document), args.Error(1)
}

func (m *mockDocumentRepo) ListRefs(ctx context.Context, ids []string) ([]*repository.Document, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Document), args.Error(1)
}

func newTestPostgres() (*postgresBackend, *mockApplicationRepo, *mockDocumentRepo) {
	apps := new(mockApplicationRepo)
	docs := new(mockDocumentRepo)
	return &postgresBackend{tx: inlineTransactor{}, apps: apps, docs: docs}, apps, docs
}

func TestToModel(t *testing.T) {
	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		row          *repository.Application
		docs         []*repository.Document
		expectedDocs map[model.DocumentKind]string
	}{
		{
			name: "individual without documents",
			row: &repository.Application{
				ID: "A", Kind: "individual", FullName: "Asha", Email: "a@x.io",
				Department: "HR", Status: "Pending", CreatedAt: &created,
			},
		},
		{
			name: "team with documents",
			row: &repository.Application{
				ID: "B", Kind: "team", TeamName: "Rocket", LeaderName: "Meera", Members: []string{"Ravi"},
				Email: "r@x.io", Department: "Tech", Status: "Verified",
			},
			docs: []*repository.Document{
				{ID: "d1", ApplicationID: "B", Kind: "resume"},
				{ID: "d2", ApplicationID: "B", Kind: "pan"},
			},
			expectedDocs: map[model.DocumentKind]string{
				model.DocumentResume: DocumentPath + "d1",
				model.DocumentPAN:    DocumentPath + "d2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := toModel(tt.row, tt.docs)

			require.NoError(t, app.Validate())
			assert.Equal(t, tt.row.ID, app.ID)
			assert.Equal(t, model.Kind(tt.row.Kind), app.Kind)
			assert.Equal(t, model.Status(tt.row.Status), app.Status)
			assert.Equal(t, tt.row.CreatedAt, app.CreatedAt)
			assert.Equal(t, tt.expectedDocs, app.Documents)
		})
	}
}

func TestPostgres_Submit(t *testing.T) {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))

	tests := []struct {
		name          string
		files         map[model.DocumentKind]*model.EncodedFile
		setupMocks    func(*mockApplicationRepo, *mockDocumentRepo)
		expectedError error
		expectedDocs  int
	}{
		{
			name: "stores application and documents",
			files: map[model.DocumentKind]*model.EncodedFile{
				model.DocumentResume: {Name: "cv.pdf", Type: "application/pdf", Base64: pdf},
			},
			setupMocks: func(a *mockApplicationRepo, d *mockDocumentRepo) {
				a.On("Create", mock.Anything, mock.Anything).Return(nil)
				d.On("Create", mock.Anything, mock.MatchedBy(func(doc *repository.Document) bool {
					return doc.Kind == "resume" && string(doc.Content) == "%PDF-1.4" && doc.Size == 8
				})).Return(nil)
			},
			expectedDocs: 1,
		},
		{
			name: "bad encoding writes nothing",
			files: map[model.DocumentKind]*model.EncodedFile{
				model.DocumentResume: {Name: "cv.pdf", Type: "application/pdf", Base64: pdf},
				model.DocumentPAN:    {Name: "pan.pdf", Type: "application/pdf", Base64: "%%%"},
			},
			setupMocks:    func(*mockApplicationRepo, *mockDocumentRepo) {},
			expectedError: ErrRejected,
		},
		{
			name: "document write fails",
			files: map[model.DocumentKind]*model.EncodedFile{
				model.DocumentResume: {Name: "cv.pdf", Type: "application/pdf", Base64: pdf},
			},
			setupMocks: func(a *mockApplicationRepo, d *mockDocumentRepo) {
				a.On("Create", mock.Anything, mock.Anything).Return(nil)
				d.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: repository.ErrAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, apps, docs := newTestPostgres()
			tt.setupMocks(apps, docs)

			app, err := p.Submit(context.Background(), &model.Submission{
				Kind: model.KindIndividual, FullName: "Asha", Email: "a@x.io", Department: "HR",
				Files: tt.files,
			})

			if tt.expectedError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, app)
			} else {
				require.NoError(t, err)
				assert.Equal(t, model.StatusPending, app.Status)
				assert.Len(t, app.Documents, tt.expectedDocs)
			}
			apps.AssertExpectations(t)
			docs.AssertExpectations(t)
		})
	}
}

func TestPostgres_Document(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(*mockDocumentRepo)
		expectedError error
	}{
		{
			name: "found",
			setupMocks: func(d *mockDocumentRepo) {
				d.On("Get", mock.Anything, "d1").Return(&repository.Document{
					ID: "d1", Name: "cv.pdf", MimeType: "application/pdf", Content: []byte("%PDF-1.4"),
				}, nil)
			},
		},
		{
			name: "missing",
			setupMocks: func(d *mockDocumentRepo) {
				d.On("Get", mock.Anything, "d1").Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrNotFound,
		},
		{
			name: "database error",
			setupMocks: func(d *mockDocumentRepo) {
				d.On("Get", mock.Anything, "d1").Return(nil, errors.New("conn closed"))
			},
			expectedError: errors.New("get document: conn closed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, docs := newTestPostgres()
			tt.setupMocks(docs)

			doc, err := p.Document(context.Background(), "d1")

			switch {
			case tt.expectedError == nil:
				require.NoError(t, err)
				assert.Equal(t, "application/pdf", doc.ContentType)
				assert.Equal(t, []byte("%PDF-1.4"), doc.Content)
			case errors.Is(tt.expectedError, ErrNotFound):
				assert.ErrorIs(t, err, ErrNotFound)
			default:
				assert.EqualError(t, err, tt.expectedError.Error())
			}
		})
	}
}
