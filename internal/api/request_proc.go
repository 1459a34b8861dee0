package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/form"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/internal/service"
)

// ProcessRequest runs each step in order and stops at the first failure.
func ProcessRequest[T any](e echo.Context, req *T, steps ...func(echo.Context, *T) error) error {
	for _, step := range steps {
		if err := step(e, req); err != nil {
			return err
		}
	}
	return nil
}

func bindFormFields(e echo.Context, in *form.Input) error {
	if err := e.Bind(in); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid form body")
	}
	return nil
}

// attachUploads picks one file per document kind from the multipart body.
func attachUploads(e echo.Context, in *form.Input) error {
	in.Files = make(map[model.DocumentKind]*form.Upload)
	for _, kind := range model.DocumentKinds {
		fh, err := e.FormFile(string(kind))
		switch {
		case errors.Is(err, http.ErrMissingFile):
			continue
		case err != nil:
			return service.NewError(service.ErrorCodeInvalidBody, "could not read "+string(kind))
		}
		in.Files[kind] = form.UploadFromHeader(fh)
	}
	return nil
}
