package form

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/yakoovad/people-drive/internal/model"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed. It is returned before any
// network call is made.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

type Validator struct {
	validate    *validator.Validate
	departments []string
	maxFileSize int64
	required    []model.DocumentKind
}

func NewValidator(departments []string, maxFileSize int64) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if len(departments) == 0 {
		departments = model.DefaultDepartments
	}
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	return &Validator{
		validate:    v,
		departments: departments,
		maxFileSize: maxFileSize,
	}
}

// WithRequiredDocuments lists the document kinds a submission must attach.
// By default every document is optional.
func (v *Validator) WithRequiredDocuments(kinds []model.DocumentKind) *Validator {
	v.required = slices.Clone(kinds)
	return v
}

func (v *Validator) RequiresDocument(kind model.DocumentKind) bool {
	return slices.Contains(v.required, kind)
}

func (v *Validator) Departments() []string {
	return slices.Clone(v.departments)
}

func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// Validate normalizes in and checks fields and attached files. Content type
// checks need the file bytes and happen during encoding.
func (v *Validator) Validate(in *Input) error {
	in.normalize()
	verr := &ValidationError{}

	if err := v.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !asValidationErrors(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.add(fieldName(fe), message(fe))
		}
	}

	if in.Department != "" && !slices.Contains(v.departments, in.Department) {
		verr.add("department", "must be one of "+strings.Join(v.departments, ", "))
	}

	for kind, up := range in.Files {
		if !kind.Valid() {
			verr.add(string(kind), "is not a known document")
			continue
		}
		if up == nil {
			continue
		}
		switch {
		case up.Size <= 0:
			verr.add(string(kind), "is empty")
		case up.Size > v.maxFileSize:
			verr.add(string(kind), fmt.Sprintf("exceeds %d MB", v.maxFileSize>>20))
		}
	}
	for _, kind := range v.required {
		if in.Files[kind] == nil {
			verr.add(string(kind), "is required")
		}
	}

	return verr.orNil()
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fe, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fe
	}
	return ok
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " entries"
		}
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}
