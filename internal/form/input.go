// Package form implements the public application form: field and document
// validation, transport encoding of uploads and the single submission call.
package form

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/yakoovad/people-drive/internal/model"
)

const DefaultMaxFileSize int64 = 5 << 20

// Input is the raw form as posted by an applicant.
type Input struct {
	Kind       model.Kind `form:"kind" validate:"omitempty,oneof=individual team"`
	FullName   string     `form:"full_name" validate:"required_unless=Kind team,max=100"`
	TeamName   string     `form:"team_name" validate:"required_if=Kind team,max=100"`
	LeaderName string     `form:"leader_name" validate:"required_if=Kind team,max=100"`
	Members    []string   `form:"members" validate:"max=10,dive,max=100"`
	Email      string     `form:"email" validate:"required,email,max=255"`
	Phone      string     `form:"phone" validate:"required,max=20"`
	Address    string     `form:"address" validate:"max=500"`
	Department string     `form:"department" validate:"required"`

	Files map[model.DocumentKind]*Upload `form:"-" validate:"-"`
}

// Upload is one attached file before it is read.
type Upload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

func UploadFromHeader(fh *multipart.FileHeader) *Upload {
	return &Upload{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func (in *Input) normalize() {
	if in.Kind == "" {
		in.Kind = model.KindIndividual
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.TeamName = strings.TrimSpace(in.TeamName)
	in.LeaderName = strings.TrimSpace(in.LeaderName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Department = strings.TrimSpace(in.Department)

	members := in.Members[:0:0]
	for _, m := range in.Members {
		if m = strings.TrimSpace(m); m != "" {
			members = append(members, m)
		}
	}
	in.Members = members
}

func (in *Input) submission(files map[model.DocumentKind]*model.EncodedFile) *model.Submission {
	sub := &model.Submission{
		Kind:       in.Kind,
		Email:      in.Email,
		Phone:      in.Phone,
		Address:    in.Address,
		Department: in.Department,
		Files:      files,
	}
	if in.Kind == model.KindTeam {
		sub.TeamName = in.TeamName
		sub.LeaderName = in.LeaderName
		sub.Members = in.Members
	} else {
		sub.FullName = in.FullName
	}
	return sub
}
