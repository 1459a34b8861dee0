package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindIndividual Kind = "individual"
	KindTeam       Kind = "team"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusVerified Status = "Verified"
	StatusRejected Status = "Rejected"
)

var Statuses = []Status{StatusPending, StatusVerified, StatusRejected}

func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// ParseStatus accepts any letter case, the wire format is capitalized.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type DocumentKind string

const (
	DocumentPhoto    DocumentKind = "photo"
	DocumentResume   DocumentKind = "resume"
	DocumentAadhaar  DocumentKind = "aadhaar"
	DocumentPAN      DocumentKind = "pan"
	DocumentPassbook DocumentKind = "passbook"
)

var DocumentKinds = []DocumentKind{DocumentPhoto, DocumentResume, DocumentAadhaar, DocumentPAN, DocumentPassbook}

// Accepts lists the MIME types allowed for the document kind.
func (k DocumentKind) Accepts() []string {
	if k == DocumentPhoto {
		return []string{"image/jpeg", "image/png"}
	}
	return []string{"application/pdf", "image/jpeg", "image/png"}
}

func (k DocumentKind) Valid() bool {
	return slices.Contains(DocumentKinds, k)
}

var DefaultDepartments = []string{"HR", "Tech", "Finance", "Marketing", "Operations"}

// Application is the record shown on the dashboard. Individual and team
// submissions share the type; Kind decides which name fields are meaningful.
type Application struct {
	ID         string                  `json:"id"`
	Kind       Kind                    `json:"kind"`
	FullName   string                  `json:"full_name,omitempty"`
	TeamName   string                  `json:"team_name,omitempty"`
	LeaderName string                  `json:"leader_name,omitempty"`
	Members    []string                `json:"members,omitempty"`
	Email      string                  `json:"email"`
	Phone      string                  `json:"phone,omitempty"`
	Address    string                  `json:"address,omitempty"`
	Department string                  `json:"department"`
	Status     Status                  `json:"status"`
	Documents  map[DocumentKind]string `json:"documents,omitempty"`
	CreatedAt  *time.Time              `json:"created_at,omitempty"`
	UpdatedAt  *time.Time              `json:"updated_at,omitempty"`
}

// DisplayName is the applicant name for individuals and the team name for teams.
func (a *Application) DisplayName() string {
	if a.Kind == KindTeam {
		return a.TeamName
	}
	return a.FullName
}

func (a *Application) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("missing id")
	}

	switch a.Kind {
	case KindIndividual:
		if strings.TrimSpace(a.FullName) == "" {
			return errors.Errorf("application %s: missing full name", a.ID)
		}
	case KindTeam:
		if strings.TrimSpace(a.TeamName) == "" || strings.TrimSpace(a.LeaderName) == "" {
			return errors.Errorf("application %s: team requires team and leader name", a.ID)
		}
	default:
		return errors.Errorf("application %s: unknown kind %q", a.ID, a.Kind)
	}

	if !a.Status.Valid() {
		return errors.Errorf("application %s: unknown status %q", a.ID, a.Status)
	}

	for kind, ref := range a.Documents {
		if !kind.Valid() {
			return errors.Errorf("application %s: unknown document kind %q", a.ID, kind)
		}
		if strings.TrimSpace(ref) == "" {
			return errors.Errorf("application %s: empty reference for %s", a.ID, kind)
		}
	}

	return nil
}

// Clone returns a deep copy so cached lists never share maps or slices.
func (a *Application) Clone() *Application {
	c := *a
	if a.Members != nil {
		c.Members = slices.Clone(a.Members)
	}
	if a.Documents != nil {
		c.Documents = make(map[DocumentKind]string, len(a.Documents))
		for k, v := range a.Documents {
			c.Documents[k] = v
		}
	}
	if a.CreatedAt != nil {
		t := *a.CreatedAt
		c.CreatedAt = &t
	}
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

// ValidateCollection checks every record and the uniqueness of ids.
func ValidateCollection(apps []*Application) error {
	seen := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		if a == nil {
			return errors.New("nil application in collection")
		}
		if err := a.Validate(); err != nil {
			return err
		}
		if _, ok := seen[a.ID]; ok {
			return errors.Errorf("duplicate application id %s", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

func CloneAll(apps []*Application) []*Application {
	out := make([]*Application, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.Clone())
	}
	return out
}
