package model

// EncodedFile is an uploaded document in its transport encoding.
type EncodedFile struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Base64 string `json:"base64"`
}

type Submission struct {
	Kind       Kind                          `json:"kind"`
	FullName   string                        `json:"full_name,omitempty"`
	TeamName   string                        `json:"team_name,omitempty"`
	LeaderName string                        `json:"leader_name,omitempty"`
	Members    []string                      `json:"members,omitempty"`
	Email      string                        `json:"email"`
	Phone      string                        `json:"phone,omitempty"`
	Address    string                        `json:"address,omitempty"`
	Department string                        `json:"department"`
	Files      map[DocumentKind]*EncodedFile `json:"files,omitempty"`
}

type Stats struct {
	Total       int            `json:"total"`
	Pending     int            `json:"pending"`
	Verified    int            `json:"verified"`
	Rejected    int            `json:"rejected"`
	Departments map[string]int `json:"departments"`
	Recent      []*Application `json:"recent"`
}
