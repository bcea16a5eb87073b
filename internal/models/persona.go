package models

type Role string

const (
	RoleHost    Role = "host"
	RoleGuest   Role = "guest"
	RoleSpeaker Role = "speaker"
)

// Valid reports whether r is one of the known persona roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleGuest, RoleSpeaker:
		return true
	}
	return false
}

// Persona is identified by Name, compared case-sensitively.
type Persona struct {
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Research string `json:"research,omitempty"`
}

// HasResearch reports whether background research was attached.
func (p Persona) HasResearch() bool {
	return p.Research != ""
}
