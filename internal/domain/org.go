package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Organization is the tenant that owns documents and API keys
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

const maxNameLength = 128

// ValidateOrganization checks an organization before it is stored.
func ValidateOrganization(o *Organization) error {
	if o == nil {
		return fmt.Errorf("organization cannot be nil")
	}
	if o.ID == "" {
		return NewValidationError("organization id is required")
	}
	return validateName("organization name", o.Name)
}

func validateName(what, name string) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return NewValidationError("%s is required", what)
	case utf8.RuneCountInString(name) > maxNameLength:
		return NewValidationError("%s must be at most %d characters", what, maxNameLength)
	}
	return nil
}

// OrgUsage summarizes what an organization has indexed and asked.
type OrgUsage struct {
	Documents    int
	Chunks       int
	ActiveKeys   int
	Queries      int
	Refusals     int
	LastIngestAt *time.Time
}

// RefusalRate is the share of logged questions that were refused.
func (u OrgUsage) RefusalRate() float64 {
	if u.Queries == 0 {
		return 0
	}
	return float64(u.Refusals) / float64(u.Queries)
}
