package domain

import (
	"fmt"
	"time"
)

// APIKey represents an API key for authentication
type APIKey struct {
	ID        string
	OrgID     string
	Name      string
	KeyHash   string // Never store plaintext keys
	Clearance Classification
	CanIngest bool
	CreatedAt time.Time
	RevokedAt *time.Time
}

// IsRevoked returns true if the API key has been revoked
func (a *APIKey) IsRevoked() bool {
	return a.RevokedAt != nil
}

// Scope returns the read scope granted by the key.
func (a *APIKey) Scope() AccessScope {
	return AccessScope{OrgID: a.OrgID, Clearance: a.Clearance}
}

// ValidateAPIKey checks a key before it is stored. Key names follow the same length
// bound as organization names.
func ValidateAPIKey(a *APIKey) error {
	if a == nil {
		return fmt.Errorf("api key cannot be nil")
	}
	switch {
	case a.ID == "":
		return NewValidationError("key id is required")
	case a.OrgID == "":
		return NewValidationError("org_id is required")
	case a.KeyHash == "":
		return NewValidationError("key hash is required")
	case !a.Clearance.IsValid():
		return NewValidationError("invalid clearance %q", a.Clearance)
	}
	return validateName("key name", a.Name)
}
