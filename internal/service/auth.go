package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
)

const apiKeyPrefix = "gw_"

type OrgRepository interface {
	Create(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetByName(ctx context.Context, name string) (*domain.Organization, error)
	List(ctx context.Context) ([]*domain.Organization, error)
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// KeyOptions are the grants carried by a new API key.
type KeyOptions struct {
	Clearance string
	CanIngest bool
}

type AuthService struct {
	orgRepo OrgRepository
	keyRepo APIKeyRepository
	uuidGen UUIDGenerator
}

func NewAuthService(orgRepo OrgRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		orgRepo: orgRepo,
		keyRepo: keyRepo,
		uuidGen: uuidGen,
	}
}

// CreateOrg registers a tenant. Names are trimmed and unique.
func (s *AuthService) CreateOrg(ctx context.Context, name string) (*domain.Organization, error) {
	org := &domain.Organization{
		ID:        s.uuidGen.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}

	if err := domain.ValidateOrganization(org); err != nil {
		return nil, err
	}

	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}

	return org, nil
}

func (s *AuthService) ListOrgs(ctx context.Context) ([]*domain.Organization, error) {
	return s.orgRepo.List(ctx)
}

// CreateAPIKey issues a new token for orgID. The plaintext token is returned once and
// only its hash is stored.
func (s *AuthService) CreateAPIKey(ctx context.Context, orgID, name string, opts KeyOptions) (string, error) {
	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}
	if err := s.CreateAPIKeyWithToken(ctx, orgID, name, token, opts); err != nil {
		return "", err
	}
	return token, nil
}

// CreateAPIKeyWithToken registers a caller-chosen token, used to bootstrap a known key.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, orgID, name, token string, opts KeyOptions) error {
	if orgID == "" {
		return domain.NewValidationError("org_id is required")
	}
	if !IsValidAPIToken(token) {
		return domain.NewDomainError(domain.ErrCodeValidation, "invalid API key format (expected gw_<64 hex chars>)")
	}

	clearance, err := domain.NormalizeClassification(opts.Clearance)
	if err != nil {
		return err
	}

	key := &domain.APIKey{
		ID:        s.uuidGen.NewString(),
		OrgID:     orgID,
		Name:      strings.TrimSpace(name),
		KeyHash:   hashToken(token),
		Clearance: clearance,
		CanIngest: opts.CanIngest,
		CreatedAt: time.Now().UTC(),
	}

	if err := domain.ValidateAPIKey(key); err != nil {
		return err
	}
	if _, err := s.orgRepo.GetByID(ctx, orgID); err != nil {
		return err
	}

	return s.keyRepo.Create(ctx, key)
}

// ValidateAPIKey resolves a token to its live key.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (*domain.APIKey, error) {
	if !IsValidAPIToken(token) {
		return nil, domain.ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, domain.ErrInvalidAPIKey
		}
		return nil, err
	}

	if key.IsRevoked() {
		return nil, domain.ErrAPIKeyRevoked
	}

	return key, nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewValidationError("key id is required")
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	if orgID == "" {
		return nil, domain.NewValidationError("org_id is required")
	}

	return s.keyRepo.ListByOrg(ctx, orgID)
}

// Bootstrap makes sure orgName exists and, when token is set, that it is a valid key for
// it with full clearance and ingest rights. It is safe to run on every start.
func (s *AuthService) Bootstrap(ctx context.Context, orgName, token string) (*domain.Organization, error) {
	org, err := s.orgRepo.GetByName(ctx, orgName)
	if errors.Is(err, domain.ErrOrganizationNotFound) {
		org, err = s.CreateOrg(ctx, orgName)
	}
	if err != nil {
		return nil, err
	}
	if token == "" {
		return org, nil
	}

	_, err = s.keyRepo.GetByHash(ctx, hashToken(token))
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, domain.ErrAPIKeyNotFound) {
		return nil, err
	}
	err = s.CreateAPIKeyWithToken(ctx, org.ID, "bootstrap", token, KeyOptions{
		Clearance: string(domain.ClassificationRestricted),
		CanIngest: true,
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func generateAPIToken() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(secret), nil
}

// hashToken is what api_keys.key_hash stores; tokens never reach the database.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// IsValidAPIToken reports whether token is gw_ followed by 32 hex-encoded bytes.
func IsValidAPIToken(token string) bool {
	secret, ok := strings.CutPrefix(token, apiKeyPrefix)
	if !ok || len(secret) != 64 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}
