package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/repository"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// resolveOrgID accepts an organization id or name.
func resolveOrgID(ctx context.Context, orgRepo *repository.OrgRepository, orgRef string) (string, error) {
	lookup := orgRepo.GetByName
	if _, err := uuid.Parse(orgRef); err == nil {
		lookup = orgRepo.GetByID
	}
	org, err := lookup(ctx, orgRef)
	if errors.Is(err, domain.ErrOrganizationNotFound) {
		return "", fmt.Errorf("organization not found: %s", orgRef)
	}
	if err != nil {
		return "", err
	}
	return org.ID, nil
}

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list and revoke the keys that scope reads by clearance and gate writes",
	}

	cmd.AddCommand(apiKeyCreateCmd())
	cmd.AddCommand(apiKeyListCmd())
	cmd.AddCommand(apiKeyRevokeCmd())

	return cmd
}

// keyView is the JSON shape of a key. Token is only set right after creation.
type keyView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OrgID     string     `json:"org_id"`
	Clearance string     `json:"clearance"`
	Visible   []string   `json:"visible_classifications"`
	CanIngest bool       `json:"can_ingest"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Token     string     `json:"token,omitempty"`
}

func newKeyView(key *domain.APIKey) keyView {
	return keyView{
		ID:        key.ID,
		Name:      key.Name,
		OrgID:     key.OrgID,
		Clearance: string(key.Clearance),
		Visible:   domain.VisibleClassifications(key.Clearance),
		CanIngest: key.CanIngest,
		CreatedAt: key.CreatedAt,
		RevokedAt: key.RevokedAt,
	}
}

// access summarizes a key for the text listing, e.g. "read/write up to confidential".
func (v keyView) access() string {
	mode := "read"
	if v.CanIngest {
		mode = "read/write"
	}
	state := ""
	if v.RevokedAt != nil {
		state = ", revoked " + v.RevokedAt.Format(time.DateTime)
	}
	return fmt.Sprintf("%s up to %s%s", mode, v.Clearance, state)
}

func apiKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new API key for an organization.

The clearance bounds which classifications the key can read (public, internal,
confidential, restricted). Only keys created with --can-ingest may write documents
or start replays.`,
		Example: `  groundworkd apikey create --org acme --name support-bot --clearance public
  groundworkd apikey create --org acme --name sync-job --clearance restricted --can-ingest`,
		RunE: runAPIKeyCreate,
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	cmd.Flags().String("clearance", string(domain.ClassificationInternal), "Highest classification the key may read")
	cmd.Flags().Bool("can-ingest", false, "Allow the key to ingest, delete and replay documents")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgRef, _ := cmd.Flags().GetString("org")
	name, _ := cmd.Flags().GetString("name")
	clearance, _ := cmd.Flags().GetString("clearance")
	canIngest, _ := cmd.Flags().GetBool("can-ingest")
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadAuthApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orgID, err := resolveOrgID(ctx, a.orgs, orgRef)
	if err != nil {
		return err
	}

	token, err := a.auth.CreateAPIKey(ctx, orgID, name, service.KeyOptions{
		Clearance: clearance,
		CanIngest: canIngest,
	})
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	key, err := a.auth.ValidateAPIKey(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to retrieve created key: %w", err)
	}

	v := newKeyView(key)
	v.Token = token
	if outputFormat == "json" {
		return printJSON(v)
	}

	fmt.Printf("API key created for organization %s\n", orgID)
	fmt.Printf("Key ID:   %s\n", v.ID)
	fmt.Printf("Name:     %s\n", v.Name)
	fmt.Printf("Access:   %s\n", v.access())
	fmt.Printf("Reads:    %s\n", strings.Join(v.Visible, ", "))
	fmt.Printf("Token:    %s\n", token)
	fmt.Println("\nSave this token now. You won't be able to see it again!")
	return nil
}

func apiKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for an organization",
		RunE:  runAPIKeyList,
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().Bool("active", false, "Hide revoked keys")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgRef, _ := cmd.Flags().GetString("org")
	activeOnly, _ := cmd.Flags().GetBool("active")
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadAuthApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orgID, err := resolveOrgID(ctx, a.orgs, orgRef)
	if err != nil {
		return err
	}

	keys, err := a.auth.ListAPIKeys(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}
	views := keyViews(keys, activeOnly)

	if outputFormat == "json" {
		return printJSON(map[string]any{"items": views})
	}

	if len(views) == 0 {
		fmt.Printf("No API keys found for organization %s\n", orgID)
		return nil
	}
	fmt.Printf("API keys for organization %s:\n", orgID)
	for _, v := range views {
		fmt.Printf("  %s: %s (%s, created: %s)\n", v.ID, v.Name, v.access(), v.CreatedAt.Format(time.DateTime))
	}
	return nil
}

func keyViews(keys []*domain.APIKey, activeOnly bool) []keyView {
	views := make([]keyView, 0, len(keys))
	for _, key := range keys {
		if activeOnly && key.IsRevoked() {
			continue
		}
		views = append(views, newKeyView(key))
	}
	return views
}

func apiKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key by its ID. Requests carrying it fail with 401 from then on.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}

	cmd.Flags().String("output", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	keyID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadAuthApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.auth.RevokeAPIKey(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(map[string]any{"id": keyID, "revoked": true})
	}
	fmt.Printf("API key %s revoked\n", keyID)
	return nil
}
