package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// Principal is what the server reports for the key in use.
type Principal struct {
	KeyID     string   `json:"key_id"`
	Name      string   `json:"name"`
	OrgID     string   `json:"org_id"`
	Clearance string   `json:"clearance"`
	Visible   []string `json:"visible_classifications"`
	CanIngest bool     `json:"can_ingest"`
}

type loginOptions struct {
	apiKey         string
	apiURL         string
	topK           int
	classification string
}

// AuthCmd groups the credential commands.
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage credentials and saved defaults",
		Long:  "Store, remove and check the API key used by the groundwork CLI",
	}

	cmd.AddCommand(authLoginCmd())
	cmd.AddCommand(authLogoutCmd())
	cmd.AddCommand(authStatusCmd())

	return cmd
}

func authLoginCmd() *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an API key",
		Long: `Stores the API key, server URL and optional defaults in ~/.config/groundwork/config.json.

--top-k applies to ask and eval when they are run without --top-k.
--classification applies to ingest when it is run without --classification.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.apiKey == "" {
				key, err := promptAPIKey()
				if err != nil {
					return err
				}
				opts.apiKey = key
			}
			return runAuthLogin(opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key (gw_...)")
	cmd.Flags().StringVar(&opts.apiURL, "url", defaultAPIURL, "API URL")
	cmd.Flags().IntVar(&opts.topK, "top-k", 0, "Default evidence depth for ask and eval")
	cmd.Flags().StringVar(&opts.classification, "classification", "", "Default classification for ingest")

	return cmd
}

func authLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteProfile(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Println("Successfully logged out")
			return nil
		},
	}
}

func authStatusCmd() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are in use",
		Long: `Shows where the API key comes from (flag, environment or saved config).
With --verify the key is checked against the server, which also reports its
clearance and whether it may ingest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")

			creds, err := resolveCredentials(flagKey, flagURL)
			if err != nil {
				return err
			}
			status := newAuthStatus(creds)
			if verify && status.Authenticated {
				principal, err := whoami(NewAPIClientWithConfig(status.apiKey, status.APIURL))
				if err != nil {
					return err
				}
				status.Principal = principal
			}

			if outputJSON {
				return printJSON(status)
			}
			printAuthStatus(status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Check the key against the server")

	return cmd
}

func promptAPIKey() (string, error) {
	fmt.Print("Enter API key: ")
	input, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func runAuthLogin(opts loginOptions) error {
	if !IsValidAPIKey(opts.apiKey) {
		return fmt.Errorf("invalid API key format (expected: gw_ + 64 hex characters)")
	}
	if opts.topK < 0 {
		return fmt.Errorf("--top-k must not be negative")
	}
	classification := strings.ToLower(strings.TrimSpace(opts.classification))
	if classification != "" && !slices.Contains(knownClassifications, classification) {
		return fmt.Errorf("unknown classification %q (expected one of %s)", opts.classification, strings.Join(knownClassifications, ", "))
	}

	profile := &Profile{
		APIKey:         opts.apiKey,
		APIURL:         opts.apiURL,
		TopK:           opts.topK,
		Classification: classification,
	}
	if err := SaveProfile(profile); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	path, _ := ProfilePath()
	fmt.Printf("Successfully logged in (saved to %s)\n", path)
	return nil
}

type authStatus struct {
	Authenticated bool       `json:"authenticated"`
	Source        string     `json:"source"`
	APIKey        string     `json:"api_key,omitempty"`
	APIURL        string     `json:"api_url,omitempty"`
	Defaults      *defaults  `json:"defaults,omitempty"`
	Principal     *Principal `json:"principal,omitempty"`

	apiKey string
}

type defaults struct {
	TopK           int    `json:"top_k,omitempty"`
	Classification string `json:"classification,omitempty"`
}

func newAuthStatus(c credentials) *authStatus {
	status := &authStatus{
		Authenticated: c.source != SourceNone,
		Source:        string(c.source),
	}
	if !status.Authenticated {
		return status
	}
	status.APIKey = maskAPIKey(c.apiKey)
	status.APIURL = c.apiURL
	status.apiKey = c.apiKey

	if saved := savedDefaults(); saved.TopK > 0 || saved.Classification != "" {
		status.Defaults = &defaults{TopK: saved.TopK, Classification: saved.Classification}
	}
	return status
}

func whoami(api *APIClient) (*Principal, error) {
	resp, err := api.Get("/whoami")
	if err != nil {
		return nil, fmt.Errorf("key verification failed: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse key details: %w", err)
	}
	return &p, nil
}

func printAuthStatus(s *authStatus) {
	if !s.Authenticated {
		fmt.Println("Not authenticated")
		fmt.Println("Run 'groundwork auth login' to authenticate")
		return
	}

	fmt.Printf("Source:   %s\n", s.Source)
	fmt.Printf("API Key:  %s\n", s.APIKey)
	fmt.Printf("API URL:  %s\n", s.APIURL)
	if s.Defaults != nil {
		if s.Defaults.TopK > 0 {
			fmt.Printf("Top-k:    %d\n", s.Defaults.TopK)
		}
		if s.Defaults.Classification != "" {
			fmt.Printf("Ingest:   %s by default\n", s.Defaults.Classification)
		}
	}
	if p := s.Principal; p != nil {
		fmt.Printf("Key:      %s (org %s)\n", p.Name, p.OrgID)
		fmt.Printf("Reads:    %s\n", strings.Join(p.Visible, ", "))
		fmt.Printf("Ingest:   %t\n", p.CanIngest)
	}
}

func maskAPIKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
