package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/spf13/cobra"
)

func OrgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
		Long:  "Create organizations and inspect what each one has indexed",
	}

	cmd.AddCommand(orgCreateCmd())
	cmd.AddCommand(orgListCmd())
	cmd.AddCommand(orgShowCmd())

	return cmd
}

// orgView is the JSON shape of an organization, with usage when it was requested.
type orgView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	Usage     *usageView `json:"usage,omitempty"`
}

type usageView struct {
	Documents    int        `json:"documents"`
	Chunks       int        `json:"chunks"`
	ActiveKeys   int        `json:"active_keys"`
	Queries      int        `json:"queries"`
	Refusals     int        `json:"refusals"`
	RefusalRate  float64    `json:"refusal_rate"`
	LastIngestAt *time.Time `json:"last_ingest_at,omitempty"`
}

func newOrgView(org *domain.Organization, usage *domain.OrgUsage) orgView {
	v := orgView{ID: org.ID, Name: org.Name, CreatedAt: org.CreatedAt}
	if usage != nil {
		v.Usage = &usageView{
			Documents:    usage.Documents,
			Chunks:       usage.Chunks,
			ActiveKeys:   usage.ActiveKeys,
			Queries:      usage.Queries,
			Refusals:     usage.Refusals,
			RefusalRate:  usage.RefusalRate(),
			LastIngestAt: usage.LastIngestAt,
		}
	}
	return v
}

func orgCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new organization",
		Args:  cobra.ExactArgs(1),
		RunE:  runOrgCreate,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runOrgCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadAuthApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	org, err := a.auth.CreateOrg(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(newOrgView(org, nil))
	}
	fmt.Printf("Organization created: %s (%s)\n", org.Name, org.ID)
	return nil
}

func orgListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		Long:  "List every organization. --usage adds document, key and question counts per organization.",
		RunE:  runOrgList,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().Bool("usage", false, "Include usage counts")

	return cmd
}

func runOrgList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")
	withUsage, _ := cmd.Flags().GetBool("usage")

	a, err := loadAuthApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orgs, err := a.orgs.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}

	views := make([]orgView, len(orgs))
	for i, org := range orgs {
		var usage *domain.OrgUsage
		if withUsage {
			if usage, err = a.orgs.Usage(ctx, org.ID); err != nil {
				return fmt.Errorf("failed to load usage for %s: %w", org.Name, err)
			}
		}
		views[i] = newOrgView(org, usage)
	}

	if outputFormat == "json" {
		return printJSON(map[string]any{"items": views})
	}

	if len(views) == 0 {
		fmt.Println("No organizations found")
		return nil
	}
	fmt.Println("Organizations:")
	for _, v := range views {
		line := fmt.Sprintf("  %s: %s (created: %s)", v.ID, v.Name, v.CreatedAt.Format(time.DateTime))
		if u := v.Usage; u != nil {
			line += fmt.Sprintf(" docs=%d keys=%d queries=%d", u.Documents, u.ActiveKeys, u.Queries)
		}
		fmt.Println(line)
	}
	return nil
}

func orgShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <org-id-or-name>",
		Short: "Show an organization and its usage",
		Args:  cobra.ExactArgs(1),
		RunE:  runOrgShow,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runOrgShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadAuthApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orgID, err := resolveOrgID(ctx, a.orgs, args[0])
	if err != nil {
		return err
	}
	org, err := a.orgs.GetByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}
	usage, err := a.orgs.Usage(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to load usage: %w", err)
	}

	v := newOrgView(org, usage)
	if outputFormat == "json" {
		return printJSON(v)
	}
	printOrgUsage(v)
	return nil
}

func printOrgUsage(v orgView) {
	fmt.Printf("Organization: %s (%s)\n", v.Name, v.ID)
	fmt.Printf("Created:      %s\n", v.CreatedAt.Format(time.DateTime))
	u := v.Usage
	fmt.Printf("Documents:    %d (%d chunks)\n", u.Documents, u.Chunks)
	fmt.Printf("Active keys:  %d\n", u.ActiveKeys)
	fmt.Printf("Questions:    %d (%d refused, %.0f%%)\n", u.Queries, u.Refusals, u.RefusalRate*100)
	if u.LastIngestAt != nil {
		fmt.Printf("Last ingest:  %s\n", u.LastIngestAt.Format(time.DateTime))
	} else {
		fmt.Println("Last ingest:  never")
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
