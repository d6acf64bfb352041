package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

// ReplayRequest mirrors the POST /replay body.
type ReplayRequest struct {
	DocID string `json:"doc_id,omitempty"`
	RunID string `json:"run_id,omitempty"`
	Force bool   `json:"force,omitempty"`
	Async bool   `json:"async,omitempty"`
}

// ReplayRun reports the progress of a replay run.
type ReplayRun struct {
	RunID      string `json:"run_id"`
	DocID      string `json:"doc_id,omitempty"`
	Force      bool   `json:"force"`
	Status     string `json:"status"`
	Scanned    int    `json:"scanned"`
	Changed    int    `json:"changed"`
	Unchanged  int    `json:"unchanged"`
	Errored    int    `json:"errored"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func (r *ReplayRun) finished() bool {
	return r.Status == "completed" || r.Status == "failed"
}

// ReplayCmd creates the replay command.
func ReplayCmd() *cobra.Command {
	var (
		req  ReplayRequest
		wait bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-ingest stored sources",
		Long: `Re-runs ingestion over the stored sources of one document or the whole organization.

Unchanged documents are skipped unless --force is set. With --async the run is queued
and its ID printed; use "groundwork replay status <run-id>" or --wait to follow it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/replay", req)
			if err != nil {
				return fmt.Errorf("replay failed: %w", err)
			}
			run, err := parseReplayRun(resp)
			if err != nil {
				return err
			}

			if wait && !run.finished() {
				run, err = waitForRun(api, run.RunID, 2*time.Second)
				if err != nil {
					return err
				}
			}

			if outputJSON {
				return printJSON(run)
			}
			printReplayRun(run)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DocID, "doc-id", "", "Replay a single document")
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "Resume or name the run")
	cmd.Flags().BoolVar(&req.Force, "force", false, "Re-index documents whose content is unchanged")
	cmd.Flags().BoolVar(&req.Async, "async", false, "Queue the run and return immediately")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll an async run until it finishes")

	cmd.AddCommand(replayStatusCmd())
	return cmd
}

func replayStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a replay run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			run, err := getReplayRun(api, args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(run)
			}
			printReplayRun(run)
			return nil
		},
	}
}

func getReplayRun(api *APIClient, runID string) (*ReplayRun, error) {
	resp, err := api.Get("/replay/" + url.PathEscape(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to get replay run: %w", err)
	}
	return parseReplayRun(resp)
}

func parseReplayRun(resp *APIResponse) (*ReplayRun, error) {
	var run ReplayRun
	if err := json.Unmarshal(resp.Data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse replay run: %w", err)
	}
	return &run, nil
}

func waitForRun(api *APIClient, runID string, interval time.Duration) (*ReplayRun, error) {
	for {
		run, err := getReplayRun(api, runID)
		if err != nil {
			return nil, err
		}
		if run.finished() {
			return run, nil
		}
		time.Sleep(interval)
	}
}

func printReplayRun(r *ReplayRun) {
	scope := "organization"
	if r.DocID != "" {
		scope = r.DocID
	}
	fmt.Printf("Run %s (%s): %s\n", r.RunID, scope, r.Status)
	fmt.Printf("  scanned %d, changed %d, unchanged %d, errored %d\n", r.Scanned, r.Changed, r.Unchanged, r.Errored)
	if r.Error != "" {
		fmt.Printf("  error: %s\n", r.Error)
	}
}
