package admin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/spf13/cobra"
)

// IngestCmd ingests local files directly into the store, bypassing the HTTP API.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a file or directory",
		Long: `Ingest a file, or every file under a directory, for an organization.

Each file's path (relative to the directory argument) is its source. Without --doc-id the
document ID is derived from the organization and source, so re-running the command over
the same files only records unchanged lineage events.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().String("doc-id", "", "Document ID (single file only)")
	cmd.Flags().String("title", "", "Document title (single file only, defaults to the file name)")
	cmd.Flags().String("classification", "", "Classification (public, internal, confidential, restricted)")
	cmd.Flags().String("retention", "", "Retention (e.g. 30d, 1y, indefinite)")
	cmd.Flags().StringSlice("tag", nil, "Tag to attach (repeatable)")
	cmd.Flags().String("contract", "", "Path to a tabular contract (YAML or JSON)")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("org")

	return cmd
}

type ingestFile struct {
	path   string
	source string
}

func collectFiles(root string) ([]ingestFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []ingestFile{{path: root, source: filepath.Base(root)}}, nil
	}

	var files []ingestFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, ingestFile{path: path, source: filepath.ToSlash(rel)})
		return nil
	})
	return files, err
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgRef, _ := cmd.Flags().GetString("org")
	docID, _ := cmd.Flags().GetString("doc-id")
	title, _ := cmd.Flags().GetString("title")
	classification, _ := cmd.Flags().GetString("classification")
	retention, _ := cmd.Flags().GetString("retention")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	contractPath, _ := cmd.Flags().GetString("contract")
	outputFormat, _ := cmd.Flags().GetString("output")

	files, err := collectFiles(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found under %s", args[0])
	}
	if len(files) > 1 && (docID != "" || title != "") {
		return fmt.Errorf("--doc-id and --title apply to a single file only")
	}

	var contractBytes []byte
	if contractPath != "" {
		contractBytes, err = os.ReadFile(contractPath)
		if err != nil {
			return fmt.Errorf("failed to read contract: %w", err)
		}
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	orgID, err := resolveOrgID(ctx, a.orgs, orgRef)
	if err != nil {
		return err
	}

	var results []map[string]any
	failed := 0
	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f.path, err)
		}
		docTitle := title
		if docTitle == "" {
			docTitle = filepath.Base(f.path)
		}
		res, err := a.ingest.Ingest(ctx, service.IngestInput{
			OrgID:          orgID,
			DocID:          docID,
			Title:          docTitle,
			Source:         f.source,
			Data:           data,
			Filename:       filepath.Base(f.path),
			Classification: classification,
			Retention:      retention,
			Tags:           tags,
			Contract:       contractBytes,
		})
		if err != nil {
			failed++
			if outputFormat == "json" {
				results = append(results, map[string]any{"source": f.source, "error": err.Error(), "code": domain.ErrorCode(err)})
			} else {
				fmt.Printf("FAIL %s: %v\n", f.source, err)
			}
			continue
		}
		if outputFormat == "json" {
			results = append(results, map[string]any{
				"source":      f.source,
				"doc_id":      res.DocID,
				"num_chunks":  res.NumChunks,
				"changed":     res.Changed,
				"doc_version": res.DocVersion,
				"warnings":    res.Warnings,
			})
			continue
		}
		state := "unchanged"
		if res.Changed {
			state = "changed"
		}
		fmt.Printf("OK   %s -> %s (v%d, %d chunks, %s)\n", f.source, res.DocID, res.DocVersion, res.NumChunks, state)
		for _, w := range res.Warnings {
			fmt.Printf("     warning: %s\n", w)
		}
	}

	if outputFormat == "json" {
		if err := printJSON(map[string]any{"items": results}); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// ReplayCmd re-runs ingestion from archived sources synchronously.
func ReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay ingestion from archived sources",
		Long: `Re-run ingestion for one document or every document of an organization.

Without --force only documents whose archived source no longer matches the stored
content are rewritten. With --force every document is reprocessed and its version bumped.`,
		RunE: runReplay,
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().String("doc-id", "", "Replay a single document")
	cmd.Flags().String("run-id", "", "Execute or re-run an existing replay run")
	cmd.Flags().Bool("force", false, "Reprocess documents even when unchanged")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("org")

	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgRef, _ := cmd.Flags().GetString("org")
	docID, _ := cmd.Flags().GetString("doc-id")
	runID, _ := cmd.Flags().GetString("run-id")
	force, _ := cmd.Flags().GetBool("force")
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	orgID, err := resolveOrgID(ctx, a.orgs, orgRef)
	if err != nil {
		return err
	}

	run, err := a.replay.Replay(ctx, service.ReplayInput{
		OrgID: orgID,
		DocID: docID,
		RunID: runID,
		Force: force,
	})
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(map[string]any{
			"run_id":    run.ID,
			"status":    run.Status,
			"force":     run.Force,
			"scanned":   run.Scanned,
			"changed":   run.Changed,
			"unchanged": run.Unchanged,
			"errored":   run.Errored,
			"error":     run.Error,
		})
	}
	fmt.Printf("Replay run %s %s\n", run.ID, run.Status)
	fmt.Printf("  scanned: %d  changed: %d  unchanged: %d  errored: %d\n", run.Scanned, run.Changed, run.Unchanged, run.Errored)
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}
	return nil
}

// AskCmd answers a question in-process with the configured retriever and answerer.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().String("clearance", string(domain.ClassificationRestricted), "Clearance to query with")
	cmd.Flags().Int("top-k", 0, "Number of evidence chunks (0 uses the default)")
	cmd.Flags().Bool("debug", false, "Include the ranked evidence (requires GROUNDWORK_ALLOW_DEBUG)")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("org")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgRef, _ := cmd.Flags().GetString("org")
	clearance, _ := cmd.Flags().GetString("clearance")
	topK, _ := cmd.Flags().GetInt("top-k")
	debug, _ := cmd.Flags().GetBool("debug")
	outputFormat, _ := cmd.Flags().GetString("output")

	level, err := domain.NormalizeClassification(clearance)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	orgID, err := resolveOrgID(ctx, a.orgs, orgRef)
	if err != nil {
		return err
	}

	result, err := a.query.Ask(ctx, service.AskInput{
		Question: strings.Join(args, " "),
		Scope:    domain.AccessScope{OrgID: orgID, Clearance: level},
		TopK:     topK,
		Debug:    debug,
	})
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(queryResultJSON(result))
	}
	printQueryResult(result)
	return nil
}

func queryResultJSON(r *domain.QueryResult) map[string]any {
	citations := make([]map[string]any, len(r.Citations))
	for i, c := range r.Citations {
		citations[i] = map[string]any{
			"doc_id":   c.DocID,
			"chunk_id": c.ChunkID,
			"idx":      c.Idx,
			"quote":    c.Quote,
			"start":    c.Start,
			"end":      c.End,
		}
	}
	out := map[string]any{
		"question":  r.Question,
		"answer":    r.Answer,
		"refused":   r.Refused,
		"citations": citations,
	}
	if r.RefusalReason != "" {
		out["refusal_reason"] = r.RefusalReason
	}
	if r.Retrieval != nil {
		evidence := make([]map[string]any, len(r.Retrieval))
		for i, ev := range r.Retrieval {
			evidence[i] = map[string]any{
				"doc_id":        ev.DocID,
				"chunk_id":      ev.ChunkID,
				"idx":           ev.Idx,
				"score":         ev.Score,
				"lexical_score": ev.LexicalScore,
				"vector_score":  ev.VectorScore,
				"text_preview":  ev.Snippet,
			}
		}
		out["retrieval"] = evidence
	}
	return out
}

func printQueryResult(r *domain.QueryResult) {
	if r.Refused {
		fmt.Printf("Refused: %s\n", r.RefusalReason)
		return
	}
	fmt.Println(r.Answer)
	fmt.Println()
	for i, c := range r.Citations {
		fmt.Printf("[%d] %s#%d: %q\n", i+1, c.DocID, c.Idx, c.Quote)
	}
	if len(r.Retrieval) > 0 {
		fmt.Println("\nEvidence:")
		for _, ev := range r.Retrieval {
			fmt.Printf("  %.3f (lex %.3f, vec %.3f) %s#%d\n", ev.Score, ev.LexicalScore, ev.VectorScore, ev.DocID, ev.Idx)
		}
	}
}
