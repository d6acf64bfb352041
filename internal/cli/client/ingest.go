package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// IngestRequest mirrors the POST /ingest body.
type IngestRequest struct {
	DocID          string          `json:"doc_id,omitempty"`
	Title          string          `json:"title"`
	Source         string          `json:"source"`
	Text           string          `json:"text,omitempty"`
	FileBytes      []byte          `json:"file_bytes,omitempty"`
	Filename       string          `json:"filename,omitempty"`
	ContentType    string          `json:"content_type,omitempty"`
	Classification string          `json:"classification,omitempty"`
	Retention      string          `json:"retention,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Contract       json.RawMessage `json:"contract,omitempty"`
}

// IngestResponse is the result of one ingestion.
type IngestResponse struct {
	DocID             string   `json:"doc_id"`
	NumChunks         int      `json:"num_chunks"`
	Changed           bool     `json:"changed"`
	DocVersion        int64    `json:"doc_version"`
	EmbeddingFallback bool     `json:"embedding_fallback,omitempty"`
	ValidationStatus  string   `json:"validation_status,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

type ingestOptions struct {
	docID          string
	title          string
	source         string
	classification string
	retention      string
	tags           []string
	contractPath   string
	contentType    string
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Ingest a document",
		Long: `Uploads a document for indexing. Use "-" to read plain text from stdin.

Text, markdown, HTML, PDF, CSV and JSON files are accepted. Tabular files can be checked
against a contract (YAML or JSON) with --contract; a violated contract rejects the file.

Examples:
  groundwork ingest handbook.md --classification internal --tag hr
  groundwork ingest orders.csv --contract orders.contract.yaml
  cat notes.txt | groundwork ingest - --title "Meeting notes" --source notes/2024-05-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if opts.classification == "" {
				opts.classification = savedDefaults().Classification
			}
			req, err := buildIngestRequest(args[0], opts)
			if err != nil {
				return err
			}
			return runIngest(api, req, outputJSON)
		},
	}

	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "Document ID (derived from the source when empty)")
	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (defaults to the file name)")
	cmd.Flags().StringVar(&opts.source, "source", "", "Source identifier (defaults to the file path)")
	cmd.Flags().StringVar(&opts.classification, "classification", "", "public, internal, confidential or restricted (saved default when empty)")
	cmd.Flags().StringVar(&opts.retention, "retention", "", "Retention such as 30d, 1y or indefinite")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag to attach (repeatable)")
	cmd.Flags().StringVar(&opts.contractPath, "contract", "", "Tabular contract file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.contentType, "content-type", "", "Override the detected content type")

	return cmd
}

func buildIngestRequest(path string, opts ingestOptions) (*IngestRequest, error) {
	req := &IngestRequest{
		DocID:          opts.docID,
		Title:          opts.title,
		Source:         opts.source,
		ContentType:    opts.contentType,
		Classification: opts.classification,
		Retention:      opts.retention,
		Tags:           opts.tags,
	}

	if path == "-" {
		data, err := readAllStdin()
		if err != nil {
			return nil, err
		}
		if req.Title == "" || req.Source == "" {
			return nil, fmt.Errorf("--title and --source are required when reading from stdin")
		}
		req.Text = string(data)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		req.FileBytes = data
		req.Filename = filepath.Base(path)
		if req.Title == "" {
			req.Title = strings.TrimSuffix(req.Filename, filepath.Ext(req.Filename))
		}
		if req.Source == "" {
			req.Source = filepath.ToSlash(path)
		}
	}

	if opts.contractPath != "" {
		contract, err := loadContract(opts.contractPath)
		if err != nil {
			return nil, err
		}
		req.Contract = contract
	}

	return req, nil
}

// loadContract reads a YAML or JSON contract file and returns it as JSON.
func loadContract(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract: %w", err)
	}
	if json.Valid(data) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse contract: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("contract is not representable as JSON: %w", err)
	}
	return out, nil
}

func readAllStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return data, nil
}

func runIngest(api *APIClient, req *IngestRequest, outputJSON bool) error {
	resp, err := api.Post("/ingest", req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	var result IngestResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse ingest response: %w", err)
	}

	if outputJSON {
		return printJSON(result)
	}

	state := "unchanged"
	if result.Changed {
		state = "changed"
	}
	fmt.Printf("Ingested %s (version %d, %d chunks, %s)\n", result.DocID, result.DocVersion, result.NumChunks, state)
	if result.ValidationStatus != "" {
		fmt.Printf("Contract: %s\n", result.ValidationStatus)
	}
	if result.EmbeddingFallback {
		fmt.Println("Note: embeddings fell back to the hash backend")
	}
	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}
