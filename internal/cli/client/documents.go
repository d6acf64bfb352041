package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Document is the stored metadata of an indexed document.
type Document struct {
	DocID          string     `json:"doc_id"`
	OrgID          string     `json:"org_id"`
	Title          string     `json:"title"`
	Source         string     `json:"source"`
	SourceType     string     `json:"source_type"`
	Classification string     `json:"classification"`
	Retention      string     `json:"retention"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Tags           []string   `json:"tags"`
	ContentSHA256  string     `json:"content_sha256"`
	ContentBytes   int64      `json:"content_bytes"`
	NumChunks      int        `json:"num_chunks"`
	DocVersion     int64      `json:"doc_version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LineageEvent records one ingestion of a document.
type LineageEvent struct {
	EventID           string    `json:"event_id"`
	DocID             string    `json:"doc_id"`
	DocVersion        int64     `json:"doc_version"`
	IngestedAt        time.Time `json:"ingested_at"`
	ContentSHA256     string    `json:"content_sha256"`
	PrevContentSHA256 string    `json:"prev_content_sha256,omitempty"`
	Changed           bool      `json:"changed"`
	NumChunks         int       `json:"num_chunks"`
	EmbeddingBackend  string    `json:"embedding_backend"`
	EmbeddingModel    string    `json:"embedding_model"`
	EmbeddingDim      int       `json:"embedding_dim"`
	EmbeddingFallback bool      `json:"embedding_fallback"`
	ChunkSize         int       `json:"chunk_size"`
	ChunkOverlap      int       `json:"chunk_overlap"`
	SchemaFingerprint string    `json:"schema_fingerprint,omitempty"`
	ContractSHA256    string    `json:"contract_sha256,omitempty"`
	ValidationStatus  string    `json:"validation_status,omitempty"`
	ValidationErrors  []string  `json:"validation_errors"`
	SchemaDrifted     bool      `json:"schema_drifted"`
	Trigger           string    `json:"trigger"`
	ReplayRunID       string    `json:"replay_run_id,omitempty"`
}

// LineagePage is one page of lineage events, oldest first.
type LineagePage struct {
	Events  []LineageEvent `json:"events"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <doc-id>",
		Short: "Show document metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/documents/" + url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("failed to get document: %w", err)
			}

			var doc Document
			if err := json.Unmarshal(resp.Data, &doc); err != nil {
				return fmt.Errorf("failed to parse document: %w", err)
			}

			if outputJSON {
				return printJSON(doc)
			}
			printDocument(&doc)
			return nil
		},
	}
}

func printDocument(d *Document) {
	fmt.Printf("ID:             %s\n", d.DocID)
	fmt.Printf("Title:          %s\n", d.Title)
	fmt.Printf("Source:         %s (%s)\n", d.Source, d.SourceType)
	fmt.Printf("Classification: %s\n", d.Classification)
	retention := d.Retention
	if d.ExpiresAt != nil {
		retention += ", expires " + d.ExpiresAt.Format(time.RFC3339)
	}
	fmt.Printf("Retention:      %s\n", retention)
	if len(d.Tags) > 0 {
		fmt.Printf("Tags:           %s\n", strings.Join(d.Tags, ", "))
	}
	fmt.Printf("Version:        %d (%d chunks, %d bytes)\n", d.DocVersion, d.NumChunks, d.ContentBytes)
	fmt.Printf("SHA-256:        %s\n", d.ContentSHA256)
	fmt.Printf("Updated:        %s\n", d.UpdatedAt.Format(time.RFC3339))
}

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <doc-id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to delete %s without --force", args[0])
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/documents/" + url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deletion")
	return cmd
}

// LineageCmd creates the lineage command.
func LineageCmd() *cobra.Command {
	var (
		cursor string
		limit  int
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "lineage <doc-id>",
		Short: "Show the ingestion history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if !all {
				page, err := fetchLineage(api, args[0], cursor, limit)
				if err != nil {
					return err
				}
				if outputJSON {
					return printJSON(page)
				}
				printLineage(page.Events)
				if page.HasMore {
					fmt.Printf("\nMore events available: --cursor %s\n", page.Cursor)
				}
				return nil
			}

			var events []LineageEvent
			for {
				page, err := fetchLineage(api, args[0], cursor, limit)
				if err != nil {
					return err
				}
				events = append(events, page.Events...)
				if !page.HasMore || page.Cursor == "" {
					break
				}
				cursor = page.Cursor
			}

			if outputJSON {
				return printJSON(LineagePage{Events: events})
			}
			printLineage(events)
			return nil
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume after this cursor")
	cmd.Flags().IntVar(&limit, "limit", 0, "Events per page (server default when 0)")
	cmd.Flags().BoolVar(&all, "all", false, "Follow cursors until the history is exhausted")

	return cmd
}

func lineagePath(docID, cursor string, limit int) string {
	path := "/documents/" + url.PathEscape(docID) + "/lineage"
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}

func fetchLineage(api *APIClient, docID, cursor string, limit int) (*LineagePage, error) {
	resp, err := api.Get(lineagePath(docID, cursor, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get lineage: %w", err)
	}
	var page LineagePage
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse lineage: %w", err)
	}
	return &page, nil
}

func printLineage(events []LineageEvent) {
	if len(events) == 0 {
		fmt.Println("No lineage events")
		return
	}
	for _, e := range events {
		state := "unchanged"
		if e.Changed {
			state = "changed"
		}
		line := fmt.Sprintf("v%d  %s  %s  %-9s  %d chunks  %s/%s(%d)  %s",
			e.DocVersion, e.IngestedAt.Format(time.RFC3339), shortHash(e.ContentSHA256), state,
			e.NumChunks, e.EmbeddingBackend, e.EmbeddingModel, e.EmbeddingDim, e.Trigger)
		if e.EmbeddingFallback {
			line += " fallback"
		}
		if e.ValidationStatus != "" {
			line += " contract=" + e.ValidationStatus
		}
		if e.SchemaDrifted {
			line += " drifted"
		}
		if e.ReplayRunID != "" {
			line += " run=" + e.ReplayRunID
		}
		fmt.Println(line)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
