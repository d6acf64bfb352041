package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// QueryRequest mirrors the POST /query body.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
	Debug    bool   `json:"debug,omitempty"`
}

// Citation is a verbatim span of a cited chunk.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Idx     int    `json:"idx"`
	Quote   string `json:"quote"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// RetrievedChunk is one ranked evidence chunk, returned in debug mode.
type RetrievedChunk struct {
	ChunkID      string  `json:"chunk_id"`
	DocID        string  `json:"doc_id"`
	Idx          int     `json:"idx"`
	Score        float64 `json:"score"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	TextPreview  string  `json:"text_preview"`
}

// QueryResponse is an answer or a refusal.
type QueryResponse struct {
	Question      string           `json:"question"`
	Answer        string           `json:"answer"`
	Refused       bool             `json:"refused"`
	RefusalReason string           `json:"refusal_reason,omitempty"`
	Citations     []Citation       `json:"citations"`
	Retrieval     []RetrievedChunk `json:"retrieval,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		topK  int
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question",
		Long: `Answers a question using only indexed evidence. Every answer carries citations;
when the evidence is insufficient the answer is refused instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if topK == 0 {
				topK = savedDefaults().TopK
			}
			result, err := ask(api, QueryRequest{Question: strings.Join(args, " "), TopK: topK, Debug: debug})
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(result)
			}
			printAnswer(result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of evidence chunks (saved default, then server default, when 0)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Show ranked evidence when the server allows it")

	return cmd
}

func ask(api *APIClient, req QueryRequest) (*QueryResponse, error) {
	resp, err := api.Post("/query", req)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var result QueryResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}
	return &result, nil
}

func printAnswer(r *QueryResponse) {
	if r.Refused {
		fmt.Printf("No answer: %s\n", refusalText(r.RefusalReason))
	} else {
		fmt.Println(r.Answer)
		if len(r.Citations) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for i, c := range r.Citations {
				fmt.Printf("  [%d] %s (chunk %d): %q\n", i+1, c.DocID, c.Idx, c.Quote)
			}
		}
	}

	if len(r.Retrieval) > 0 {
		fmt.Println()
		fmt.Println(strings.Repeat("-", 40))
		for i, ev := range r.Retrieval {
			fmt.Printf("%d. %s#%d  score %.3f (lexical %.3f, vector %.3f)\n", i+1, ev.DocID, ev.Idx, ev.Score, ev.LexicalScore, ev.VectorScore)
			if ev.TextPreview != "" {
				fmt.Printf("   %s\n", ev.TextPreview)
			}
		}
	}
}

func refusalText(reason string) string {
	switch reason {
	case "insufficient_evidence":
		return "the indexed documents do not contain enough evidence"
	case "safety_block":
		return "the question was blocked by the safety check"
	case "internal_error":
		return "the server could not complete the request"
	}
	return reason
}
