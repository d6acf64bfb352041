package client

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// EvalCase is one question of a suite. Suites are YAML or JSON.
type EvalCase struct {
	Question       string   `json:"question" yaml:"question"`
	ExpectedDocIDs []string `json:"expected_doc_ids,omitempty" yaml:"expected_doc_ids"`
	ExpectRefusal  bool     `json:"expect_refusal,omitempty" yaml:"expect_refusal"`
}

type EvalSuite struct {
	Cases []EvalCase `json:"cases" yaml:"cases"`
	TopK  int        `json:"top_k,omitempty" yaml:"top_k"`
}

type EvalSummary struct {
	Total             int     `json:"total"`
	Answerable        int     `json:"answerable"`
	Unanswerable      int     `json:"unanswerable"`
	CitationHitRate   float64 `json:"citation_hit_rate"`
	CitationPrecision float64 `json:"citation_precision"`
	RefusalAccuracy   float64 `json:"refusal_accuracy"`
	FalseRefusals     int     `json:"false_refusals"`
}

type EvalCaseResult struct {
	Question       string   `json:"question"`
	ExpectedDocIDs []string `json:"expected_doc_ids,omitempty"`
	CitedDocIDs    []string `json:"cited_doc_ids"`
	ExpectRefusal  bool     `json:"expect_refusal"`
	Refused        bool     `json:"refused"`
	RefusalReason  string   `json:"refusal_reason,omitempty"`
	Hit            bool     `json:"hit"`
	Precision      float64  `json:"precision"`
}

type EvalOutput struct {
	Summary EvalSummary      `json:"summary"`
	Cases   []EvalCaseResult `json:"cases,omitempty"`
}

// EvalCmd creates the eval command.
func EvalCmd() *cobra.Command {
	var (
		file    string
		topK    int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "eval --file <suite.yaml|suite.json>",
		Short: "Evaluate answer grounding",
		Long: `Runs a set of questions through the query endpoint and scores the citations.

Answerable cases list the documents a correct answer must cite. Cases marked
expect_refusal score whether the system declined to answer.

The input file can be either:
  - { "cases": [ { "question": "...", "expected_doc_ids": [...] } ], "top_k": 5 }
  - [ { "question": "...", "expect_refusal": true } ]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			suite, err := loadEvalSuite(file)
			if err != nil {
				return err
			}
			if topK > 0 {
				suite.TopK = topK
			} else if suite.TopK == 0 {
				suite.TopK = savedDefaults().TopK
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runEval(api, suite, verbose, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Evaluation suite, YAML or JSON (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Override the evidence depth for every case")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print per-case results")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func loadEvalSuite(file string) (*EvalSuite, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read eval file: %w", err)
	}

	// A YAML decoder reads JSON too. The file is either a suite or a bare list of cases.
	var suite EvalSuite
	if err := yaml.Unmarshal(data, &suite); err != nil || len(suite.Cases) == 0 {
		var cases []EvalCase
		if err := yaml.Unmarshal(data, &cases); err != nil {
			return nil, fmt.Errorf("failed to parse eval file: %w", err)
		}
		suite.Cases = cases
	}

	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("no eval cases provided")
	}
	for i, c := range suite.Cases {
		if c.Question == "" {
			return nil, fmt.Errorf("eval case %d: question is required", i)
		}
		if !c.ExpectRefusal && len(c.ExpectedDocIDs) == 0 {
			return nil, fmt.Errorf("eval case %d: expected_doc_ids is required unless expect_refusal is set", i)
		}
	}
	return &suite, nil
}

func runEval(api *APIClient, suite *EvalSuite, verbose, outputJSON bool) error {
	results := make([]EvalCaseResult, 0, len(suite.Cases))
	for _, c := range suite.Cases {
		resp, err := ask(api, QueryRequest{Question: c.Question, TopK: suite.TopK})
		if err != nil {
			return fmt.Errorf("query failed for %q: %w", c.Question, err)
		}
		results = append(results, scoreCase(c, resp))
	}

	summary := summarize(results)

	if outputJSON {
		out := EvalOutput{Summary: summary}
		if verbose {
			sort.Slice(results, func(i, j int) bool {
				return results[i].Question < results[j].Question
			})
			out.Cases = results
		}
		return printJSON(out)
	}

	fmt.Printf("Eval results (%d cases, %d answerable, %d unanswerable)\n", summary.Total, summary.Answerable, summary.Unanswerable)
	fmt.Printf("Citation hit rate:  %.4f\n", summary.CitationHitRate)
	fmt.Printf("Citation precision: %.4f\n", summary.CitationPrecision)
	fmt.Printf("Refusal accuracy:   %.4f\n", summary.RefusalAccuracy)
	fmt.Printf("False refusals:     %d\n", summary.FalseRefusals)

	if verbose {
		for _, r := range results {
			fmt.Printf("\nQuestion: %s\n", r.Question)
			if r.ExpectRefusal {
				fmt.Printf("Expected refusal, refused=%v %s\n", r.Refused, r.RefusalReason)
				continue
			}
			fmt.Printf("Hit: %v  Precision: %.4f\n", r.Hit, r.Precision)
			fmt.Printf("Expected: %v\n", r.ExpectedDocIDs)
			fmt.Printf("Cited: %v\n", r.CitedDocIDs)
		}
	}

	return nil
}

// scoreCase compares the documents cited by one answer with the expected ones.
func scoreCase(c EvalCase, resp *QueryResponse) EvalCaseResult {
	result := EvalCaseResult{
		Question:       c.Question,
		ExpectedDocIDs: c.ExpectedDocIDs,
		CitedDocIDs:    []string{},
		ExpectRefusal:  c.ExpectRefusal,
		Refused:        resp.Refused,
		RefusalReason:  resp.RefusalReason,
	}

	seen := make(map[string]struct{})
	for _, cit := range resp.Citations {
		if _, ok := seen[cit.DocID]; ok {
			continue
		}
		seen[cit.DocID] = struct{}{}
		result.CitedDocIDs = append(result.CitedDocIDs, cit.DocID)
	}

	if c.ExpectRefusal || resp.Refused || len(resp.Citations) == 0 {
		return result
	}

	expected := make(map[string]struct{}, len(c.ExpectedDocIDs))
	for _, id := range c.ExpectedDocIDs {
		expected[id] = struct{}{}
	}

	relevant := 0
	for _, cit := range resp.Citations {
		if _, ok := expected[cit.DocID]; ok {
			relevant++
		}
	}
	result.Hit = relevant > 0
	result.Precision = float64(relevant) / float64(len(resp.Citations))
	return result
}

func summarize(results []EvalCaseResult) EvalSummary {
	summary := EvalSummary{Total: len(results)}

	var (
		hits           int
		sumPrecision   float64
		correctRefusal int
	)
	for _, r := range results {
		if r.ExpectRefusal {
			summary.Unanswerable++
			if r.Refused {
				correctRefusal++
			}
			continue
		}
		summary.Answerable++
		if r.Refused {
			summary.FalseRefusals++
			continue
		}
		if r.Hit {
			hits++
		}
		sumPrecision += r.Precision
	}

	if summary.Answerable > 0 {
		summary.CitationHitRate = float64(hits) / float64(summary.Answerable)
		summary.CitationPrecision = sumPrecision / float64(summary.Answerable)
	}
	if summary.Unanswerable > 0 {
		summary.RefusalAccuracy = float64(correctRefusal) / float64(summary.Unanswerable)
	}
	return summary
}
