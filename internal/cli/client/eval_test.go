package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreCase(t *testing.T) {
	tests := []struct {
		name          string
		c             EvalCase
		resp          *QueryResponse
		wantHit       bool
		wantPrecision float64
		wantCited     []string
	}{
		{
			name: "all citations relevant",
			c:    EvalCase{Question: "q", ExpectedDocIDs: []string{"a"}},
			resp: &QueryResponse{Citations: []Citation{{DocID: "a"}, {DocID: "a"}}},
			wantHit: true, wantPrecision: 1, wantCited: []string{"a"},
		},
		{
			name: "half relevant",
			c:    EvalCase{Question: "q", ExpectedDocIDs: []string{"a"}},
			resp: &QueryResponse{Citations: []Citation{{DocID: "a"}, {DocID: "b"}}},
			wantHit: true, wantPrecision: 0.5, wantCited: []string{"a", "b"},
		},
		{
			name: "miss",
			c:    EvalCase{Question: "q", ExpectedDocIDs: []string{"a"}},
			resp: &QueryResponse{Citations: []Citation{{DocID: "c"}}},
			wantHit: false, wantPrecision: 0, wantCited: []string{"c"},
		},
		{
			name: "refused",
			c:    EvalCase{Question: "q", ExpectedDocIDs: []string{"a"}},
			resp: &QueryResponse{Refused: true, RefusalReason: "insufficient_evidence"},
			wantHit: false, wantPrecision: 0, wantCited: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := scoreCase(tt.c, tt.resp)
			assert.Equal(t, tt.wantHit, r.Hit)
			assert.InDelta(t, tt.wantPrecision, r.Precision, 1e-9)
			assert.Equal(t, tt.wantCited, r.CitedDocIDs)
		})
	}
}

func TestSummarize(t *testing.T) {
	results := []EvalCaseResult{
		{Hit: true, Precision: 1},
		{Hit: true, Precision: 0.5},
		{Refused: true},
		{ExpectRefusal: true, Refused: true},
		{ExpectRefusal: true, Refused: false},
	}

	s := summarize(results)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 3, s.Answerable)
	assert.Equal(t, 2, s.Unanswerable)
	assert.Equal(t, 1, s.FalseRefusals)
	assert.InDelta(t, 2.0/3.0, s.CitationHitRate, 1e-9)
	assert.InDelta(t, 0.5, s.CitationPrecision, 1e-9)
	assert.InDelta(t, 0.5, s.RefusalAccuracy, 1e-9)
}

func TestLoadEvalSuite_BothFormats(t *testing.T) {
	dir := t.TempDir()

	suitePath := filepath.Join(dir, "suite.json")
	require.NoError(t, os.WriteFile(suitePath, []byte(`{"cases":[{"question":"q","expected_doc_ids":["a"]}],"top_k":3}`), 0644))
	suite, err := loadEvalSuite(suitePath)
	require.NoError(t, err)
	assert.Equal(t, 3, suite.TopK)
	require.Len(t, suite.Cases, 1)

	listPath := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(listPath, []byte(`[{"question":"q","expect_refusal":true}]`), 0644))
	suite, err = loadEvalSuite(listPath)
	require.NoError(t, err)
	require.Len(t, suite.Cases, 1)
	assert.True(t, suite.Cases[0].ExpectRefusal)

	yamlPath := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("top_k: 2\ncases:\n  - question: How many vacation days?\n    expected_doc_ids: [handbook]\n  - question: Who won the 1998 final?\n    expect_refusal: true\n"), 0644))
	suite, err = loadEvalSuite(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, suite.TopK)
	require.Len(t, suite.Cases, 2)
	assert.Equal(t, []string{"handbook"}, suite.Cases[0].ExpectedDocIDs)
	assert.True(t, suite.Cases[1].ExpectRefusal)
}

func TestLoadEvalSuite_RequiresExpectation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"question":"q"}]`), 0644))

	_, err := loadEvalSuite(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected_doc_ids")
}
