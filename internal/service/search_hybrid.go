package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/textproc"
)

const (
	defaultTopK            = 5
	maxTopK                = 50
	defaultLexicalLimit    = 20
	defaultVectorLimit     = 20
	maxCandidateLimit      = 200
	defaultLexicalWeight   = 0.5
	defaultVectorWeight    = 0.5
	defaultSnippetMaxRunes = 240
)

// ChunkCandidate is one row returned by a lexical or vector candidate query.
type ChunkCandidate struct {
	ChunkID   string
	DocID     string
	Idx       int
	Title     string
	Text      string
	Score     float64
	ExpiresAt *time.Time
}

// Weights combine the two candidate scores.
type Weights struct {
	Lexical float64
	Vector  float64
}

// lexicalTerms returns the distinct stopword-free words of query, reduced to letters and
// digits so they can be OR-ed into a tsquery. Stemming is left to Postgres.
func lexicalTerms(query string) []string {
	toks := textproc.Tokens(query)
	seen := make(map[string]struct{}, len(toks))
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		tok = strings.TrimSuffix(strings.TrimSuffix(tok, "'s"), "’s")
		if textproc.IsStopword(tok) {
			continue
		}
		tok = strings.NewReplacer("'", "", "’", "").Replace(tok)
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// mergeCandidates joins both candidate lists on chunk_id. A chunk missing from one list
// scores 0 there. Non-finite scores are treated as 0.
func mergeCandidates(lexical, vector []ChunkCandidate, w Weights) []domain.Evidence {
	byID := make(map[string]*domain.Evidence, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))

	add := func(list []ChunkCandidate, isLexical bool) {
		for _, c := range list {
			ev, ok := byID[c.ChunkID]
			if !ok {
				ev = &domain.Evidence{
					ChunkID:   c.ChunkID,
					DocID:     c.DocID,
					Idx:       c.Idx,
					Title:     c.Title,
					Text:      c.Text,
					ExpiresAt: c.ExpiresAt,
				}
				byID[c.ChunkID] = ev
				order = append(order, c.ChunkID)
			}
			score := finite(c.Score)
			if isLexical {
				ev.LexicalScore = math.Max(ev.LexicalScore, score)
			} else {
				ev.VectorScore = math.Max(ev.VectorScore, score)
			}
		}
	}
	add(lexical, true)
	add(vector, false)

	out := make([]domain.Evidence, 0, len(order))
	for _, id := range order {
		ev := byID[id]
		ev.Score = w.Lexical*ev.LexicalScore + w.Vector*ev.VectorScore
		out = append(out, *ev)
	}
	sortEvidence(out)
	return out
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// sortEvidence orders by score, then lexical score, then vector score, descending,
// then doc_id and chunk_id ascending. The order is total, so equal inputs always
// rank identically.
func sortEvidence(ev []domain.Evidence) {
	sort.SliceStable(ev, func(i, j int) bool {
		a, b := ev[i], ev[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		if a.VectorScore != b.VectorScore {
			return a.VectorScore > b.VectorScore
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.ChunkID < b.ChunkID
	})
}

// makeSnippet picks the sentence sharing the most salient terms with the query, extended
// over following sentences while it fits in maxRunes. Offsets are runes into text and the
// snippet is always a verbatim span of it.
func makeSnippet(text string, terms []string, maxRunes int) (string, int, int) {
	runes := []rune(text)
	if len(runes) == 0 {
		return "", 0, 0
	}
	if maxRunes <= 0 {
		maxRunes = defaultSnippetMaxRunes
	}

	sentences := textproc.Sentences(text)
	if len(sentences) == 0 {
		end := min(len(runes), maxRunes)
		return string(runes[:end]), 0, end
	}

	best, bestOverlap := 0, -1
	for i, s := range sentences {
		if o := textproc.Overlap(terms, s.Text); o > bestOverlap {
			best, bestOverlap = i, o
		}
	}

	start := sentences[best].Start
	end := sentences[best].End
	if end-start > maxRunes {
		end = start + maxRunes
	}
	for next := best + 1; next < len(sentences); next++ {
		if sentences[next].End-start > maxRunes {
			break
		}
		end = sentences[next].End
	}
	return string(runes[start:end]), start, end
}

func clampLimit(v, def, ceiling int) int {
	if v <= 0 {
		return def
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
