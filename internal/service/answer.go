package service

import (
	"context"
	"sort"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/textproc"
)

const maxAnswerSentences = 3

// Answerer produces an answer from an evidence pack. Citations must point into the pack.
type Answerer interface {
	Answer(ctx context.Context, question string, evidence []domain.Evidence) (*domain.Answer, error)
}

// ExtractiveAnswerer answers by quoting the evidence sentences that share the most
// salient terms with the question. It never writes words of its own.
type ExtractiveAnswerer struct {
	maxSentences int
}

// NewExtractiveAnswerer creates an ExtractiveAnswerer.
func NewExtractiveAnswerer() *ExtractiveAnswerer {
	return &ExtractiveAnswerer{maxSentences: maxAnswerSentences}
}

type scoredSentence struct {
	ev      int
	span    textproc.Span
	overlap int
}

// Answer selects up to three sentences and joins them with single spaces. Each used
// sentence becomes one citation. No overlapping sentence yields an empty answer.
func (a *ExtractiveAnswerer) Answer(ctx context.Context, question string, evidence []domain.Evidence) (*domain.Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := textproc.SalientTerms(question)
	if len(terms) == 0 {
		return &domain.Answer{Citations: []domain.Citation{}}, nil
	}

	var candidates []scoredSentence
	for i, ev := range evidence {
		for _, s := range textproc.Sentences(ev.Text) {
			if o := textproc.Overlap(terms, s.Text); o > 0 {
				candidates = append(candidates, scoredSentence{ev: i, span: s, overlap: o})
			}
		}
	}

	// Evidence rank breaks overlap ties, then position in the chunk.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		if candidates[i].ev != candidates[j].ev {
			return candidates[i].ev < candidates[j].ev
		}
		return candidates[i].span.Start < candidates[j].span.Start
	})

	seen := make(map[string]struct{})
	parts := make([]string, 0, a.maxSentences)
	citations := make([]domain.Citation, 0, a.maxSentences)
	for _, c := range candidates {
		if len(parts) == a.maxSentences {
			break
		}
		if _, dup := seen[c.span.Text]; dup {
			continue
		}
		seen[c.span.Text] = struct{}{}

		ev := evidence[c.ev]
		parts = append(parts, c.span.Text)
		citations = append(citations, domain.Citation{
			ChunkID: ev.ChunkID,
			DocID:   ev.DocID,
			Idx:     ev.Idx,
			Quote:   c.span.Text,
			Start:   c.span.Start,
			End:     c.span.End,
		})
	}

	return &domain.Answer{
		Text:      strings.Join(parts, " "),
		Citations: citations,
	}, nil
}
