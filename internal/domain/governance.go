package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Classification is the sensitivity label of a document.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationRestricted   Classification = "restricted"
)

// DefaultClassification applies when a document carries no label.
const DefaultClassification = ClassificationInternal

// RetentionIndefinite is the canonical retention for documents that never expire.
const RetentionIndefinite = "indefinite"

var classificationRank = map[Classification]int{
	ClassificationPublic:       0,
	ClassificationInternal:     1,
	ClassificationConfidential: 2,
	ClassificationRestricted:   3,
}

var classificationAliases = map[string]Classification{
	"public":       ClassificationPublic,
	"open":         ClassificationPublic,
	"internal":     ClassificationInternal,
	"private":      ClassificationInternal,
	"confidential": ClassificationConfidential,
	"sensitive":    ClassificationConfidential,
	"restricted":   ClassificationRestricted,
	"secret":       ClassificationRestricted,
}

// IsValid returns true if the classification is one of the canonical values
func (c Classification) IsValid() bool {
	_, ok := classificationRank[c]
	return ok
}

// Rank orders classifications from least (public) to most sensitive.
func (c Classification) Rank() int {
	if r, ok := classificationRank[c]; ok {
		return r
	}
	return classificationRank[ClassificationRestricted]
}

// Allows reports whether a reader cleared for c may see a document labelled doc.
func (c Classification) Allows(doc Classification) bool {
	return doc.Rank() <= c.Rank()
}

// VisibleClassifications lists every label readable with clearance c, least sensitive first.
func VisibleClassifications(c Classification) []string {
	out := make([]string, 0, len(classificationRank))
	for _, label := range []Classification{
		ClassificationPublic,
		ClassificationInternal,
		ClassificationConfidential,
		ClassificationRestricted,
	} {
		if c.Allows(label) {
			out = append(out, string(label))
		}
	}
	return out
}

// NormalizeClassification maps free-form labels onto the canonical set.
func NormalizeClassification(raw string) (Classification, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return DefaultClassification, nil
	}
	if c, ok := classificationAliases[key]; ok {
		return c, nil
	}
	return "", NewValidationError("classification %q is not one of public, internal, confidential, restricted", raw)
}

var retentionPattern = regexp.MustCompile(`^(\d+)\s*([dwmy])[a-z]*$`)

var retentionUnitDays = map[string]int{
	"d": 1,
	"w": 7,
	"m": 30,
	"y": 365,
}

// NormalizeRetention returns the canonical retention string and its duration.
// Indefinite retention returns a zero duration.
func NormalizeRetention(raw string) (string, time.Duration, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch key {
	case "", "indefinite", "forever", "none", "permanent":
		return RetentionIndefinite, 0, nil
	}

	m := retentionPattern.FindStringSubmatch(key)
	if m == nil {
		return "", 0, NewValidationError("retention %q must be 'indefinite' or a count of days, weeks, months or years (e.g. 90d, 2y)", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return "", 0, NewValidationError("retention %q must be a positive period", raw)
	}
	days := n * retentionUnitDays[m[2]]
	return strconv.Itoa(days) + "d", time.Duration(days) * 24 * time.Hour, nil
}

// RetentionExpiry computes the expiry instant for a canonical retention value.
func RetentionExpiry(retention string, from time.Time) *time.Time {
	_, d, err := NormalizeRetention(retention)
	if err != nil || d == 0 {
		return nil
	}
	t := from.Add(d).UTC()
	return &t
}

var tagWhitespace = regexp.MustCompile(`\s+`)

// NormalizeTags lower-cases, trims, hyphenates, de-duplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		t = tagWhitespace.ReplaceAllString(t, "-")
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
