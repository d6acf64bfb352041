package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/groundwork/internal/domain"
)

const (
	defaultEvidenceThreshold = 0.15
	defaultMaxQuestionRunes  = 2000
)

// injectionPatterns flag attempts to steer the answerer instead of asking a question.
var injectionPatterns = []*regexp.Regexp{
	// instruction override: anywhere when aimed at the model's instructions, only as a
	// sentence-initial command for softer nouns like rules or context
	regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override|bypass)\b.{0,40}\b(previous|prior|above|earlier|preceding|all|your|system)\b.{0,40}\b(instructions?|prompts?|directives?|guardrails?)\b`),
	regexp.MustCompile(`(?im)(?:^|[.!?;:]\s*)\s*(?:please\s+|now\s+|just\s+)?(?:ignore|disregard|forget|override|bypass)\s+(?:(?:all|any|of)\s+)*(?:(?:the|your|these)\s+)?(?:(?:previous|prior|above|earlier|preceding)\s+)?(?:rules?|guidelines?|context|directions?|constraints?|restrictions?)\b`),
	regexp.MustCompile(`(?i)\bdo not follow\b.{0,40}\b(instructions?|rules?)\b`),
	// system prompt reveal
	regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|display|output|leak|tell me)\b.{0,40}\b(system|hidden|initial|original)\s+(prompt|instructions?|message)\b`),
	regexp.MustCompile(`(?i)\bwhat\s+(is|are|was|were)\s+your\s+(system\s+)?(prompt|instructions)\b`),
	// role reassignment
	regexp.MustCompile(`(?i)\byou\s+are\s+now\b`),
	regexp.MustCompile(`(?i)\b(act|behave|respond)\s+as\s+(if\s+you\s+were\s+)?(an?\s+)?(unrestricted|unfiltered|jailbroken|dan|developer mode)\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(to\s+be|you\s+are)\b`),
	regexp.MustCompile(`(?i)\b(enter|enable|activate)\s+(developer|debug|god|jailbreak)\s+mode\b`),
	// delimiter smuggling
	regexp.MustCompile(`(?i)<\|?\s*(im_start|im_end|system|endoftext)\s*\|?>`),
	regexp.MustCompile(`(?i)\[/?(inst|system)\]`),
	regexp.MustCompile(`(?im)^\s*(system|assistant)\s*:`),
	regexp.MustCompile("(?i)```\\s*system"),
}

// SafetyGate screens questions before retrieval and evidence before answering.
type SafetyGate struct {
	threshold float64
	maxRunes  int
}

// NewSafetyGate creates a SafetyGate. Non-positive values take the defaults.
func NewSafetyGate(threshold float64, maxQuestionRunes int) *SafetyGate {
	if threshold <= 0 {
		threshold = defaultEvidenceThreshold
	}
	if maxQuestionRunes <= 0 {
		maxQuestionRunes = defaultMaxQuestionRunes
	}
	return &SafetyGate{threshold: threshold, maxRunes: maxQuestionRunes}
}

// ValidateQuestion rejects empty or oversized questions.
func (g *SafetyGate) ValidateQuestion(q string) error {
	if strings.TrimSpace(q) == "" {
		return domain.ErrEmptyQuestion
	}
	if utf8.RuneCountInString(q) > g.maxRunes {
		return domain.ErrQuestionTooLong
	}
	return nil
}

// Blocked reports whether q matches a known injection pattern.
func (g *SafetyGate) Blocked(q string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// Sufficient reports whether the ranked evidence is strong enough to answer from.
func (g *SafetyGate) Sufficient(evidence []domain.Evidence) bool {
	return len(evidence) > 0 && evidence[0].Score >= g.threshold
}
