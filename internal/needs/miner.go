package needs

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/pkg/logging"
)

var minerTracer = otel.Tracer("support-intel/needs")

// Level is the priority tier of a need.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

const (
	highThreshold   = 120.0
	mediumThreshold = 80.0
	windowRadius    = 3
	topicBoost      = 0.05
	boostFactor     = 0.3
	minKeywords     = 2
	maxRefinedCache = 1024
)

// Candidate is one inferred hidden need.
type Candidate struct {
	Type          Type     `json:"type"`
	Evidence      string   `json:"evidence"`
	Context       string   `json:"context,omitempty"`
	Suggestion    string   `json:"suggestion"`
	Keywords      []string `json:"keywords,omitempty"`
	Confidence    float64  `json:"confidence"`
	PriorityBoost int      `json:"priority_boost"`
	PriorityScore float64  `json:"priority_score"`
	PriorityLevel Level    `json:"priority_level"`
	SourceTurn    int      `json:"source_turn"`
}

// KeywordRefiner supplies extra keywords when the density-based list is too thin.
// Implementations may call an external model; failures are ignored by the miner.
type KeywordRefiner interface {
	RefineKeywords(ctx context.Context, needType Type, evidence string) ([]string, error)
}

type compiledPattern struct {
	re         *regexp.Regexp
	complexity float64
	suggestion string
}

type compiledRules struct {
	needType Type
	weight   float64
	fallback string
	keywords []keyword
	patterns []compiledPattern
}

type keyword struct {
	label string
	re    *regexp.Regexp
}

func (k keyword) in(text, lower string) bool {
	if k.re != nil {
		return k.re.MatchString(text)
	}
	return strings.Contains(lower, k.label)
}

// Miner scans conversation history for hidden needs.
type Miner struct {
	rules   []compiledRules
	weights map[Type]float64
	refiner KeywordRefiner
	logger  *logging.Logger

	// refined caches refiner answers by type and evidence; history is mined
	// again on every turn and the refiner may be a remote model.
	refinedMu sync.Mutex
	refined   map[refineKey][]string
}

type refineKey struct {
	needType Type
	evidence string
}

// NewMiner compiles the rule tables. refiner may be nil.
func NewMiner(refiner KeywordRefiner, logger *logging.Logger) *Miner {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Miner{
		weights: make(map[Type]float64, len(needRules)),
		refiner: refiner,
		logger:  logger,
		refined: make(map[refineKey][]string),
	}
	for _, r := range needRules {
		cr := compiledRules{needType: r.needType, weight: r.weight, fallback: r.fallback}
		for _, kw := range r.keywords {
			cr.keywords = append(cr.keywords, newKeyword(kw))
		}
		for _, p := range r.patterns {
			cr.patterns = append(cr.patterns, compiledPattern{
				re:         regexp.MustCompile(p.expr),
				complexity: p.complexity,
				suggestion: p.suggestion,
			})
		}
		m.rules = append(m.rules, cr)
		m.weights[r.needType] = r.weight
	}
	return m
}

func newKeyword(kw string) keyword {
	lower := strings.ToLower(kw)
	for _, r := range lower {
		if r > unicode.MaxASCII {
			return keyword{label: lower}
		}
	}
	return keyword{label: lower, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(lower) + `\b`)}
}

// Mine returns ranked candidates, highest priority first. No matches yields an empty list.
func (m *Miner) Mine(ctx context.Context, turns []conversation.Turn) []Candidate {
	ctx, span := minerTracer.Start(ctx, "needs.mine")
	defer span.End()

	var candidates []Candidate
	for i, turn := range turns {
		if turn.Role != conversation.RoleUser {
			continue
		}
		candidates = append(candidates, m.extract(i, turn.Content)...)
	}
	if len(candidates) == 0 {
		return []Candidate{}
	}

	m.applyContextWindows(turns, candidates)
	m.refineKeywords(ctx, candidates)
	ranked := m.Rank(consolidate(candidates))

	span.SetAttributes(
		attribute.Int("needs.candidates", len(ranked)),
		attribute.String("needs.top", string(ranked[0].Type)),
	)
	return ranked
}

func (m *Miner) extract(turnIndex int, text string) []Candidate {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var out []Candidate
	for _, rule := range m.rules {
		var matched []string
		for _, kw := range rule.keywords {
			if kw.in(text, lower) {
				matched = append(matched, kw.label)
			}
		}
		density := 0.0
		if len(rule.keywords) > 0 {
			density = float64(len(matched)) / float64(len(rule.keywords))
		}

		for _, p := range rule.patterns {
			loc := p.re.FindStringSubmatch(text)
			if loc == nil {
				continue
			}
			subjectText := ""
			if len(loc) > 1 {
				subjectText = strings.TrimSpace(loc[1])
			}
			subject := subjectText
			if subject == "" {
				subject = rule.fallback
			}
			out = append(out, Candidate{
				Type:       rule.needType,
				Evidence:   loc[0],
				Context:    subjectText,
				Suggestion: fmt.Sprintf(p.suggestion, subject),
				Keywords:   append([]string(nil), matched...),
				Confidence: clamp01(0.5 + density*0.3 + math.Min(p.complexity*0.2, 0.2)),
				SourceTurn: turnIndex,
			})
		}
	}
	return out
}

// applyContextWindows runs one ±3 turn window per user turn. Each window's
// repeated topics raise the confidence of every candidate whose evidence
// mentions them, and its strongest sentiment phrase lifts every candidate's
// boost. Boosts only ever rise across windows.
func (m *Miner) applyContextWindows(turns []conversation.Turn, candidates []Candidate) {
	evidence := make([]string, len(candidates))
	for i := range candidates {
		evidence[i] = strings.ToLower(candidates[i].Evidence)
	}

	for center, turn := range turns {
		if turn.Role != conversation.RoleUser {
			continue
		}
		lo := max(0, center-windowRadius)
		hi := min(len(turns), center+windowRadius+1)
		texts := make([]string, 0, hi-lo)
		for _, t := range turns[lo:hi] {
			texts = append(texts, t.Content)
		}
		topics := repeatedTopics(texts)
		boost := windowBoost(texts)

		for i := range candidates {
			for topic, count := range topics {
				if strings.Contains(evidence[i], topic) {
					candidates[i].Confidence = clamp01(candidates[i].Confidence + topicBoost*float64(count))
				}
			}
			if boost > candidates[i].PriorityBoost {
				candidates[i].PriorityBoost = boost
			}
		}
	}
}

func (m *Miner) refineKeywords(ctx context.Context, candidates []Candidate) {
	if m.refiner == nil {
		return
	}
	for i := range candidates {
		if len(candidates[i].Keywords) >= minKeywords {
			continue
		}
		extra, err := m.refine(ctx, candidates[i].Type, candidates[i].Evidence)
		if err != nil {
			m.logger.Debug("needs: keyword refinement unavailable", "error", err, "type", candidates[i].Type)
			continue
		}
		candidates[i].Keywords = appendUnique(candidates[i].Keywords, extra...)
	}
}

// refine answers from the cache when possible. Errors are not cached.
func (m *Miner) refine(ctx context.Context, needType Type, evidence string) ([]string, error) {
	key := refineKey{needType: needType, evidence: evidence}
	m.refinedMu.Lock()
	cached, ok := m.refined[key]
	m.refinedMu.Unlock()
	if ok {
		return cached, nil
	}

	extra, err := m.refiner.RefineKeywords(ctx, needType, evidence)
	if err != nil {
		return nil, err
	}

	m.refinedMu.Lock()
	if len(m.refined) >= maxRefinedCache {
		clear(m.refined)
	}
	m.refined[key] = append([]string(nil), extra...)
	m.refinedMu.Unlock()
	return extra, nil
}

// Rank scores, tiers and sorts candidates by descending priority score.
// Equal scores keep their input order.
func (m *Miner) Rank(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	for i := range out {
		weight, ok := m.weights[out[i].Type]
		if !ok {
			weight = 1.0
		}
		out[i].PriorityScore = out[i].Confidence * 100 * (1 + float64(out[i].PriorityBoost)*boostFactor) * weight
		out[i].PriorityLevel = levelFor(out[i].PriorityScore)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].PriorityScore > out[b].PriorityScore
	})
	return out
}

func levelFor(score float64) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// consolidate drops duplicate (type, suggestion) pairs, keeping the first
// position and the strongest confidence and boost seen.
func consolidate(candidates []Candidate) []Candidate {
	type key struct {
		t Type
		s string
	}
	index := make(map[key]int, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		k := key{c.Type, c.Suggestion}
		if pos, ok := index[k]; ok {
			existing := &out[pos]
			existing.Confidence = math.Max(existing.Confidence, c.Confidence)
			if c.PriorityBoost > existing.PriorityBoost {
				existing.PriorityBoost = c.PriorityBoost
			}
			existing.Keywords = appendUnique(existing.Keywords, c.Keywords...)
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, d := range dst {
		seen[d] = struct{}{}
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
