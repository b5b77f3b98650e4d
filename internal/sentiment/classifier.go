package sentiment

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// Score is the per-message classification.
type Score struct {
	Category      Category             `json:"category"`
	RawScore      float64              `json:"raw_score"`
	WeightedScore float64              `json:"weighted_score"`
	Confidence    float64              `json:"confidence"`
	Matches       []string             `json:"matches,omitempty"`
	Breakdown     map[Category]float64 `json:"breakdown,omitempty"`
}

// Trend summarizes how sentiment moved between consecutive user turns.
type Trend struct {
	Direction string `json:"direction"`
	Improving int    `json:"improving"`
	Declining int    `json:"declining"`
	Stable    int    `json:"stable"`
}

const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Analysis is the conversation-level sentiment trajectory.
type Analysis struct {
	OverallSentiment Category `json:"overall_sentiment"`
	OverallScore     float64  `json:"overall_score"`
	Trend            Trend    `json:"trend"`
	Volatility       float64  `json:"volatility"`
	History          []Score  `json:"history"`
	Signal           Signal   `json:"escalation_signal"`
}

type matcher struct {
	label string
	re    *regexp.Regexp
	plain string
}

func (m matcher) count(text, lower string) int {
	if m.re != nil {
		return len(m.re.FindAllStringIndex(text, -1))
	}
	return strings.Count(lower, m.plain)
}

type compiledLexicon struct {
	category Category
	weight   float64
	keywords []matcher
	patterns []matcher
}

// Classifier scores messages against weighted keyword and phrase lexicons.
// It holds no per-conversation state and is safe for concurrent use.
type Classifier struct {
	lexicons []compiledLexicon
	byCat    map[Category]*compiledLexicon
	logger   *logging.Logger
}

// NewClassifier compiles the default lexicons.
func NewClassifier(logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Classifier{
		byCat:  make(map[Category]*compiledLexicon, len(defaultLexicons)),
		logger: logger,
	}
	for _, lx := range defaultLexicons {
		compiled := compiledLexicon{category: lx.category, weight: lx.weight}
		for _, kw := range lx.keywords {
			compiled.keywords = append(compiled.keywords, keywordMatcher(kw))
		}
		for _, p := range lx.patterns {
			compiled.patterns = append(compiled.patterns, matcher{label: p, re: regexp.MustCompile(p)})
		}
		c.lexicons = append(c.lexicons, compiled)
	}
	for i := range c.lexicons {
		c.byCat[c.lexicons[i].category] = &c.lexicons[i]
	}
	return c
}

// keywordMatcher uses word boundaries for ASCII keywords so "bug" does not hit "debug".
func keywordMatcher(kw string) matcher {
	lower := strings.ToLower(kw)
	if isASCII(lower) {
		return matcher{label: kw, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(lower) + `\b`)}
	}
	return matcher{label: kw, plain: lower}
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// ScoreMessage classifies a single message. Empty text is neutral with zero confidence.
func (c *Classifier) ScoreMessage(text string) Score {
	text = strings.TrimSpace(text)
	if text == "" {
		return Score{Category: Neutral}
	}
	lower := strings.ToLower(text)

	raw := make(map[Category]float64, len(c.lexicons))
	hits := make(map[Category]int, len(c.lexicons))
	var matches []string
	total := 0
	for _, lx := range c.lexicons {
		for _, kw := range lx.keywords {
			if kw.count(text, lower) > 0 {
				raw[lx.category] += keywordWeight
				hits[lx.category]++
				matches = append(matches, kw.label)
			}
		}
		for _, p := range lx.patterns {
			if p.count(text, lower) > 0 {
				raw[lx.category] += patternWeight
				hits[lx.category]++
			}
		}
		total += hits[lx.category]
	}

	dominant := dominantCategory(raw)
	lx := c.byCat[dominant]
	weighted := raw[dominant] * lx.weight
	if dominant == Neutral {
		weighted = clamp(weighted, -neutralClamp, neutralClamp)
	}

	confidence := 0.0
	if total > 0 {
		confidence = float64(hits[dominant]) / float64(total)
	}

	breakdown := make(map[Category]float64, len(raw))
	for cat, v := range raw {
		breakdown[cat] = v
	}

	return Score{
		Category:      dominant,
		RawScore:      raw[dominant],
		WeightedScore: weighted,
		Confidence:    confidence,
		Matches:       matches,
		Breakdown:     breakdown,
	}
}

// dominantCategory applies the fixed precedence: urgent, frustrated, then the
// highest remaining raw score. Ties prefer positive, then negative, then neutral.
func dominantCategory(raw map[Category]float64) Category {
	if raw[Urgent] > 0 {
		return Urgent
	}
	if raw[Frustrated] > 0 {
		return Frustrated
	}
	best := Neutral
	bestScore := 0.0
	for _, cat := range []Category{Positive, Negative, Neutral} {
		if raw[cat] > bestScore {
			best = cat
			bestScore = raw[cat]
		}
	}
	return best
}

// AnalyzeConversation aggregates the user turns into an overall trajectory.
func (c *Classifier) AnalyzeConversation(turns []conversation.Turn) Analysis {
	history := make([]Score, 0, len(turns))
	var userTexts []string
	for _, t := range turns {
		if t.Role != conversation.RoleUser {
			continue
		}
		history = append(history, c.ScoreMessage(t.Content))
		userTexts = append(userTexts, t.Content)
	}

	scores := make([]float64, len(history))
	for i, s := range history {
		scores[i] = s.WeightedScore
	}

	overall := blendedScore(scores)
	analysis := Analysis{
		OverallSentiment: band(overall),
		OverallScore:     overall,
		Trend:            trendOf(scores),
		Volatility:       stddev(scores),
		History:          history,
		Signal:           c.escalationSignal(history, userTexts),
	}

	if analysis.Signal.Required {
		c.logger.Debug("sentiment escalation signal",
			"priority", analysis.Signal.Priority,
			"factors", analysis.Signal.Factors,
			"overall", analysis.OverallSentiment,
		)
	}
	return analysis
}

const (
	recencyWindow = 3
	recencyWeight = 0.7
	historyWeight = 0.3
	trendDelta    = 0.5
)

func blendedScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	all := mean(scores)
	if len(scores) <= recencyWindow {
		return all
	}
	recent := mean(scores[len(scores)-recencyWindow:])
	return recent*recencyWeight + all*historyWeight
}

func band(score float64) Category {
	switch {
	case score >= 0.5:
		return Positive
	case score >= -0.5:
		return Neutral
	case score >= -1.5:
		return Negative
	default:
		return Frustrated
	}
}

func trendOf(scores []float64) Trend {
	t := Trend{Direction: TrendStable}
	for i := 1; i < len(scores); i++ {
		delta := scores[i] - scores[i-1]
		switch {
		case delta > trendDelta:
			t.Improving++
		case delta < -trendDelta:
			t.Declining++
		default:
			t.Stable++
		}
	}
	// Ties fall back to stable, then declining.
	switch {
	case t.Stable >= t.Declining && t.Stable >= t.Improving:
		t.Direction = TrendStable
	case t.Declining >= t.Improving:
		t.Direction = TrendDeclining
	default:
		t.Direction = TrendImproving
	}
	return t
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	variance := 0.0
	for _, x := range xs {
		variance += (x - m) * (x - m)
	}
	return math.Sqrt(variance / float64(len(xs)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
