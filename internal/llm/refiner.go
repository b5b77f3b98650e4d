package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/support-intel/internal/needs"
)

const (
	maxRefinedKeywords = 5
	refinerSystem      = "You extract search keywords from customer support messages. Reply with a JSON array of strings only."
)

// KeywordRefiner asks the model for extra keywords describing a detected need.
type KeywordRefiner struct {
	client    Client
	model     string
	maxTokens int32
}

var _ needs.KeywordRefiner = (*KeywordRefiner)(nil)

func NewKeywordRefiner(client Client, model string) *KeywordRefiner {
	return &KeywordRefiner{client: client, model: model, maxTokens: 128}
}

func (r *KeywordRefiner) RefineKeywords(ctx context.Context, needType needs.Type, evidence string) ([]string, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("llm: keyword refiner not configured")
	}
	prompt := fmt.Sprintf("Need type: %s\nMessage: %s\nList up to %d short keywords (nouns or noun phrases, in the message's language) that characterize this need.",
		needType, evidence, maxRefinedKeywords)

	resp, err := r.client.Complete(ctx, Request{
		Model:       r.model,
		System:      []string{refinerSystem},
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   r.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	return parseKeywordList(resp.Text)
}

// parseKeywordList reads the first JSON array in text, tolerating prose or code
// fences around it.
func parseKeywordList(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("llm: no keyword list in response %q", text)
	}
	var raw []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("llm: parse keyword list: %w", err)
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == maxRefinedKeywords {
			break
		}
	}
	return out, nil
}
