package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/support-intel/internal/conversation"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func userTurn(text string) conversation.Turn {
	return conversation.Turn{Role: conversation.RoleUser, Content: text, Timestamp: testNow}
}

func assistantTurn(text string) conversation.Turn {
	return conversation.Turn{Role: conversation.RoleAssistant, Content: text, Timestamp: testNow}
}

func TestExtractFields_BudgetRoundTrip(t *testing.T) {
	tr := New(nil, nil)

	fields := tr.ExtractFields("月額200万円の予算でSEO対策を検討しています", conversation.CategoryMarketing)

	require.Contains(t, fields, "budget_range")
	assert.Equal(t, "月額200万円", fields["budget_range"].String())
	assert.Equal(t, "SEO対策", fields["marketing_goal"].String())
	assert.NotContains(t, fields, "business_type")
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name     string
		category conversation.Category
		text     string
		field    string
		want     conversation.FieldValue
	}{
		{"dollar budget", conversation.CategoryMarketing, "We can spend about $5k per month", "budget_range", conversation.TextValue("$5k")},
		{"business keyword", conversation.CategoryMarketing, "都内でカフェを経営しています", "business_type", conversation.TextValue("飲食")},
		{"tool whitelist", conversation.CategoryMarketing, "今はHubSpotとWordPressを使っています", "current_tools", conversation.ListValue("HubSpot", "WordPress")},
		{"timeline", conversation.CategoryMarketing, "3ヶ月以内に始めたいです", "timeline", conversation.TextValue("3ヶ月以内")},
		{"issue type", conversation.CategoryTech, "管理画面にログインできません", "issue_type", conversation.TextValue("ログイン障害")},
		{"affected system", conversation.CategoryTech, "管理画面にログインできません", "affected_system", conversation.ListValue("管理画面")},
		{"english system", conversation.CategoryTech, "The API returns 500", "affected_system", conversation.ListValue("API")},
		{"error message", conversation.CategoryTech, "「権限がありません」というエラーが出ます", "error_message", conversation.TextValue("権限がありません")},
		{"email", conversation.CategoryGeneral, "連絡先は taro@example.co.jp です", "contact_email", conversation.TextValue("taro@example.co.jp")},
		{"company", conversation.CategoryGeneral, "株式会社サンプル、営業部の山田です", "company_name", conversation.TextValue("株式会社サンプル")},
	}

	tr := New(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := tr.ExtractFields(tt.text, tt.category)
			require.Contains(t, fields, tt.field)
			assert.Equal(t, tt.want, fields[tt.field])
		})
	}
}

func TestExtractFields_NoMatchOmits(t *testing.T) {
	tr := New(nil, nil)

	assert.Empty(t, tr.ExtractFields("", conversation.CategoryMarketing))
	assert.Empty(t, tr.ExtractFields("こんにちは", conversation.CategoryTech))
}

func TestCategorize(t *testing.T) {
	tr := New(nil, nil)

	assert.Equal(t, conversation.CategoryMarketing, tr.Categorize("月額200万円の予算でSEO対策を検討しています"))
	assert.Equal(t, conversation.CategoryTech, tr.Categorize("ログインするとエラーが表示されます"))
	assert.Equal(t, conversation.CategoryGeneral, tr.Categorize("料金について教えてください"))
	assert.Equal(t, conversation.CategoryGeneral, tr.Categorize("こんにちは"))
}

func TestUpdate_TurnCountMonotonic(t *testing.T) {
	tr := New(nil, nil)
	conv := conversation.New("conv-1", testNow)

	conv = tr.Update(conv, userTurn("SEOについて相談したいです"))
	conv = tr.Update(conv, assistantTurn("ご予算を教えてください"))
	conv = tr.Update(conv, assistantTurn("業種も教えてください"))
	conv = tr.Update(conv, userTurn("月額50万円です"))
	conv = tr.Update(conv, userTurn("カフェです"))

	assert.Equal(t, 3, conv.TurnCount)
	assert.Len(t, conv.Turns, 5)
	assert.Equal(t, conversation.CategoryMarketing, conv.Category)
	assert.Equal(t, "月額50万円", conv.CollectedFields["budget_range"].String())
	assert.Equal(t, "飲食", conv.CollectedFields["business_type"].String())
}

func TestUpdate_DoesNotMutateInput(t *testing.T) {
	tr := New(nil, nil)
	conv := conversation.New("conv-1", testNow)

	next := tr.Update(conv, userTurn("至急SEOの相談をしたい"))

	assert.Equal(t, 0, conv.TurnCount)
	assert.Empty(t, conv.Turns)
	assert.False(t, conv.Urgency)
	assert.True(t, next.Urgency)
}

func TestUpdate_UrgencyIsOneWay(t *testing.T) {
	tr := New(nil, nil)
	conv := tr.Update(nil, userTurn("緊急でお願いします"))
	require.True(t, conv.Urgency)

	conv = tr.Update(conv, userTurn("落ち着きました"))
	assert.True(t, conv.Urgency)
}

func TestUpdate_FieldsUpsertOnly(t *testing.T) {
	tr := New(nil, nil)
	conv := tr.Update(nil, userTurn("月額50万円でSEOをお願いしたい"))
	conv = tr.Update(conv, userTurn("やはり月額80万円まで出せます"))
	conv = tr.Update(conv, userTurn("よろしくお願いします"))

	assert.Equal(t, "月額80万円", conv.CollectedFields["budget_range"].String())
	assert.Equal(t, "SEO対策", conv.CollectedFields["marketing_goal"].String())
}

func TestNextMissingEssentialField(t *testing.T) {
	tr := New(nil, nil)
	conv := conversation.New("conv-1", testNow)
	conv.Category = conversation.CategoryMarketing

	field, ok := tr.NextMissingEssentialField(conv)
	require.True(t, ok)
	assert.Equal(t, "business_type", field)

	conv.CollectedFields["business_type"] = conversation.TextValue("飲食")
	conv.CollectedFields["marketing_goal"] = conversation.TextValue("")
	field, ok = tr.NextMissingEssentialField(conv)
	require.True(t, ok)
	assert.Equal(t, "marketing_goal", field)

	conv.CollectedFields["marketing_goal"] = conversation.TextValue("SEO対策")
	conv.CollectedFields["budget_range"] = conversation.ListValue()
	field, ok = tr.NextMissingEssentialField(conv)
	require.True(t, ok)
	assert.Equal(t, "budget_range", field)
}

func TestCompletionGating(t *testing.T) {
	tr := New(nil, nil)
	conv := conversation.New("conv-1", testNow)
	conv.Category = conversation.CategoryMarketing
	conv.TurnCount = 2
	conv.CollectedFields = conversation.Fields{
		"business_type":  conversation.TextValue("飲食"),
		"marketing_goal": conversation.TextValue("SEO対策"),
		"budget_range":   conversation.TextValue("月額200万円"),
	}

	assert.True(t, tr.IsComplete(conv))
	field, ok := tr.NextMissingEssentialField(conv)
	assert.False(t, ok, "optional field %q must not be requested", field)
	assert.False(t, tr.ShouldContinue(conv))
}

func TestShouldContinue_HardCap(t *testing.T) {
	tr := New(nil, nil)
	conv := conversation.New("conv-1", testNow)
	conv.Category = conversation.CategoryMarketing

	conv.TurnCount = 4
	assert.True(t, tr.ShouldContinue(conv))

	conv.TurnCount = 5
	assert.False(t, tr.ShouldContinue(conv))

	conv.TurnCount = 7
	assert.False(t, tr.ShouldContinue(conv))
}

func TestShouldContinue_Urgency(t *testing.T) {
	tr := New(nil, nil)
	conv := conversation.New("conv-1", testNow)
	conv.TurnCount = 1
	conv.Urgency = true

	assert.False(t, tr.ShouldContinue(conv))
}

func TestQuestionAndChannel(t *testing.T) {
	tr := New(nil, nil)

	assert.Equal(t, "ご予算の目安（月額または総額）を教えていただけますか？", tr.Question(conversation.CategoryMarketing, "budget_range"))
	assert.Empty(t, tr.Question(conversation.CategoryMarketing, "unknown"))
	assert.Equal(t, "#tech-support", tr.Channel(conversation.CategoryTech))
	assert.Equal(t, "#general-support", tr.Channel("unknown"))
}

func TestBudgetAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"月額200万円", 2_000_000, true},
		{"年間1.5億円", 150_000_000, true},
		{"3千円", 3_000, true},
		{"1,200,000円", 1_200_000, true},
		{"$5k", 5_000, true},
		{"$2,500", 2_500, true},
		{"月額２００万円", 2_000_000, true},
		{"未定", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := BudgetAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestFullWidthInputIsNormalized(t *testing.T) {
	tr := New(nil, nil)

	assert.Equal(t, conversation.CategoryMarketing, tr.Categorize("ＳＥＯ対策を相談したい"))
	assert.True(t, tr.HasUrgency("ＡＳＡＰでお願いします"))

	fields := tr.ExtractFields("予算は月額３０万円です", conversation.CategoryMarketing)
	assert.Equal(t, "月額30万円", fields["budget_range"].String())
}

func TestLoadSchema_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	data := `
default_category: support
urgency_keywords: [urgent]
categories:
  - name: Support
    channel: "#support"
    keywords: [help]
    essential: [order_id, email]
    priority_order: [email]
    fields:
      order_id:
        patterns: ['#([0-9]{4,})']
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, defaultTurnCap, s.TurnCap)
	assert.Equal(t, "support", s.DefaultCategory)
	assert.Equal(t, []string{"email", "order_id"}, s.Category("support").PriorityOrder)

	tr := New(s, nil)
	assert.Equal(t, conversation.Category("support"), tr.Categorize("anything"))
	assert.Equal(t, "1234", tr.ExtractFields("order #1234", "support")["order_id"].String())
	assert.True(t, tr.HasUrgency("this is URGENT"))
}

func TestParseSchema_Invalid(t *testing.T) {
	tests := map[string]string{
		"no categories":     "turn_cap: 5",
		"bad pattern":       "categories:\n  - name: a\n    essential: [x]\n    fields:\n      x:\n        patterns: ['(']",
		"unknown default":   "default_category: nope\ncategories:\n  - name: a\n    essential: [x]",
		"missing essential": "categories:\n  - name: a",
		"duplicate":         "categories:\n  - name: a\n    essential: [x]\n  - name: A\n    essential: [x]",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSchema([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadSchema_EmptyPathUsesDefault(t *testing.T) {
	s, err := LoadSchema("")
	require.NoError(t, err)
	assert.Equal(t, []conversation.Category{
		conversation.CategoryMarketing,
		conversation.CategoryTech,
		conversation.CategoryGeneral,
	}, s.CategoryNames())
}
