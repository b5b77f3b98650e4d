package needs

// Type is a canonical hidden-need category.
type Type string

const (
	Efficiency     Type = "efficiency"
	CostReduction  Type = "cost_reduction"
	FeatureRequest Type = "feature_request"
	Integration    Type = "integration"
	Scalability    Type = "scalability"
	Usability      Type = "usability"
)

type phrasePattern struct {
	expr       string
	complexity float64
	suggestion string
}

type categoryRules struct {
	needType Type
	weight   float64
	fallback string
	keywords []string
	patterns []phrasePattern
}

// needRules is the data table driving the miner. Each pattern's first capture
// group is the context window interpolated into the suggestion.
var needRules = []categoryRules{
	{
		needType: Efficiency,
		weight:   1.2,
		fallback: "業務プロセス",
		keywords: []string{"効率", "手作業", "時間がかか", "自動化", "面倒", "工数", "manual", "time-consuming", "automate", "efficiency", "tedious"},
		patterns: []phrasePattern{
			{expr: `([^、。\s]{1,15}?)(?:に|の)(?:時間がかか|手間がかか)`, complexity: 1.0, suggestion: "「%s」の作業を自動化するワークフロー"},
			{expr: `手作業で([^、。\s]{1,15}?)(?:を|して)`, complexity: 0.8, suggestion: "「%s」の手作業を置き換える自動化"},
			{expr: `(?i)\bspend(?:ing)?\s+(?:too\s+much|a\s+lot\s+of)\s+time\s+(?:on\s+)?([a-z ]{3,30})`, complexity: 1.0, suggestion: "automation for %s"},
		},
	},
	{
		needType: CostReduction,
		weight:   1.1,
		fallback: "運用コスト",
		keywords: []string{"コスト", "費用", "高い", "削減", "節約", "cost", "expensive", "price", "save money", "cheaper"},
		patterns: []phrasePattern{
			{expr: `([^、。\s]{1,15}?)(?:の|が)(?:コスト|費用)(?:が高い|を削減|を下げ|を抑え)`, complexity: 1.0, suggestion: "「%s」のコスト最適化プラン"},
			{expr: `(?i)\b(?:reduce|cut|lower)\s+(?:our\s+|the\s+)?([a-z ]{3,30}?)\s+costs?\b`, complexity: 0.9, suggestion: "cost reduction for %s"},
		},
	},
	{
		needType: FeatureRequest,
		weight:   1.0,
		fallback: "新機能",
		keywords: []string{"機能", "欲しい", "できれば", "追加", "あったら", "feature", "wish", "would like", "support for"},
		patterns: []phrasePattern{
			{expr: `([^、。\s]{1,15}?)(?:機能|仕組み)(?:が欲しい|があれば|があったら|を追加)`, complexity: 1.0, suggestion: "「%s」機能の追加検討"},
			{expr: `(?i)\b(?:would\s+be\s+nice|wish)\s+(?:if\s+|to\s+have\s+)?([a-z ]{3,30})`, complexity: 0.7, suggestion: "feature: %s"},
			{expr: `(?i)\bis\s+there\s+(?:a\s+|any\s+)?way\s+to\s+([a-z ]{3,30})`, complexity: 0.8, suggestion: "feature: %s"},
		},
	},
	{
		needType: Integration,
		weight:   1.1,
		fallback: "既存システム",
		keywords: []string{"連携", "統合", "api", "インポート", "エクスポート", "同期", "integrate", "integration", "sync", "connect", "import", "export"},
		patterns: []phrasePattern{
			{expr: `([^、。\s]{1,15}?)(?:と|との)(?:連携|統合|同期)`, complexity: 1.0, suggestion: "「%s」との連携"},
			{expr: `(?i)\b(?:integrate|connect|sync)\s+(?:it\s+)?(?:with\s+)?([a-z0-9 ]{2,30})`, complexity: 0.9, suggestion: "integration with %s"},
		},
	},
	{
		needType: Scalability,
		weight:   1.4,
		fallback: "事業規模",
		keywords: []string{"拡大", "増加", "成長", "スケール", "大量", "拡張", "scale", "growth", "growing", "volume", "expand"},
		patterns: []phrasePattern{
			{expr: `([^、。\s]{1,15}?)(?:が|の)(?:増えて|増加|拡大)`, complexity: 1.0, suggestion: "「%s」の増加に備えた拡張プラン"},
			{expr: `(?i)\b(?:as\s+we|we\s+are|we're)\s+(?:grow|growing|scaling|expanding)\s*([a-z ]{0,30})`, complexity: 0.8, suggestion: "scaling plan for %s"},
		},
	},
	{
		needType: Usability,
		weight:   1.1,
		fallback: "操作画面",
		keywords: []string{"使いにくい", "分かりにくい", "わかりにくい", "複雑", "操作", "画面", "confusing", "hard to use", "complicated", "intuitive"},
		patterns: []phrasePattern{
			{expr: `([^、。\s]{1,15}?)(?:が|の|は)(?:使いにくい|分かりにくい|わかりにくい|複雑)`, complexity: 1.0, suggestion: "「%s」の操作性改善"},
			{expr: `(?i)\b([a-z ]{3,30}?)\s+is\s+(?:confusing|hard\s+to\s+use|complicated)\b`, complexity: 0.9, suggestion: "usability improvements for %s"},
		},
	},
}

// Sentiment phrases looked for in the context window and the boost each implies.
var windowSentiments = []struct {
	label   string
	boost   int
	phrases []string
}{
	{label: "frustrated", boost: 2, phrases: []string{"イライラ", "困って", "うんざり", "frustrat"}},
	{label: "urgent", boost: 3, phrases: []string{"急ぎ", "至急", "緊急", "urgent", "asap"}},
	{label: "disappointed", boost: 1, phrases: []string{"がっかり", "残念", "disappoint"}},
}
