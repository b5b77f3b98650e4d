package sentiment

// Category is the sentiment class assigned to a message.
type Category string

const (
	Positive   Category = "positive"
	Neutral    Category = "neutral"
	Negative   Category = "negative"
	Frustrated Category = "frustrated"
	Urgent     Category = "urgent"
)

const (
	keywordWeight = 1.0
	patternWeight = 1.5
	neutralClamp  = 0.5
)

// lexicon is the keyword list and phrase patterns for one category.
type lexicon struct {
	category Category
	weight   float64
	keywords []string
	patterns []string
}

// defaultLexicons lists categories in evaluation order. Keywords mix Japanese
// and English because both appear in inbound support traffic.
var defaultLexicons = []lexicon{
	{
		category: Positive,
		weight:   1.0,
		keywords: []string{
			"ありがとう", "助かり", "嬉しい", "素晴らしい", "満足", "良かった", "感謝",
			"thanks", "thank you", "great", "awesome", "perfect", "helpful", "excellent", "appreciate",
		},
		patterns: []string{
			`(とても|本当に|大変)(助かり|ありがた|嬉し)`,
			`(?i)\b(works?|worked)\s+(great|perfectly)\b`,
			`(?i)\bthanks?\s+(you\s+)?(so|very)\s+much\b`,
		},
	},
	{
		category: Neutral,
		weight:   0.2,
		keywords: []string{
			"確認", "質問", "教えて", "検討", "について", "詳細",
			"question", "wondering", "information", "details", "clarify",
		},
		patterns: []string{
			`(教えて|確認して)(ください|いただけ)`,
			`(?i)\bcould\s+you\s+(tell|explain|clarify)\b`,
		},
	},
	{
		category: Negative,
		weight:   -1.0,
		keywords: []string{
			"問題", "困って", "不満", "遅い", "ひどい", "最悪", "残念", "不具合", "エラー", "使いにくい",
			"problem", "issue", "slow", "broken", "error", "disappointed", "terrible", "worst", "bug",
		},
		patterns: []string{
			`(全然|まったく|全く)(使えない|動かない|分からない|わからない)`,
			`(?i)\b(doesn'?t|does\s+not|didn'?t|did\s+not)\s+work\b`,
			`(?i)\bnot\s+(happy|satisfied)\b`,
		},
	},
	{
		category: Frustrated,
		weight:   -1.5,
		keywords: []string{
			"イライラ", "いい加減", "うんざり", "ふざけ", "話にならない", "ありえない",
			"frustrated", "frustrating", "annoyed", "ridiculous", "fed up", "unacceptable", "sick of",
		},
		patterns: []string{
			`(何度|何回)も?(言って|聞いて|問い合わせ|連絡)`,
			`(?i)\bhow\s+many\s+times\b`,
			`(?i)\b(still|yet\s+again)\s+(not|no|broken)\b`,
		},
	},
	{
		category: Urgent,
		weight:   -1.2,
		keywords: []string{
			"至急", "緊急", "急ぎ", "今すぐ", "すぐに",
			"urgent", "asap", "immediately", "emergency", "right now",
		},
		patterns: []string{
			`(大至急|至急|今日中に)(対応|連絡|返信|お願い)`,
			`(?i)\bas\s+soon\s+as\s+possible\b`,
			`(?i)\bneeds?\s+(this|it)\s+(today|now)\b`,
		},
	},
}
