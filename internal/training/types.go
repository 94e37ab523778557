package training

// Type is the kind of exchange an entry records.
type Type string

const (
	Conversation Type = "conversation"
	TweetRead    Type = "tweet_read"
	TweetWrite   Type = "tweet_write"
	Study        Type = "study"
	CodeAnalysis Type = "code_analysis"
	OpinionType  Type = "opinion"
	Analytics    Type = "analytics"
)

// Sources the engine accepts exchanges from.
const (
	SourceWhatsApp = "whatsapp"
	SourceTelegram = "telegram"
	SourceTwitter  = "twitter"
	SourceInternal = "internal"
	SourceAPI      = "api"
	SourceCLI      = "cli"
	SourceMCP      = "mcp"
)

// Engagement counts reactions to a published post.
type Engagement struct {
	Likes    int `json:"likes,omitempty"`
	Retweets int `json:"retweets,omitempty"`
	Replies  int `json:"replies,omitempty"`
}

// Metadata describes how an output was produced.
type Metadata struct {
	Provider        string      `json:"provider,omitempty"`
	Model           string      `json:"model,omitempty"`
	LatencyMs       int64       `json:"latency_ms,omitempty"`
	InputTokens     int         `json:"input_tokens,omitempty"`
	OutputTokens    int         `json:"output_tokens,omitempty"`
	Complexity      string      `json:"complexity,omitempty"`
	FallbackUsed    bool        `json:"fallback_used,omitempty"`
	TweetEngagement *Engagement `json:"tweet_engagement,omitempty"`
}

// ExchangeContext is the situation an exchange happened in.
type ExchangeContext struct {
	Channel            string   `json:"channel,omitempty"`
	UserRole           string   `json:"user_role,omitempty"`
	Topic              string   `json:"topic,omitempty"`
	MemoriesUsed       []string `json:"memories_used,omitempty"`
	ConversationLength int      `json:"conversation_length,omitempty"`
}

// Entry is one exchange to be scored and kept.
type Entry struct {
	Type     Type
	Input    string
	Output   string
	Source   string
	Context  ExchangeContext
	Metadata Metadata
}
