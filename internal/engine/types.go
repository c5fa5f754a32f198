package engine

// --- Discovery ---

// VideoEntry is one discovered processing unit.
type VideoEntry struct {
	VideoURL   string `json:"VIDEO_URL"`
	VideoID    string `json:"VIDEO_ID"`
	Title      string `json:"TITLE"`
	SearchTerm string `json:"SEARCH_TERM,omitempty"`
}

// --- Raw collector output ---

// RawTranscript is the transcript collector's output before normalization.
type RawTranscript struct {
	VideoID string
	Source  string // "manual", "auto", or "unknown"
	Lang    string
	Entries []RawTranscriptEntry
}

// RawTranscriptEntry is one timed caption line.
type RawTranscriptEntry struct {
	Text      string
	StartS    float64
	DurationS float64
}

// RawComment is one comment as returned by a comment collector.
// Parent is empty or "root" for top-level comments.
type RawComment struct {
	ID         string
	Parent     string
	Author     string
	Text       string
	LikeCount  int
	ReplyCount int
	Timestamp  int64 // unix seconds, 0 = unknown
}

// --- Canonical records (newline-delimited JSON on disk) ---

// Segment is one normalized transcript segment.
type Segment struct {
	VideoID      string  `json:"VIDEO_ID"`
	SegmentIndex int     `json:"SEGMENT_INDEX"`
	StartS       float64 `json:"START_S"`
	EndS         float64 `json:"END_S"`
	Text         string  `json:"TEXT"`
	Speaker      string  `json:"SPEAKER"`
	Source       string  `json:"SOURCE"`
	Lang         string  `json:"LANG"`
}

// Chunk is a fixed-width, overlapping time window over segments.
type Chunk struct {
	VideoID        string  `json:"VIDEO_ID"`
	ChunkIndex     int     `json:"CHUNK_INDEX"`
	StartS         float64 `json:"START_S"`
	EndS           float64 `json:"END_S"`
	Text           string  `json:"TEXT"`
	SegmentIndices []int   `json:"SEGMENT_INDICES"`
	OverlapS       float64 `json:"OVERLAP_S"`
}

// Comment is one normalized comment.
type Comment struct {
	VideoID     string `json:"VIDEO_ID"`
	CommentID   string `json:"COMMENT_ID"`
	ParentID    string `json:"PARENT_ID"`
	Author      string `json:"AUTHOR"`
	Text        string `json:"TEXT"`
	LikeCount   int    `json:"LIKE_COUNT"`
	ReplyCount  int    `json:"REPLY_COUNT"`
	PublishedAt string `json:"PUBLISHED_AT"` // ISO-8601 or empty
	SortMode    string `json:"SORT_MODE"`
	ThreadDepth int    `json:"THREAD_DEPTH"` // 0 root, 1 reply
}

// --- Enrichment records ---

type EmbeddingRecord struct {
	VideoID   string    `json:"VIDEO_ID"`
	AssetType string    `json:"ASSET_TYPE"`
	ItemID    string    `json:"ITEM_ID"`
	Model     string    `json:"MODEL"`
	Vector    []float64 `json:"VECTOR"`
}

type TopicRecord struct {
	VideoID             string   `json:"VIDEO_ID"`
	AssetType           string   `json:"ASSET_TYPE"`
	TopicID             int      `json:"TOPIC_ID"`
	Label               string   `json:"LABEL"`
	Keywords            []string `json:"KEYWORDS"`
	RepresentativeTexts []string `json:"REPRESENTATIVE_TEXTS"`
	Score               float64  `json:"SCORE"`
}

type SentimentRecord struct {
	VideoID     string  `json:"VIDEO_ID"`
	AssetType   string  `json:"ASSET_TYPE"`
	ItemID      string  `json:"ITEM_ID"`
	Polarity    string  `json:"POLARITY"`
	Score       float64 `json:"SCORE"`
	TextExcerpt string  `json:"TEXT_EXCERPT"`
}

type TripleRecord struct {
	VideoID    string  `json:"VIDEO_ID"`
	AssetType  string  `json:"ASSET_TYPE"`
	Subject    string  `json:"SUBJECT"`
	Predicate  string  `json:"PREDICATE"`
	Object     string  `json:"OBJECT"`
	Confidence float64 `json:"CONFIDENCE"`
	SourceText string  `json:"SOURCE_TEXT"`
}

type URLRecord struct {
	VideoID         string `json:"VIDEO_ID"`
	AssetType       string `json:"ASSET_TYPE"`
	URL             string `json:"URL"`
	Domain          string `json:"DOMAIN"`
	MentionCount    int    `json:"MENTION_COUNT"`
	FirstSeenItemID string `json:"FIRST_SEEN_ITEM_ID"`
}

type SummaryRecord struct {
	VideoID           string   `json:"VIDEO_ID"`
	AssetType         string   `json:"ASSET_TYPE"`
	Summary           string   `json:"SUMMARY"`
	KeyThemes         []string `json:"KEY_THEMES"`
	Tone              string   `json:"TONE"`
	ItemCount         int      `json:"ITEM_COUNT"`
	ItemCountAnalyzed int      `json:"ITEM_COUNT_ANALYZED"`
}

// --- Failures ---

// FailureRecord is one write-once JSON object per failed stage attempt.
type FailureRecord struct {
	Stage        string   `json:"stage"`
	VideoID      string   `json:"video_id"`
	ErrorType    string   `json:"error_type"`
	ErrorMessage string   `json:"error_message"`
	Traceback    []string `json:"traceback"`
	Timestamp    string   `json:"timestamp"`
}
