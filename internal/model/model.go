// Package model defines the normalized data types shared across the store,
// indexer, and transport layers.
package model

// Session is one conversational thread, normalized from a transcript file.
type Session struct {
	ID              string `json:"id"`
	Project         string `json:"project"`
	StartedAt       int64  `json:"startedAt"`
	LastActivityAt  int64  `json:"lastActivityAt"`
	MessageCount    int    `json:"messageCount"`
	Preview         string `json:"preview"`
	Title           string `json:"title,omitempty"`
	LastIndexed     int64  `json:"lastIndexed"`
	IsAutomatic     bool   `json:"isAutomatic"`
	IsUnread        bool   `json:"isUnread"`
	IsHidden        bool   `json:"isHidden"`
}

// Role values accepted for a Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a Session.
type Message struct {
	UUID      string `json:"uuid"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
	HasTime   bool   `json:"-"`
}

// HeartbeatState is the persisted watermark for one external work item.
type HeartbeatState struct {
	Key           string `json:"key"`
	LastChanged   string `json:"lastChanged"`
	LastProcessed int64  `json:"lastProcessed"`
}

// ParsedSession is the output of the TranscriptParser: one session plus its
// messages, not yet committed to the Store.
type ParsedSession struct {
	SessionID      string
	Project        string
	StartedAt      int64
	LastActivityAt int64
	Preview        string
	IsAutomatic    bool
	Messages       []Message
}

// SearchHit is one message row returned by Store.SearchMessages, joined with
// its owning session for display.
type SearchHit struct {
	SessionID          string  `json:"sessionId"`
	MessageUUID        string  `json:"messageUuid"`
	Role               string  `json:"role"`
	HighlightedContent string  `json:"highlightedContent"`
	Timestamp          int64   `json:"timestamp,omitempty"`
	Rank               float64 `json:"-"`
	SessionStartedAt   int64   `json:"-"`
	SessionPreview     string  `json:"sessionPreview"`
	SessionProject     string  `json:"sessionProject"`
}

// ListFilter restricts Store.ListRecentSessions.
type ListFilter string

const (
	FilterAll           ListFilter = "all"
	FilterManualOnly    ListFilter = "manualOnly"
	FilterAutomaticOnly ListFilter = "automaticOnly"
)

// SearchSort selects the ordering of Store.SearchMessages.
type SearchSort string

const (
	SortRelevance SearchSort = "relevance"
	SortDate      SearchSort = "date"
)

// Stats is the shape returned by Store.GetStats.
type Stats struct {
	SessionCount int   `json:"sessionCount"`
	MessageCount int   `json:"messageCount"`
	DBSizeBytes  int64 `json:"dbSizeBytes"`
}
