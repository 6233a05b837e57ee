package domain

// Source is a monitored wall together with its display metadata.
type Source struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ScreenName string `json:"screenName"`
	Type       string `json:"type"`
	IsClosed   bool   `json:"isClosed"`
	Photo      string `json:"photo"`
}

type CursorState struct {
	WatermarkDate int64 `json:"lastCheckedDate"`
	PageOffset    int   `json:"offset"`
	// PendingDate is the newest post date reached by a sweep that was
	// interrupted before it concluded. Zero when no sweep is in progress.
	PendingDate int64 `json:"pendingDate,omitempty"`
	// RetryDate is the oldest date of a post that failed to rewrite during
	// the interrupted sweep. Zero when none failed.
	RetryDate int64 `json:"retryDate,omitempty"`
}
