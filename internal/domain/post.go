package domain

// FeedPost is a wall item as returned by the feed, before any processing.
type FeedPost struct {
	ID     int64
	Date   int64 // unix seconds
	Text   string
	Pinned bool
}

// Post is the stored record of a feed item and its rewritten variants.
type Post struct {
	ID       int64    `json:"id"`
	SourceID int64    `json:"groupId"`
	Date     int64    `json:"date"`
	Original string   `json:"original"`
	Variants []string `json:"rewritten"`
}

// Processed reports whether the post has at least one rewritten variant.
// Records without variants are eligible for (re)processing.
func (p *Post) Processed() bool {
	return len(p.Variants) > 0
}

// Latest returns the most recent variant, or "" if there is none.
func (p *Post) Latest() string {
	if len(p.Variants) == 0 {
		return ""
	}
	return p.Variants[len(p.Variants)-1]
}

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}
