package model

import "time"

// MaxNewsBodyLen is the §3 NewsItem body length ceiling.
const MaxNewsBodyLen = 4096

// MaxNewsImageBytes is the §3 NewsItem decoded image size ceiling (~700 KB).
const MaxNewsImageBytes = 700 * 1024

// NewsItem is a persisted news/bulletin entry (§3 NewsItem).
type NewsItem struct {
	ID              int64
	Body            string
	Image           string // data URI, PNG/WebP/JPEG/SVG
	Author          string
	AuthorIsAdmin   bool // author_is_admin at creation time; immutable afterward
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanModify reports whether an actor (username, isAdmin) may edit or delete
// this item per §3's ownership invariant.
func (n *NewsItem) CanModify(actorUsername string, actorIsAdmin bool) bool {
	if actorIsAdmin {
		return true
	}
	if n.AuthorIsAdmin {
		return false
	}
	return CanonicalUsername(n.Author) == CanonicalUsername(actorUsername)
}
