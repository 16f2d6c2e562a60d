package types

import (
	"strings"
	"time"
)

// AdminUser is the reserved author name for system notifications
// (joins, departures). Clients render it distinctly from real users.
const AdminUser = "Admin"

// Session is a connection's current (name, room) registration.
// A repeated join with the same normalized identity returns the existing
// session; only ConnID ever changes, when the identity reappears on a new
// connection and the session is rebound to it.
type Session struct {
	ConnID   string    `json:"conn_id"`
	Name     string    `json:"name"`
	Room     string    `json:"room"`
	JoinedAt time.Time `json:"joined_at"`

	// Seq is assigned by the registry and preserves insertion order
	// for room membership listings.
	Seq uint64 `json:"-"`
}

// ChatEvent is one persisted message or system notification.
// Records are append-only; nothing in the relay updates or deletes them.
type ChatEvent struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Room      string    `json:"room"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Normalize canonicalizes a name or room value for comparison:
// surrounding whitespace stripped, lowercased. Display names keep their
// original casing; room values are used in normalized form everywhere.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
