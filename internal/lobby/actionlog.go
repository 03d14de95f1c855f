package lobby

import "time"

const (
	// logCap bounds the in-memory action log per lobby.
	logCap = 200
	// WireLogTail is how many entries state snapshots carry.
	WireLogTail = 30
)

// LogEntry records one game action for the in-memory action log.
type LogEntry struct {
	Type     string    `json:"type"`
	PlayerID string    `json:"playerId,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// ActionLog is a bounded append-only log of game actions.
type ActionLog struct {
	entries []LogEntry
}

// Append adds an entry, discarding the oldest past the cap.
func (al *ActionLog) Append(entryType, playerID, detail string) {
	al.entries = append(al.entries, LogEntry{
		Type:     entryType,
		PlayerID: playerID,
		Detail:   detail,
		At:       time.Now(),
	})
	if len(al.entries) > logCap {
		al.entries = al.entries[len(al.entries)-logCap:]
	}
}

// Tail returns up to n most recent entries.
func (al *ActionLog) Tail(n int) []LogEntry {
	if n >= len(al.entries) {
		out := make([]LogEntry, len(al.entries))
		copy(out, al.entries)
		return out
	}
	out := make([]LogEntry, n)
	copy(out, al.entries[len(al.entries)-n:])
	return out
}

// Len returns the number of retained entries.
func (al *ActionLog) Len() int {
	return len(al.entries)
}
