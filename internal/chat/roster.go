package chat

import (
	"fmt"
	"slices"
	"strings"
)

type RosterEntry struct {
	Username string
	JoinedAt string
}

// Roster is the local copy of who is online. It only changes through Replace;
// join and leave notifications turn into timeline messages instead.
type Roster struct {
	entries []RosterEntry
}

func NewRoster() *Roster {
	return &Roster{}
}

// Replace swaps in a full snapshot from the server.
func (r *Roster) Replace(entries []RosterEntry) {
	next := slices.Clone(entries)
	slices.SortStableFunc(next, func(a, b RosterEntry) int {
		if c := strings.Compare(strings.ToLower(a.Username), strings.ToLower(b.Username)); c != 0 {
			return c
		}
		return strings.Compare(a.Username, b.Username)
	})
	r.entries = next
}

// Entries returns the roster in display order.
func (r *Roster) Entries() []RosterEntry {
	return slices.Clone(r.entries)
}

func (r *Roster) Count() int {
	return len(r.entries)
}

// Duplicates lists usernames that appear more than once in the current snapshot.
func (r *Roster) Duplicates() []string {
	var dups []string
	for i := 1; i < len(r.entries); i++ {
		if r.entries[i].Username == r.entries[i-1].Username && !slices.Contains(dups, r.entries[i].Username) {
			dups = append(dups, r.entries[i].Username)
		}
	}
	return dups
}

func (r *Roster) Reset() {
	r.entries = nil
}

// NoteJoined builds the system message for a join notification.
func (r *Roster) NoteJoined(username, ts string) Message {
	return systemMessage(fmt.Sprintf("%s joined the chat", username), ts)
}

// NoteLeft builds the system message for a leave notification.
func (r *Roster) NoteLeft(username, ts string) Message {
	return systemMessage(fmt.Sprintf("%s left the chat", username), ts)
}
