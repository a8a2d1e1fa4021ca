package chat

import (
	"slices"
	"testing"
)

func names(entries []RosterEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Username)
	}
	return out
}

func TestRosterReplaceSortsAndCounts(t *testing.T) {
	r := NewRoster()
	r.Replace([]RosterEntry{{Username: "B"}, {Username: "A"}})

	if r.Count() != 2 {
		t.Fatalf("count %d, want 2", r.Count())
	}
	if got := names(r.Entries()); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("order %v, want [A B]", got)
	}
}

func TestRosterCaseInsensitiveOrder(t *testing.T) {
	r := NewRoster()
	r.Replace([]RosterEntry{{Username: "bob"}, {Username: "alice"}, {Username: "Alice"}})

	if got := names(r.Entries()); !slices.Equal(got, []string{"Alice", "alice", "bob"}) {
		t.Fatalf("order %v", got)
	}
}

func TestRosterKeepsDuplicateSnapshotLength(t *testing.T) {
	r := NewRoster()
	r.Replace([]RosterEntry{{Username: "A"}, {Username: "B"}, {Username: "A"}})

	if r.Count() != 3 {
		t.Fatalf("count %d, want snapshot length 3", r.Count())
	}
	if dups := r.Duplicates(); !slices.Equal(dups, []string{"A"}) {
		t.Fatalf("duplicates %v", dups)
	}
}

func TestRosterNotesDoNotChangeMembership(t *testing.T) {
	r := NewRoster()
	r.Replace([]RosterEntry{{Username: "A"}})

	msg := r.NoteJoined("B", "10:00 AM")
	if msg.Kind != KindSystem || msg.Body != "B joined the chat" {
		t.Fatalf("unexpected note %+v", msg)
	}
	r.NoteLeft("A", "10:01 AM")
	if r.Count() != 1 {
		t.Fatalf("notes mutated roster: %d", r.Count())
	}
}

func TestRosterReplaceCopiesInput(t *testing.T) {
	in := []RosterEntry{{Username: "B"}, {Username: "A"}}
	r := NewRoster()
	r.Replace(in)
	if in[0].Username != "B" {
		t.Fatalf("caller slice was reordered")
	}
}
