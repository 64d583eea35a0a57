package persistence

import (
	"context"
	"fmt"
	"testing"
)

func addN(t *testing.T, s *Store, session string, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.AddMessage(context.Background(), session, "user", fmt.Sprintf("message %d", i), 10)
		if err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestAddMessageRejectsBadRole(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	if _, err := s.AddMessage(context.Background(), session, "narrator", "x", 1); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestLoadRecentMessagesOrderAndBound(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	addN(t, s, session, 8)

	got, err := s.LoadRecentMessages(context.Background(), session, 5)
	if err != nil {
		t.Fatalf("LoadRecentMessages: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// Newest 5 of 8, oldest first: messages 3..7.
	if got[0].Content != "message 3" || got[4].Content != "message 7" {
		t.Fatalf("window = [%s .. %s]", got[0].Content, got[4].Content)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatal("messages not in ascending id order")
		}
	}
}

func TestMessageIDRange(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)

	minID, maxID, err := s.MessageIDRange(context.Background(), session)
	if err != nil || minID != 0 || maxID != 0 {
		t.Fatalf("empty range = (%d,%d,%v), want (0,0,nil)", minID, maxID, err)
	}

	ids := addN(t, s, session, 3)
	minID, maxID, err = s.MessageIDRange(context.Background(), session)
	if err != nil {
		t.Fatalf("MessageIDRange: %v", err)
	}
	if minID != ids[0] || maxID != ids[2] {
		t.Fatalf("range = (%d,%d), want (%d,%d)", minID, maxID, ids[0], ids[2])
	}
}

func TestCutoffIDForRecent(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	ids := addN(t, s, session, 50)

	cutoff, ok, err := s.CutoffIDForRecent(context.Background(), session, 10)
	if err != nil {
		t.Fatalf("CutoffIDForRecent: %v", err)
	}
	if !ok {
		t.Fatal("expected a valid cutoff")
	}
	// Exactly 10 messages must have a larger id.
	if cutoff != ids[39] {
		t.Fatalf("cutoff = %d, want %d", cutoff, ids[39])
	}
	recent, err := s.LoadMessagesBetween(context.Background(), session, cutoff+1, ids[49])
	if err != nil {
		t.Fatalf("LoadMessagesBetween: %v", err)
	}
	if len(recent) != 10 {
		t.Fatalf("trailing count = %d, want 10", len(recent))
	}
}

func TestCutoffIDForRecentHandlesGaps(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	ids := addN(t, s, session, 20)

	// Archive the first 12, leaving 8 active messages with a gap below.
	if err := s.ArchiveMessages(context.Background(), session, ids[11]); err != nil {
		t.Fatalf("ArchiveMessages: %v", err)
	}

	cutoff, ok, err := s.CutoffIDForRecent(context.Background(), session, 5)
	if err != nil {
		t.Fatalf("CutoffIDForRecent: %v", err)
	}
	if !ok {
		t.Fatal("expected a valid cutoff among remaining 8")
	}
	if cutoff != ids[14] {
		t.Fatalf("cutoff = %d, want %d", cutoff, ids[14])
	}
}

func TestCutoffIDForRecentInsufficientHistory(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	addN(t, s, session, 4)

	_, ok, err := s.CutoffIDForRecent(context.Background(), session, 10)
	if err != nil {
		t.Fatalf("CutoffIDForRecent: %v", err)
	}
	if ok {
		t.Fatal("expected no cutoff when history is shorter than keep count")
	}
}

func TestArchiveMessagesExcludesFromLoads(t *testing.T) {
	s := newTestStore(t)
	session := newTestSession(t, s)
	ids := addN(t, s, session, 6)

	if err := s.ArchiveMessages(context.Background(), session, ids[3]); err != nil {
		t.Fatalf("ArchiveMessages: %v", err)
	}
	n, err := s.CountMessages(context.Background(), session)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if n != 2 {
		t.Fatalf("active count = %d, want 2", n)
	}
	got, err := s.LoadRecentMessages(context.Background(), session, 100)
	if err != nil {
		t.Fatalf("LoadRecentMessages: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[4] {
		t.Fatalf("unexpected active window: %+v", got)
	}
}
