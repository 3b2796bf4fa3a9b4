package presence

import (
	"testing"

	"collabsync/backend/internal/event"
)

func TestUpsertIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Participant{ParticipantID: "u1", DisplayName: "Ada"})
	r.Upsert(Participant{ParticipantID: "u1", DisplayName: "Ada"})
	if r.Len() != 1 {
		t.Fatalf("expected 1 member after duplicate join, got %d", r.Len())
	}
	p, ok := r.Get("u1")
	if !ok {
		t.Fatalf("member u1 missing")
	}
	if p.Status != StatusActive {
		t.Fatalf("expected default status %q, got %q", StatusActive, p.Status)
	}
}

func TestUpsertKeepsKnownFields(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Participant{ParticipantID: "u1", DisplayName: "Ada", Avatar: "a.png", Role: "editor"})
	// re-join events carry no avatar or role
	r.Upsert(Participant{ParticipantID: "u1", DisplayName: "Ada"})
	p, _ := r.Get("u1")
	if p.Avatar != "a.png" || p.Role != "editor" {
		t.Fatalf("rejoin dropped fields: %+v", p)
	}
}

func TestSetStatusOnlyTouchesStatus(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Participant{ParticipantID: "u1", DisplayName: "Ada", Role: "editor"})
	r.SetStatus("u1", StatusTyping)
	p, _ := r.Get("u1")
	if p.Status != StatusTyping {
		t.Fatalf("status not updated: %q", p.Status)
	}
	if p.DisplayName != "Ada" || p.Role != "editor" {
		t.Fatalf("status update replaced record: %+v", p)
	}
	// a typing signal for an unknown participant must not create an entry
	r.SetStatus("ghost", StatusTyping)
	if _, ok := r.Get("ghost"); ok {
		t.Fatalf("status update created a member")
	}
}

func TestSetRole(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Participant{ParticipantID: "u1", Role: "viewer"})
	r.SetRole("u1", "editor")
	p, _ := r.Get("u1")
	if p.Role != "editor" {
		t.Fatalf("role not updated: %q", p.Role)
	}
}

func TestRemoveAndReset(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Participant{ParticipantID: "u1"})
	r.Upsert(Participant{ParticipantID: "u2"})
	r.Remove("u1")
	if _, ok := r.Get("u1"); ok {
		t.Fatalf("u1 still present after leave")
	}
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("expected empty roster after reset, got %d", r.Len())
	}
}

func TestReplaceAll(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Participant{ParticipantID: "stale"})
	r.ReplaceAll([]event.Participant{
		{ParticipantID: "u2", DisplayName: "Grace", Role: "owner"},
		{ParticipantID: "u3", DisplayName: "Linus", Status: "idle"},
	})
	if _, ok := r.Get("stale"); ok {
		t.Fatalf("stale member survived roster replace")
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 members, got %d", len(list))
	}
	if list[0].ParticipantID != "u2" || list[1].ParticipantID != "u3" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[1].Status != StatusIdle {
		t.Fatalf("status not carried: %+v", list[1])
	}
}
