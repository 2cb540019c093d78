package order

import (
	"errors"
	"testing"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusDraft, StatusPending},
		{StatusDraft, StatusCancelled},
		{StatusPending, StatusPaid},
		{StatusPending, StatusCancelled},
		{StatusPaid, StatusUsing},
		{StatusPaid, StatusCancelled},
		{StatusPaid, StatusRefunded},
		{StatusUsing, StatusCompleted},
		{StatusUsing, StatusRefunded},
		{StatusCompleted, StatusRefunded},
	}

	for _, e := range legal {
		if !CanTransition(e.from, e.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", e.from, e.to)
		}
	}
}

func TestCanTransition_IllegalEdges(t *testing.T) {
	all := []Status{
		StatusDraft, StatusPending, StatusPaid, StatusUsing,
		StatusCompleted, StatusCancelled, StatusRefunded,
	}

	legal := map[Status]map[Status]bool{
		StatusDraft:     {StatusPending: true, StatusCancelled: true},
		StatusPending:   {StatusPaid: true, StatusCancelled: true},
		StatusPaid:      {StatusUsing: true, StatusCancelled: true, StatusRefunded: true},
		StatusUsing:     {StatusCompleted: true, StatusRefunded: true},
		StatusCompleted: {StatusRefunded: true},
	}

	// Every pair not in the legal map must be rejected, including self-loops
	// and anything out of a terminal state.
	for _, from := range all {
		for _, to := range all {
			want := legal[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusCancelled) || !IsTerminal(StatusRefunded) {
		t.Error("cancelled and refunded must be terminal")
	}
	for _, s := range []Status{StatusDraft, StatusPending, StatusPaid, StatusUsing, StatusCompleted} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestOrder_TransitionRejectsIllegalAndPreservesState(t *testing.T) {
	o := &Order{OrderNo: "ORD-1", Status: StatusPaid}

	err := o.Transition(StatusCompleted) // paid → completed skips using
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if o.Status != StatusPaid {
		t.Errorf("Status = %q after rejected transition, want paid", o.Status)
	}

	if err := o.Transition(StatusUsing); err != nil {
		t.Fatalf("legal transition error = %v", err)
	}
	if o.Status != StatusUsing {
		t.Errorf("Status = %q, want using", o.Status)
	}
}
