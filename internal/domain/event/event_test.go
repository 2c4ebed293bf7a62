package event

import (
	"testing"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"submitted", TypeExpenseSubmitted, true},
		{"step advanced", TypeStepAdvanced, true},
		{"approved", TypeExpenseApproved, true},
		{"rejected", TypeExpenseRejected, true},
		{"overridden", TypeExpenseOverridden, true},
		{"unknown", Type("expense.deleted"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllTypes_AreValid(t *testing.T) {
	for _, typ := range AllTypes {
		if !typ.IsValid() {
			t.Errorf("AllTypes contains invalid type %q", typ)
		}
	}
}

func TestNewTransition(t *testing.T) {
	evt := NewTransition(TypeExpenseApproved, "exp-1", "PendingApproval", "Approved", "mgr-1", 2)

	if evt.ID == "" {
		t.Error("expected generated ID")
	}
	if evt.CorrelationID != evt.ID {
		t.Errorf("CorrelationID = %v, want %v", evt.CorrelationID, evt.ID)
	}
	if evt.ExpenseID != "exp-1" || evt.FromState != "PendingApproval" || evt.ToState != "Approved" {
		t.Errorf("unexpected transition fields: %+v", evt)
	}
	if evt.Actor != "mgr-1" || evt.Step != 2 {
		t.Errorf("unexpected actor/step: %v/%v", evt.Actor, evt.Step)
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestNewTransition_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		evt := NewTransition(TypeExpenseSubmitted, "exp-1", "Draft", "PendingApproval", "emp-1", 1)
		if seen[evt.ID] {
			t.Fatalf("duplicate event ID %s", evt.ID)
		}
		seen[evt.ID] = true
	}
}

func TestEvent_WithPayload_IsImmutable(t *testing.T) {
	original := NewTransition(TypeExpenseRejected, "exp-1", "PendingApproval", "Rejected", "mgr-1", 1)
	withComment := original.WithPayload("comment", "missing receipt")

	if original.GetPayload("comment") != "" {
		t.Error("original event must not be modified")
	}
	if got := withComment.GetPayload("comment"); got != "missing receipt" {
		t.Errorf("GetPayload() = %v, want %v", got, "missing receipt")
	}
	if withComment.ID != original.ID {
		t.Error("WithPayload must keep the event ID")
	}
}

func TestEvent_WithCorrelation(t *testing.T) {
	first := NewTransition(TypeStepAdvanced, "exp-1", "PendingApproval", "PendingApproval", "mgr-1", 2)
	second := NewTransition(TypeExpenseApproved, "exp-1", "PendingApproval", "Approved", "mgr-2", 2).
		WithCorrelation(first.CorrelationID)

	if second.CorrelationID != first.CorrelationID {
		t.Errorf("CorrelationID = %v, want %v", second.CorrelationID, first.CorrelationID)
	}
	if second.ID == first.ID {
		t.Error("correlated events keep distinct IDs")
	}
}

func TestEvent_Summary(t *testing.T) {
	tests := []struct {
		evt  *Event
		want string
	}{
		{NewTransition(TypeExpenseSubmitted, "e1", "Draft", "PendingApproval", "emp", 1), "Expense e1 submitted by emp, awaiting step 1"},
		{NewTransition(TypeStepAdvanced, "e1", "PendingApproval", "PendingApproval", "mgr", 2), "Expense e1 approved by mgr, moved to step 2"},
		{NewTransition(TypeExpenseRejected, "e1", "PendingApproval", "Rejected", "mgr", 1), "Expense e1 rejected by mgr"},
		{NewTransition(TypeExpenseOverridden, "e1", "Draft", "Approved", "admin", -1), "Expense e1 forced to Approved by admin admin"},
	}

	for _, tt := range tests {
		if got := tt.evt.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}
