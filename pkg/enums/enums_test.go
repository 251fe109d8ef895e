package enums

import "testing"

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusCanceled} {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunStatusPending, RunStatusInProgress} {
		if s.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestParseRunStatus(t *testing.T) {
	got, err := ParseRunStatus("in_progress")
	if err != nil || got != RunStatusInProgress {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseRunStatus("paused"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestActorRoleCanDispatch(t *testing.T) {
	if ActorRoleRunner.CanDispatch() {
		t.Fatal("runner must not dispatch")
	}
	for _, r := range []ActorRole{ActorRoleDispatcher, ActorRoleAdmin, ActorRoleSystem} {
		if !r.CanDispatch() {
			t.Fatalf("expected %s to dispatch", r)
		}
	}
	if _, err := ParseActorRole("owner"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}

func TestOutboxEnumsValidate(t *testing.T) {
	if !EventRequestUnbound.IsValid() || OutboxEventType("order_created").IsValid() {
		t.Fatal("unexpected event type validation")
	}
	if _, err := ParseOutboxAggregateType("run_instance"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ScheduleTypeFixed.IsValid() || ScheduleType("weekly").IsValid() {
		t.Fatal("unexpected schedule type validation")
	}
}

func TestParseScheduleType(t *testing.T) {
	got, err := ParseScheduleType("on_demand")
	if err != nil || got != ScheduleTypeOnDemand {
		t.Fatalf("expected on_demand got %q err %v", got, err)
	}
	if _, err := ParseScheduleType("weekly"); err == nil {
		t.Fatal("expected error for unknown schedule type")
	}
}
