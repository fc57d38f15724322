package approval_test

import (
	"context"
	"testing"

	"github.com/linnemanlabs/argus/internal/approval"
	"github.com/linnemanlabs/argus/internal/approval/memstore"
)

func TestCreateAndLookupPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := approval.NewService(memstore.New(), nil)

	id, err := svc.CreatePending(ctx, "inc_1", "Run runbook restart-web-api.md", "TICK-1", "jira")
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if id == "" {
		t.Fatal("empty request id")
	}

	// by request id
	req, ok, err := svc.Pending(ctx, id, "")
	if err != nil || !ok {
		t.Fatalf("pending by request: ok=%v err=%v", ok, err)
	}
	if req.IncidentID != "inc_1" || req.Status != approval.StatusPending {
		t.Errorf("request = %+v", req)
	}
	if req.ActionType != approval.ActionRunRunbook {
		t.Errorf("action type = %q, want run_runbook", req.ActionType)
	}

	// by incident id
	req, ok, err = svc.Pending(ctx, "", "inc_1")
	if err != nil || !ok {
		t.Fatalf("pending by incident: ok=%v err=%v", ok, err)
	}
	if req.RequestID != id {
		t.Errorf("request id = %q, want %q", req.RequestID, id)
	}

	// unknown lookups
	if _, ok, _ := svc.Pending(ctx, "req_nope", ""); ok {
		t.Error("unknown request id should not resolve")
	}
	if _, ok, _ := svc.Pending(ctx, "", ""); ok {
		t.Error("empty lookup should not resolve")
	}
}

func TestRecordDecisionOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := approval.NewService(memstore.New(), nil)

	id, err := svc.CreatePending(ctx, "inc_2", "Run runbook scale-cache.md", "", "")
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}

	flipped, err := svc.RecordDecision(ctx, id, approval.DecisionApprove)
	if err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if !flipped {
		t.Fatal("first decision should flip the request")
	}

	// a decided request is invisible to pending lookups
	if _, ok, _ := svc.Pending(ctx, id, ""); ok {
		t.Error("decided request still reads as pending")
	}
	if _, ok, _ := svc.Pending(ctx, "", "inc_2"); ok {
		t.Error("decided request still resolves by incident")
	}

	// second decision never flips, regardless of verdict
	flipped, err = svc.RecordDecision(ctx, id, approval.DecisionReject)
	if err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if flipped {
		t.Error("terminal request flipped a second time")
	}
}

func TestRecordDecisionValidation(t *testing.T) {
	t.Parallel()

	svc := approval.NewService(memstore.New(), nil)

	if _, err := svc.RecordDecision(context.Background(), "req_x", approval.Decision("maybe")); err == nil {
		t.Error("invalid decision should error")
	}
	flipped, err := svc.RecordDecision(context.Background(), "req_unknown", approval.DecisionReject)
	if err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if flipped {
		t.Error("unknown request should not flip")
	}
}

func TestDecisionValid(t *testing.T) {
	t.Parallel()

	if !approval.DecisionApprove.Valid() || !approval.DecisionReject.Valid() {
		t.Error("approve and reject are valid decisions")
	}
	if approval.Decision("").Valid() || approval.Decision("ok").Valid() {
		t.Error("unknown decisions must be invalid")
	}
}
