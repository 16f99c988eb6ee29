package services_test

import (
	"errors"
	"testing"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
)

func TestCreateDelegationSingleHop(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)

	x := seedParticipant(t, poll.ID, 10)
	y := seedParticipant(t, poll.ID, 11)
	z := seedParticipant(t, poll.ID, 12)

	// X -> Y is fine.
	if _, err := services.CreateDelegation(database.C, poll, x, 11); err != nil {
		t.Fatalf("delegate x -> y: %v", err)
	}

	// Z -> X must fail: X already delegated away, so accepting inbound weight
	// would form a two-hop chain.
	if _, err := services.CreateDelegation(database.C, poll, z, 10); !errors.Is(err, services.ErrDelegateAlreadyDelegated) {
		t.Errorf("delegate z -> x error = %v, want ErrDelegateAlreadyDelegated", err)
	}

	// Y -> Z must fail for the same reason in the other direction: Y holds
	// X's weight, and delegating onward would carry it a second hop.
	if _, err := services.CreateDelegation(database.C, poll, y, 12); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("delegate y -> z error = %v, want ErrInvalidRequest", err)
	}

	// X cannot delegate twice while the first edge is live.
	if _, err := services.CreateDelegation(database.C, poll, x, 12); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("second delegation error = %v, want ErrInvalidRequest", err)
	}

	x, err := services.GetParticipant(database.C, poll.ID, 10)
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if x.Status != models.ParticipantStatusDelegated {
		t.Errorf("delegator status = %s, want %s", x.Status, models.ParticipantStatusDelegated)
	}

	// Once X revokes, Y no longer holds delegated weight and may delegate.
	if _, err := services.RevokeDelegation(database.C, poll, x); err != nil {
		t.Fatalf("revoke x -> y: %v", err)
	}
	if _, err := services.CreateDelegation(database.C, poll, y, 12); err != nil {
		t.Errorf("delegate y -> z after revoke: %v", err)
	}
}

func TestCreateDelegationToSelf(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)
	participant := seedParticipant(t, poll.ID, 10)

	if _, err := services.CreateDelegation(database.C, poll, participant, 10); !errors.Is(err, services.ErrSelfDelegation) {
		t.Errorf("self delegation error = %v, want ErrSelfDelegation", err)
	}
}

func TestCreateDelegationWithoutPermission(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)
	participant := seedParticipant(t, poll.ID, 10)
	seedParticipant(t, poll.ID, 11)

	participant.CanDelegate = false
	if _, err := services.CreateDelegation(database.C, poll, participant, 11); !errors.Is(err, services.ErrNotAllowed) {
		t.Errorf("delegation without permission error = %v, want ErrNotAllowed", err)
	}
}

func TestRevokeDelegation(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)
	x := seedParticipant(t, poll.ID, 10)
	seedParticipant(t, poll.ID, 11)

	if _, err := services.CreateDelegation(database.C, poll, x, 11); err != nil {
		t.Fatalf("create delegation: %v", err)
	}

	revoked, err := services.RevokeDelegation(database.C, poll, x)
	if err != nil {
		t.Fatalf("revoke delegation: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Error("revoked edge should carry a revocation timestamp")
	}

	live, err := services.ListLiveDelegations(database.C, poll.ID)
	if err != nil {
		t.Fatalf("list live delegations: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("live delegations = %d, want 0", len(live))
	}

	// The row stays for the audit trail; only its liveness changes.
	var total int64
	if err := database.C.Model(&models.Delegation{}).Where("poll_id = ?", poll.ID).Count(&total).Error; err != nil {
		t.Fatalf("count delegations: %v", err)
	}
	if total != 1 {
		t.Errorf("stored delegations = %d, want 1", total)
	}

	// After revocation the delegator may delegate again.
	if _, err := services.CreateDelegation(database.C, poll, x, 11); err != nil {
		t.Errorf("re-delegate after revoke: %v", err)
	}

	got := auditActions(t, poll.ID)
	want := []models.AuditAction{
		models.AuditDelegationCreated,
		models.AuditDelegationRevoked,
		models.AuditDelegationCreated,
	}
	if len(got) != len(want) {
		t.Fatalf("audit trail = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit trail = %v, want %v", got, want)
		}
	}
}

func TestRevokeDelegationWithoutEdge(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)
	participant := seedParticipant(t, poll.ID, 10)

	if _, err := services.RevokeDelegation(database.C, poll, participant); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("revoke without edge error = %v, want ErrInvalidRequest", err)
	}
}
