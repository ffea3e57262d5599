package workflow

import (
	"context"

	"github.com/garyjia/p2p-approval/internal/domain/entity"
	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
)

// Facts are the ledger and validation results the guards read. The engine
// fills them in before firing.
type Facts struct {
	Level1Approved   bool
	Level2Approved   bool
	ReceiptValidated bool
}

// BuildRequestStateMachine creates a state machine configured for the purchase request lifecycle
func BuildRequestStateMachine(initialState domainwf.State, facts *Facts) domainwf.StateMachine {
	level1Approved := func(ctx context.Context) bool { return facts.Level1Approved }
	bothApproved := func(ctx context.Context) bool { return facts.Level1Approved && facts.Level2Approved }
	receiptValidated := func(ctx context.Context) bool { return facts.ReceiptValidated }

	builder := domainwf.NewBuilder()

	// Level 2 edges exist from PENDING so that deciding early is a failed
	// precondition rather than an illegal transition.
	builder.Configure(domainwf.StatePending).
		PermitRole(domainwf.RoleManager1, domainwf.TriggerApprove, domainwf.StateLevel1Approved).
		PermitRole(domainwf.RoleManager1, domainwf.TriggerReject, domainwf.StateRejected).
		PermitRoleIf(domainwf.RoleManager2, domainwf.TriggerApprove, domainwf.StateLevel2Approved, level1Approved).
		PermitRoleIf(domainwf.RoleManager2, domainwf.TriggerReject, domainwf.StateRejected, level1Approved)

	builder.Configure(domainwf.StateLevel1Approved).
		PermitRoleIf(domainwf.RoleManager2, domainwf.TriggerApprove, domainwf.StateLevel2Approved, level1Approved).
		PermitRoleIf(domainwf.RoleManager2, domainwf.TriggerReject, domainwf.StateRejected, level1Approved)

	builder.Configure(domainwf.StateLevel2Approved).
		PermitRoleIf(domainwf.RoleFinance, domainwf.TriggerFinanceApprove, domainwf.StateFinanceApproved, bothApproved)

	builder.Configure(domainwf.StateFinanceApproved).
		PermitRoleIf(domainwf.RoleStaff, domainwf.TriggerSubmitReceipt, domainwf.StateReceiptValidated, receiptValidated).
		PermitRole(domainwf.RoleStaff, domainwf.TriggerSubmitReceipt, domainwf.StateReceiptDiscrepant)

	builder.Configure(domainwf.StateReceiptDiscrepant).
		PermitRoleIf(domainwf.RoleStaff, domainwf.TriggerSubmitReceipt, domainwf.StateReceiptValidated, receiptValidated).
		PermitRole(domainwf.RoleStaff, domainwf.TriggerSubmitReceipt, domainwf.StateReceiptDiscrepant)

	// REJECTED and RECEIPT_VALIDATED are terminal states - no outgoing transitions

	return builder.Build(initialState)
}

// awaitingManagers reports whether a manager decision is still outstanding
func awaitingManagers(state domainwf.State) bool {
	return state == domainwf.StatePending || state == domainwf.StateLevel1Approved
}

// statusFor projects a workflow state onto the coarse request status
func statusFor(state domainwf.State) entity.RequestStatus {
	switch state {
	case domainwf.StateRejected:
		return entity.RequestStatusRejected
	case domainwf.StateFinanceApproved, domainwf.StateReceiptValidated, domainwf.StateReceiptDiscrepant:
		return entity.RequestStatusApproved
	default:
		return entity.RequestStatusPending
	}
}
