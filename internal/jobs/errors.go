package jobs

import "github.com/joseph-ayodele/tools-tracker/internal/common"

var (
	ErrOrderNotFound         = common.NewAppError("ORDER_NOT_FOUND", "order not found", common.ErrNotFound)
	ErrReturnWithoutIssuance = common.NewAppError("RETURN_WITHOUT_ISSUANCE", "a return requires a prior issuance for the order", common.ErrPrecondition)
	ErrAccountingLimit       = common.NewAppError("ACCOUNTING_LIMIT", "the order already has an issuance and a return", common.ErrPrecondition)
	ErrDuplicateIssuance     = common.NewAppError("DUPLICATE_ISSUANCE", "the order already has an issuance", common.ErrPrecondition)
	ErrUnknownActionKind     = common.NewAppError("UNKNOWN_ACTION_KIND", "action kind must be ISSUANCE or RETURN", common.ErrValidation)
	ErrTestJobWithoutOrder   = common.NewAppError("TEST_JOB_WITHOUT_ORDER", "test job has no order to compare against", common.ErrPrecondition)
	ErrUnknownStatus         = common.NewAppError("UNKNOWN_STATUS", "unknown job status", common.ErrValidation)

	// ErrNoLinkedOrder marks a job without an accounting link. Every non-test job is created
	// with one, so this is a data-integrity defect.
	ErrNoLinkedOrder = common.NewAppError("NO_LINKED_ORDER", "job has no linked order", common.ErrIntegrity)
)
