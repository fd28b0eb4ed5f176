package upgrademgr

import "github.com/iosxe-tools/upgrademgr/internal/store"

// Shared job lifecycle statuses. These are re-exported from the internal
// store so callers can depend on the root upgrademgr package only.
const (
	StatusPending   = store.JobStatusPending
	StatusScheduled = store.JobStatusScheduled
	StatusRunning   = store.JobStatusRunning
	StatusSuccess   = store.JobStatusSuccess
	StatusFailed    = store.JobStatusFailed
	StatusCancelled = store.JobStatusCancelled
	// StatusMissed marks a scheduled job whose window passed while the
	// scheduler was down for more than the staleness limit.
	StatusMissed = store.JobStatusMissed
)

// Shared job types.
const (
	JobImageCopy      = store.JobTypeImageCopy
	JobImageVerify    = store.JobTypeImageVerify
	JobRemoveInactive = store.JobTypeRemoveInactive
	JobUpgrade        = store.JobTypeUpgrade
	JobOnDemand       = store.JobTypeOnDemand
)

// Shared device roles and staging states.
const (
	RoleSwitch  = store.RoleSwitch
	RoleRouter  = store.RoleRouter
	RoleUnknown = store.RoleUnknown

	CopyStatusNo  = store.CopyStatusNo
	CopyStatusYes = store.CopyStatusYes

	VerifyStatusNo     = store.VerifyStatusNo
	VerifyStatusYes    = store.VerifyStatusYes
	VerifyStatusFailed = store.VerifyStatusFailed
	// VerifyStatusNoHash marks a hash check that could not run because the
	// repository carries no digest for the image.
	VerifyStatusNoHash = store.VerifyStatusNoHash
)

// Precheck grades.
const (
	CheckPass  = "PASS"
	CheckWarn  = "WARN"
	CheckFail  = "FAIL"
	CheckError = "ERROR"
)
