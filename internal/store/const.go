package store

// Job lifecycle statuses.
const (
	JobStatusPending   = "Pending"
	JobStatusScheduled = "Scheduled"
	JobStatusRunning   = "Running"
	JobStatusSuccess   = "Success"
	JobStatusFailed    = "Failed"
	JobStatusCancelled = "Cancelled"
	JobStatusMissed    = "Missed"
)

// Job types.
const (
	JobTypeImageCopy      = "IMAGE_COPY"
	JobTypeImageVerify    = "IMAGE_VERIFY"
	JobTypeRemoveInactive = "INSTALL_REMOVE_INACTIVE"
	JobTypeUpgrade        = "UPGRADE"
	JobTypeOnDemand       = "ON_DEMAND"
)

// Image staging statuses on the device record.
const (
	CopyStatusNo  = "No"
	CopyStatusYes = "Yes"

	VerifyStatusNo     = "No"
	VerifyStatusYes    = "Yes"
	VerifyStatusFailed = "Failed"
	VerifyStatusNoHash = "No hash"
)

// Device roles derived from the platform part number.
const (
	RoleSwitch  = "Switch"
	RoleRouter  = "Router"
	RoleUnknown = "Unknown"
)
