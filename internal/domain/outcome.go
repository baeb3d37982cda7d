package domain

// OutcomeStatus is the terminal state of processing one notification
type OutcomeStatus string

const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome reasons beyond the policy decision reasons
const (
	ReasonMissingURL      = "missing_url"
	ReasonDownloadFailed  = "download_failed"
	ReasonTransformFailed = "transform_failed"
	ReasonUploadFailed    = "upload_failed"
)

// Outcome describes how a notification was handled. Err is set only for
// OutcomeFailed and is never propagated to the trigger.
type Outcome struct {
	Status OutcomeStatus
	Reason string
	Input  Location
	Output Location
	Err    error
}
