package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionSubmissionCreated      = "submission.created"
	ActionSubmissionDeduplicated = "submission.deduplicated"
	ActionStepFailed             = "step.failed"
	ActionJobRetrying            = "job.retrying"
	ActionJobCompleted           = "job.completed"
	ActionJobFailed              = "job.failed"
)

// Audit event categories group related actions.
const (
	CategorySubmission = "intake.submission"
	CategoryJob        = "intake.job"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceSubmission = "submission"
	ResourceJob        = "job"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionSubmissionCreated,
		ActionSubmissionDeduplicated,
		ActionStepFailed,
		ActionJobRetrying,
		ActionJobCompleted,
		ActionJobFailed,
	}
}
