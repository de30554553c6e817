package redis

// Redis key naming conventions for intake data.
// All keys are prefixed with "intake:" to avoid collisions.

const keyPrefix = "intake:"

// ── Submission keys ──

// submissionKey returns the key for a submission record, addressed by its
// idempotency key: intake:submission:{idempotencyKey}
func submissionKey(idemKey string) string { return keyPrefix + "submission:" + idemKey }

// submissionIDKey maps a submission ID to its idempotency key:
// intake:submission_id:{id}
func submissionIDKey(id string) string { return keyPrefix + "submission_id:" + id }

// ── Job keys ──

// jobKey returns the key for a job status record: intake:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }
