package constants

import "strings"

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPreprocessing         JobStatus = "PREPROCESSING"           // initial, set at creation
	JobStatusPreprocessDone        JobStatus = "PREPROCESS_DONE"         // recognition round completed
	JobStatusFinished              JobStatus = "FINISHED"                // merged tools equal the order
	JobStatusManualMappingRequired JobStatus = "MANUAL_MAPPING_REQUIRED" // merged tools differ from the order
	JobStatusFailed                JobStatus = "FAILED"                  // terminal failure
	JobStatusTest                  JobStatus = "TEST"                    // exploratory run, never overwritten
)

var allStatuses = []JobStatus{
	JobStatusPreprocessing,
	JobStatusPreprocessDone,
	JobStatusFinished,
	JobStatusManualMappingRequired,
	JobStatusFailed,
	JobStatusTest,
}

// ParseJobStatus accepts the stored form case-insensitively.
func ParseJobStatus(s string) (JobStatus, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for _, st := range allStatuses {
		if normalized == string(st) {
			return st, true
		}
	}
	return "", false
}

func (s JobStatus) Valid() bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}
