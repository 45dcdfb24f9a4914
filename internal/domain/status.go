package domain

import "strings"

// Status is the client's normalized view of a transaction's settlement state
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is expected
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TransactionStatus is one observation of a transaction's status
type TransactionStatus struct {
	TransactionID string
	Status        Status
	FailureReason string // Only meaningful when Status is failed
}

// NormalizeStatus maps a raw backend status string onto the fixed status set.
// Unknown values are treated as pending.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "success", "successful":
		return StatusCompleted
	case "failed", "failure", "cancelled":
		return StatusFailed
	case "processing", "initiated":
		return StatusProcessing
	default:
		return StatusPending
	}
}

// MergeStatus combines the locally known status with a remote observation.
// A terminal local status is only replaced by a terminal remote one, so a stale
// non-terminal fetch can never clobber a failure the client already knows about.
func MergeStatus(local, remote TransactionStatus) TransactionStatus {
	if local.Status.IsTerminal() && !remote.Status.IsTerminal() {
		return local
	}
	if remote.TransactionID == "" {
		remote.TransactionID = local.TransactionID
	}
	if remote.Status != StatusFailed {
		remote.FailureReason = ""
	}
	return remote
}
