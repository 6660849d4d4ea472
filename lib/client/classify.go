package client

import (
	"fmt"

	"github.com/thompsy/go-cx-client/lib/poll"
	"github.com/thompsy/go-cx-client/lib/rest"
	"github.com/thompsy/go-cx-client/lib/sdk"
)

// ScanClassifier classifies code scan statuses.
type ScanClassifier struct{}

// Classify treats Finished as success and Failed, Canceled, Deleted and
// Unknown as failure, with the stage message as reason.
func (ScanClassifier) Classify(s sdk.ScanStatus) poll.Verdict {
	v := poll.Verdict{Status: s.CurrentStatus.String()}
	switch s.CurrentStatus {
	case sdk.StatusFinished:
		v.Class = poll.Succeeded
	case sdk.StatusFailed, sdk.StatusCanceled, sdk.StatusDeleted, sdk.StatusUnknown:
		v.Class = poll.Failed
		v.Reason = s.StageMessage
		if v.Reason == "" {
			v.Reason = s.StepDetails
		}
	default:
		v.Class = poll.Pending
	}
	return v
}

// ReportClassifier classifies report generation statuses. A report flagged
// both failed and ready is failed.
type ReportClassifier struct{}

// Classify checks the failed flag before the ready flag.
func (ReportClassifier) Classify(s sdk.ReportStatus) poll.Verdict {
	switch {
	case s.IsFailed:
		return poll.Verdict{Class: poll.Failed, Status: "Failed", Reason: s.ErrorMessage}
	case s.IsReady:
		return poll.Verdict{Class: poll.Succeeded, Status: "Ready"}
	default:
		return poll.Verdict{Class: poll.Pending, Status: "InProgress"}
	}
}

// OSAClassifier classifies OSA scan statuses by their state id.
type OSAClassifier struct{}

// Classify maps the Succeeded and Failed state ids to terminal classes.
func (OSAClassifier) Classify(s rest.OSAScanStatus) poll.Verdict {
	v := poll.Verdict{Status: s.State.Name}
	if v.Status == "" {
		v.Status = fmt.Sprintf("state %d", s.State.ID)
	}
	switch s.State.ID {
	case rest.StateSucceeded:
		v.Class = poll.Succeeded
	case rest.StateFailed:
		v.Class = poll.Failed
		v.Reason = s.State.FailureReason
	default:
		v.Class = poll.Pending
	}
	return v
}
