package lib

import "fmt"

// Kind identifies which kind of remote job a handle refers to.
type Kind int

const (
	KindScan Kind = iota
	KindReport
	KindOSAScan
)

// String returns a human readable name for the job kind.
func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindReport:
		return "report"
	case KindOSAScan:
		return "osa scan"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Job is a handle to a remote job returned by a submission call. It is
// consumed by exactly one wait.
type Job struct {
	// ID is the remote identifier: a run id for scans, a report id for
	// reports and a scan id for OSA scans.
	ID   string
	Kind Kind
}

func (j Job) String() string {
	return fmt.Sprintf("%s %s", j.Kind, j.ID)
}
