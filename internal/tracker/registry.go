package tracker

import (
	"fmt"

	"github.com/caseflow/caseflow/internal/store"
)

// Supported adapter kinds
const (
	KindBugzilla = "bugzilla"
	KindJIRA     = "jira"
	KindGitHub   = "github"
	KindGitLab   = "gitlab"
	KindRedmine  = "redmine"
	KindLinkOnly = "linkonly"
)

// New returns the adapter matching the tracker's kind.
// Unknown kinds are an error so that misconfigured trackers surface early.
func New(tracker *store.Tracker, opts Options) (Adapter, error) {
	b := base{tracker: tracker, opts: opts}

	switch tracker.Kind {
	case KindBugzilla:
		return &Bugzilla{base: b}, nil
	case KindJIRA:
		return &JIRA{base: b}, nil
	case KindGitHub:
		return &GitHub{base: b}, nil
	case KindGitLab:
		return &GitLab{base: b}, nil
	case KindRedmine:
		return &Redmine{base: b}, nil
	case KindLinkOnly:
		return &LinkOnly{base: b}, nil
	default:
		return nil, fmt.Errorf("issue tracker of kind %q is not supported", tracker.Kind)
	}
}
