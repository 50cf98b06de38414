package tracker

import (
	"context"
	"fmt"

	"github.com/caseflow/caseflow/internal/store"
)

// LinkOnly allows only linking issues to test-execution records. It is the
// fallback for issue trackers Caseflow is not integrated with; no API
// integration is available.
type LinkOnly struct {
	base
}

// Name returns the adapter kind
func (t *LinkOnly) Name() string { return KindLinkOnly }

// LinkCommentDisabled is always true; there is nothing to post to
func (t *LinkOnly) LinkCommentDisabled() bool { return true }

// ReportURL is unsupported
func (t *LinkOnly) ReportURL(_ context.Context, _ *store.ExecutionDetail) (string, error) {
	return "", fmt.Errorf("linkonly: tracker %q does not support reporting", t.tracker.Name)
}

// PostComment is unsupported
func (t *LinkOnly) PostComment(_ context.Context, _, _ string) error {
	return fmt.Errorf("linkonly: tracker %q does not support comments", t.tracker.Name)
}
