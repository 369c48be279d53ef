package jobs

import (
	"context"
	"fmt"
	"time"
)

// MonitorProviderTitles detects provider title changes since the last run
// and reconciles the affected canonical titles
func (s *Service) MonitorProviderTitles(ctx context.Context, run *Run) (string, error) {
	since := time.Time{}
	if run.LastExecution != nil {
		since = *run.LastExecution
	}

	activeIDs, err := s.stores.Providers.ActiveIDs(ctx)
	if err != nil {
		return "", err
	}

	updated, err := s.stores.ProviderTitles.ListUpdatedSince(ctx, activeIDs, since)
	if err != nil {
		return "", err
	}
	if len(updated) == 0 {
		return "no changes", nil
	}

	result, err := s.reconciler.Reconcile(ctx, updated)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("affected=%d rebuilt=%d deleted=%d errors=%d",
		result.Affected, result.Rebuilt, result.Deleted, result.Errors), nil
}
