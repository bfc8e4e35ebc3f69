package metrics

import (
	"context"

	"github.com/saludcampo/offlinesync/internal/models"
)

// Summary aggregates a set of attempt records.
type Summary struct {
	TotalAttempts           int     `json:"total_attempts"`
	SuccessfulFirstAttempt  int     `json:"successful_first_attempt"`
	SuccessfulSecondAttempt int     `json:"successful_second_attempt"`
	FailedSyncs             int     `json:"failed_syncs"`
	OverallSuccessRate      float64 `json:"overall_success_rate"`
	AverageSyncTimeSeconds  float64 `json:"average_sync_time_seconds"`
	TotalSyncTimeMs         int64   `json:"total_sync_time_ms"`
}

// Summarize computes the summary of records.
//
// OverallSuccessRate only credits successes on the first or second attempt,
// so later successes lower the rate without counting as failures.
// AverageSyncTimeSeconds covers every successful record regardless of its
// attempt number. Both are 0 when there is nothing to divide by.
func Summarize(records []*models.SyncAttempt) Summary {
	var (
		s          Summary
		successful int
	)
	for _, r := range records {
		if r == nil {
			continue
		}
		s.TotalAttempts++
		if !r.Success {
			s.FailedSyncs++
			continue
		}
		successful++
		s.TotalSyncTimeMs += r.DurationMs
		switch r.AttemptNumber {
		case 1:
			s.SuccessfulFirstAttempt++
		case 2:
			s.SuccessfulSecondAttempt++
		}
	}

	if s.TotalAttempts > 0 {
		s.OverallSuccessRate = float64(s.SuccessfulFirstAttempt+s.SuccessfulSecondAttempt) / float64(s.TotalAttempts) * 100
	}
	if successful > 0 {
		s.AverageSyncTimeSeconds = float64(s.TotalSyncTimeMs) / float64(successful) / 1000
	}
	return s
}

// Aggregator reads the metrics store on demand.
type Aggregator struct {
	store *Store
}

// NewAggregator creates an Aggregator over store.
func NewAggregator(store *Store) *Aggregator {
	return &Aggregator{store: store}
}

// Summarize summarizes every stored record.
func (a *Aggregator) Summarize(ctx context.Context) (Summary, error) {
	records, err := a.store.ListAll(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(records), nil
}

// ExportCSV renders every stored record as CSV.
func (a *Aggregator) ExportCSV(ctx context.Context) (string, error) {
	records, err := a.store.ListAll(ctx)
	if err != nil {
		return "", err
	}
	return ExportCSV(records), nil
}
