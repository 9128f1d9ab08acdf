package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researcher/internal/store"
)

// jobSink persists facts for a single job. Each Record is its own committed insert.
type jobSink struct {
	svc   *Service
	jobID string
}

func (s *jobSink) Record(ctx context.Context, text, source string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyFact
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = store.DefaultFactSource
	}
	if _, err := s.svc.store.AppendFact(ctx, store.FactRecord{JobID: s.jobID, Fact: text, Source: source}); err != nil {
		return fmt.Errorf("record fact: %w", err)
	}
	s.svc.metrics.factRecorded()
	return nil
}
