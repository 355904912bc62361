package aggregator

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/helixir/research-finder/internal/domain"
)

// Outcome statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// SourceOutcome summarizes one source's part in a run.
type SourceOutcome struct {
	Source   domain.SourceType    `json:"source"`
	Status   string               `json:"status"`
	Records  int                  `json:"records"`
	Reason   domain.FailureReason `json:"reason,omitempty"`
	Error    string               `json:"error,omitempty"`
	Duration time.Duration        `json:"duration_ns"`
}

func (o outcome) summary() SourceOutcome {
	s := SourceOutcome{
		Source:   o.source,
		Status:   StatusSucceeded,
		Records:  len(o.records),
		Duration: o.duration,
	}
	if o.err != nil {
		s.Status = StatusFailed
		s.Records = 0
		s.Reason = o.err.Reason
		if o.err.Cause != nil {
			s.Error = o.err.Cause.Error()
		}
	}
	return s
}

// Result is what a run produces. The aggregator owns it exclusively until
// it is returned.
type Result struct {
	RunID          string                                    `json:"run_id"`
	Query          domain.SearchQuery                        `json:"query"`
	CacheDirective domain.CacheDirective                     `json:"cache_directive"`
	CacheCleared   int                                       `json:"cache_cleared"`
	Records        []domain.ArticleRecord                    `json:"records"`
	Sources        []SourceOutcome                           `json:"sources"`
	Failures       map[domain.SourceType]*domain.SourceError `json:"-"`
	Filtered       int                                       `json:"filtered"`
	Merged         int                                       `json:"merged"`
	Duration       time.Duration                             `json:"duration_ns"`
}

// Succeeded returns the sources that answered, in dispatch order.
func (r *Result) Succeeded() []domain.SourceType {
	var out []domain.SourceType
	for _, s := range r.Sources {
		if s.Status == StatusSucceeded {
			out = append(out, s.Source)
		}
	}
	return out
}

// Failed returns the sources that did not answer, in dispatch order.
func (r *Result) Failed() []domain.SourceType {
	var out []domain.SourceType
	for _, s := range r.Sources {
		if s.Status == StatusFailed {
			out = append(out, s.Source)
		}
	}
	return out
}

// WriteSummary prints the per-source outcome table.
func (r *Result) WriteSummary(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s: %d records", r.RunID, len(r.Records))
	if r.Merged > 0 {
		fmt.Fprintf(&sb, " (%d duplicates merged)", r.Merged)
	}
	if r.Filtered > 0 {
		fmt.Fprintf(&sb, ", %d filtered out", r.Filtered)
	}
	fmt.Fprintf(&sb, " in %s\n", r.Duration.Round(time.Millisecond))

	for _, s := range r.Sources {
		name := s.Source.DisplayName()
		if s.Status == StatusSucceeded {
			fmt.Fprintf(&sb, "  ok    %-18s %d records\n", name, s.Records)
			continue
		}
		fmt.Fprintf(&sb, "  FAIL  %-18s %s", name, s.Reason)
		if s.Error != "" {
			fmt.Fprintf(&sb, ": %s", s.Error)
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
