package incident

import "time"

// Stats summarizes a snapshot for reporting.
type Stats struct {
	Total      int
	Categories []CategoryCount
	Oldest     time.Time
	Newest     time.Time
	FetchedAt  time.Time
	Provider   string
}

// ComputeStats returns per-label counts (limited to top entries, 0 for all)
// and the time span covered by the snapshot.
func ComputeStats(s *Snapshot, top int) Stats {
	if s == nil {
		return Stats{}
	}

	st := Stats{
		Total:      len(s.Records),
		Categories: s.TopCategories(top),
		FetchedAt:  s.FetchedAt,
		Provider:   s.Provider,
	}

	for i := range s.Records {
		at := s.Records[i].OccurredAt
		if at.IsZero() {
			continue
		}
		if st.Oldest.IsZero() || at.Before(st.Oldest) {
			st.Oldest = at
		}
		if at.After(st.Newest) {
			st.Newest = at
		}
	}

	return st
}
