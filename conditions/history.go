package conditions

import "time"

// History is the read-only snapshot of one user's activity that predicates evaluate.
type History struct {
	UserID      string
	AsOf        time.Time // evaluation instant, in the application timezone
	Trips       []TripRecord
	Posts       []PostRecord
	Suggestions []SuggestionRecord
}

type TripRecord struct {
	ID          string
	Title       string
	Description string
	Prefectures []string
	StartDate   time.Time
	Nights      int
	Tags        []string
	PhotoCount  int
}

type PostRecord struct {
	ID      string
	IsReply bool
}

type SuggestionRecord struct {
	Source  string
	Visited bool
}

// VisitedPrefectures flattens every trip's prefecture list into a set.
func (h *History) VisitedPrefectures() map[string]struct{} {
	seen := make(map[string]struct{})
	for _, t := range h.Trips {
		for _, p := range t.Prefectures {
			if p == "" {
				continue
			}
			seen[p] = struct{}{}
		}
	}
	return seen
}

func (h *History) TotalPhotos() int {
	total := 0
	for _, t := range h.Trips {
		total += t.PhotoCount
	}
	return total
}

// countTrips counts trips matching fn.
func (h *History) countTrips(fn func(t TripRecord) bool) int {
	n := 0
	for _, t := range h.Trips {
		if fn(t) {
			n++
		}
	}
	return n
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// monthStart returns midnight on the first day of t's month, in t's location.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
