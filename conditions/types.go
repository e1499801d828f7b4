package conditions

// Type selects the predicate that evaluates a badge.
type Type string

const (
	MonthlyTripCountType          Type = "monthly_trip_count"
	PrefectureConquestCountType   Type = "prefecture_conquest_count"
	RegionConquestType            Type = "region_conquest"
	ShortTripCountType            Type = "short_trip_count"
	LongTripCountType             Type = "long_trip_count"
	TotalPhotoCountType           Type = "total_photo_count"
	TripPhotoCountType            Type = "trip_photo_count"
	MonthlyActiveStreakType       Type = "monthly_active_streak"
	KeywordCountType              Type = "keyword_count"
	AISuggestionVisitedCountType  Type = "ai_suggestion_visited_count"
	ManualTripCountType           Type = "manual_trip_count"
	ReplyGivenCountType           Type = "reply_given_count"
	TagCountType                  Type = "tag_count"
	AISuggestionReactionCountType Type = "ai_suggestion_reaction_count"
	ReactionGivenCountType        Type = "reaction_given_count"
	StatusUpdateCountType         Type = "status_update_count"
)

// Condition is a decoded, typed parameter set that can be checked against a history.
type Condition interface {
	Satisfied(h *History) bool
}

type MonthlyTripCount struct {
	Count int `json:"count" validate:"gte=0"`
}

// Satisfied counts trips starting in the calendar month of h.AsOf.
func (c MonthlyTripCount) Satisfied(h *History) bool {
	n := h.countTrips(func(t TripRecord) bool { return sameMonth(t.StartDate, h.AsOf) })
	return n >= c.Count
}

type PrefectureConquestCount struct {
	Count int `json:"count" validate:"gte=0"`
}

func (c PrefectureConquestCount) Satisfied(h *History) bool {
	return len(h.VisitedPrefectures()) >= c.Count
}

type RegionConquest struct {
	Region      string   `json:"region"`
	Prefectures []string `json:"prefectures" validate:"required,min=1,dive,required"`
}

// Satisfied requires every listed prefecture to have been visited. An empty list never qualifies.
func (c RegionConquest) Satisfied(h *History) bool {
	if len(c.Prefectures) == 0 {
		return false
	}
	visited := h.VisitedPrefectures()
	for _, p := range c.Prefectures {
		if _, ok := visited[p]; !ok {
			return false
		}
	}
	return true
}

type ShortTripCount struct {
	Nights int `json:"nights" validate:"gte=0"`
	Count  int `json:"count" validate:"gte=0"`
}

func (c ShortTripCount) Satisfied(h *History) bool {
	return h.countTrips(func(t TripRecord) bool { return t.Nights <= c.Nights }) >= c.Count
}

type LongTripCount struct {
	Nights int `json:"nights" validate:"gte=0"`
	Count  int `json:"count" validate:"gte=0"`
}

func (c LongTripCount) Satisfied(h *History) bool {
	return h.countTrips(func(t TripRecord) bool { return t.Nights >= c.Nights }) >= c.Count
}

type TotalPhotoCount struct {
	Count int `json:"count" validate:"gte=0"`
}

func (c TotalPhotoCount) Satisfied(h *History) bool {
	return h.TotalPhotos() >= c.Count
}

type TripPhotoCount struct {
	Count int `json:"count" validate:"gte=0"`
}

// Satisfied needs a single trip holding at least Count photos.
func (c TripPhotoCount) Satisfied(h *History) bool {
	for _, t := range h.Trips {
		if t.PhotoCount >= c.Count {
			return true
		}
	}
	return false
}

type MonthlyActiveStreak struct {
	Months int `json:"months" validate:"gte=1"`
}

// Satisfied walks back Months calendar months from the current one; any month without a trip breaks the streak.
func (c MonthlyActiveStreak) Satisfied(h *History) bool {
	if c.Months <= 0 {
		return false
	}
	active := make(map[[2]int]struct{}, len(h.Trips))
	for _, t := range h.Trips {
		active[[2]int{t.StartDate.Year(), int(t.StartDate.Month())}] = struct{}{}
	}
	base := monthStart(h.AsOf)
	for i := 0; i < c.Months; i++ {
		m := base.AddDate(0, -i, 0)
		if _, ok := active[[2]int{m.Year(), int(m.Month())}]; !ok {
			return false
		}
	}
	return true
}

type KeywordCount struct {
	Keyword string `json:"keyword" validate:"required"`
	Count   int    `json:"count" validate:"gte=0"`
}

// Satisfied matches Keyword case-sensitively in the title or description. An empty keyword never qualifies.
func (c KeywordCount) Satisfied(h *History) bool {
	if c.Keyword == "" {
		return false
	}
	n := h.countTrips(func(t TripRecord) bool {
		return containsText(t.Title, c.Keyword) || containsText(t.Description, c.Keyword)
	})
	return n >= c.Count
}

type AISuggestionVisitedCount struct {
	Count int `json:"count" validate:"gte=0"`
}

func (c AISuggestionVisitedCount) Satisfied(h *History) bool {
	n := 0
	for _, s := range h.Suggestions {
		if s.Source == "ai" && s.Visited {
			n++
		}
	}
	return n >= c.Count
}

// ManualTripCount counts every trip; trips carry no origin marker.
type ManualTripCount struct {
	Count int `json:"count" validate:"gte=0"`
}

func (c ManualTripCount) Satisfied(h *History) bool {
	return len(h.Trips) >= c.Count
}

type ReplyGivenCount struct {
	Count int `json:"count" validate:"gte=0"`
}

func (c ReplyGivenCount) Satisfied(h *History) bool {
	n := 0
	for _, p := range h.Posts {
		if p.IsReply {
			n++
		}
	}
	return n >= c.Count
}

// TagCount accepts either a single Tag or a Tags list; Tags wins when both are set.
type TagCount struct {
	Tag   string   `json:"tag" validate:"required_without=Tags"`
	Tags  []string `json:"tags" validate:"required_without=Tag,dive,required"`
	Count int      `json:"count" validate:"gte=0"`
}

func (c TagCount) Names() []string {
	if len(c.Tags) > 0 {
		return c.Tags
	}
	if c.Tag != "" {
		return []string{c.Tag}
	}
	return nil
}

func (c TagCount) Satisfied(h *History) bool {
	names := c.Names()
	if len(names) == 0 {
		return false
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	n := h.countTrips(func(t TripRecord) bool {
		for _, tag := range t.Tags {
			if _, ok := wanted[tag]; ok {
				return true
			}
		}
		return false
	})
	return n >= c.Count
}

// Reserved stands in for condition types whose data is not tracked yet. It never qualifies.
type Reserved struct {
	Reaction string `json:"reaction"`
	Count    int    `json:"count"`
}

func (Reserved) Satisfied(*History) bool { return false }
