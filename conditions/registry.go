package conditions

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrUnknownCondition = errors.New("unknown condition type")

// Predicate checks one condition type against a history using raw JSON parameters.
type Predicate interface {
	// Check never fails: undecodable parameters evaluate to false.
	Check(h *History, params json.RawMessage) bool
	Decode(params json.RawMessage) (Condition, error)
}

type typed[C Condition] struct {
	defaults C
}

func (p typed[C]) Decode(params json.RawMessage) (Condition, error) {
	c := p.defaults
	if len(params) == 0 || string(params) == "null" {
		return c, nil
	}
	if err := json.Unmarshal(params, &c); err != nil {
		return nil, fmt.Errorf("decode %T params: %w", c, err)
	}
	return c, nil
}

func (p typed[C]) Check(h *History, params json.RawMessage) bool {
	c, err := p.Decode(params)
	if err != nil || h == nil {
		return false
	}
	return c.Satisfied(h)
}

type Registry struct {
	predicates map[Type]Predicate
	reserved   map[Type]bool
	validate   *validator.Validate
}

func NewRegistry() *Registry {
	return &Registry{
		predicates: make(map[Type]Predicate),
		reserved:   make(map[Type]bool),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// DefaultRegistry knows every condition type used by the badge catalogue.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	Register(r, MonthlyTripCountType, MonthlyTripCount{})
	Register(r, PrefectureConquestCountType, PrefectureConquestCount{})
	Register(r, RegionConquestType, RegionConquest{})
	Register(r, ShortTripCountType, ShortTripCount{Nights: 1})
	Register(r, LongTripCountType, LongTripCount{Nights: 3})
	Register(r, TotalPhotoCountType, TotalPhotoCount{})
	Register(r, TripPhotoCountType, TripPhotoCount{})
	Register(r, MonthlyActiveStreakType, MonthlyActiveStreak{Months: 12})
	Register(r, KeywordCountType, KeywordCount{})
	Register(r, AISuggestionVisitedCountType, AISuggestionVisitedCount{})
	Register(r, ManualTripCountType, ManualTripCount{})
	Register(r, ReplyGivenCountType, ReplyGivenCount{})
	Register(r, TagCountType, TagCount{})

	// TODO: back these with reaction and status-update history once those tables exist.
	for _, t := range []Type{AISuggestionReactionCountType, ReactionGivenCountType, StatusUpdateCountType} {
		Register(r, t, Reserved{})
		r.reserved[t] = true
	}
	return r
}

// Register binds t to a typed condition whose zero-config values are taken from defaults.
func Register[C Condition](r *Registry, t Type, defaults C) {
	r.predicates[t] = typed[C]{defaults: defaults}
}

func (r *Registry) Resolve(conditionType string) (Predicate, bool) {
	p, ok := r.predicates[Type(conditionType)]
	return p, ok
}

func (r *Registry) IsReserved(conditionType string) bool {
	return r.reserved[Type(conditionType)]
}

// Validate decodes params for conditionType and checks them against the condition's validate tags.
func (r *Registry) Validate(conditionType string, params json.RawMessage) error {
	p, ok := r.Resolve(conditionType)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCondition, conditionType)
	}
	c, err := p.Decode(params)
	if err != nil {
		return err
	}
	if r.IsReserved(conditionType) {
		return nil
	}
	if err := r.validate.Struct(c); err != nil {
		return fmt.Errorf("invalid %s params: %w", conditionType, err)
	}
	return nil
}

func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.predicates))
	for t := range r.predicates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func containsText(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}
