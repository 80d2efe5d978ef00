package fsrs

import (
	"fmt"
	"time"

	"github.com/conorfennell/grove/internal/domain"
)

const day = 24 * time.Hour

// Config configures a Scheduler. Zero values select the defaults noted on
// each field.
type Config struct {
	Parameters       [21]float64      // zero → DefaultParameters
	DesiredRetention float64          // zero → 0.9
	MaximumInterval  int              // zero → 36500 days
	LearningSteps    [3]time.Duration // Again, Hard, Good; zero → 1m, 5m, 10m
	RelearningStep   time.Duration    // zero → 10m
	EnableFuzz       bool
}

var defaultLearningSteps = [3]time.Duration{time.Minute, 5 * time.Minute, 10 * time.Minute}

// Scheduler maps a card's scheduling state and a rating to its next state.
// It holds no mutable state and is safe for concurrent use.
type Scheduler struct {
	model            model
	desiredRetention float64
	maximumInterval  int
	learningSteps    [3]time.Duration
	relearningStep   time.Duration
	enableFuzz       bool
}

// NewScheduler creates a Scheduler from cfg, filling in defaults.
func NewScheduler(cfg Config) (*Scheduler, error) {
	params := cfg.Parameters
	if params == [21]float64{} {
		params = DefaultParameters
	}
	if err := ValidateParameters(params); err != nil {
		return nil, err
	}

	dr := cfg.DesiredRetention
	if dr == 0 {
		dr = 0.9
	}
	if dr <= 0 || dr >= 1 {
		return nil, fmt.Errorf("%w: desired retention %f out of range (0, 1)", ErrInvalidParameters, dr)
	}

	maxIvl := cfg.MaximumInterval
	if maxIvl == 0 {
		maxIvl = 36500
	}
	if maxIvl < 1 {
		return nil, fmt.Errorf("%w: maximum interval %d must be positive", ErrInvalidParameters, maxIvl)
	}

	steps := cfg.LearningSteps
	for i, st := range steps {
		if st < 0 {
			return nil, fmt.Errorf("%w: negative learning step %v", ErrInvalidParameters, st)
		}
		if st == 0 {
			steps[i] = defaultLearningSteps[i]
		}
	}

	relearn := cfg.RelearningStep
	if relearn < 0 {
		return nil, fmt.Errorf("%w: negative relearning step %v", ErrInvalidParameters, relearn)
	}
	if relearn == 0 {
		relearn = 10 * time.Minute
	}

	return &Scheduler{
		model:            newModel(params),
		desiredRetention: dr,
		maximumInterval:  maxIvl,
		learningSteps:    steps,
		relearningStep:   relearn,
		enableFuzz:       cfg.EnableFuzz,
	}, nil
}

// DefaultScheduler returns a Scheduler with every default applied.
func DefaultScheduler() *Scheduler {
	s, err := NewScheduler(Config{})
	if err != nil {
		panic(err) // defaults are always in bounds
	}
	return s
}

// Schedule applies a review with the given rating at reviewedAt. It returns
// the card's new scheduling state and a log entry holding the state before
// the review. The input is not mutated and identical inputs always produce
// identical outputs.
func (s *Scheduler) Schedule(card domain.Schedule, rating domain.Rating, reviewedAt time.Time) (domain.Schedule, domain.ReviewLog, error) {
	if !rating.IsValid() {
		return domain.Schedule{}, domain.ReviewLog{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}
	if err := card.Validate(); err != nil {
		return domain.Schedule{}, domain.ReviewLog{}, err
	}

	log := domain.ReviewLog{
		Rating:        rating,
		State:         card.State,
		Due:           card.Due,
		Stability:     card.Stability,
		Difficulty:    card.Difficulty,
		ElapsedDays:   card.ElapsedDays,
		ScheduledDays: card.ScheduledDays,
		ReviewedAt:    reviewedAt,
	}

	elapsed := elapsedDays(card, reviewedAt)
	at := reviewedAt

	next := card
	next.Reps++
	next.LastReview = &at
	next.ElapsedDays = int(roundHalfUp(elapsed))

	switch card.State {
	case domain.New:
		if rating == domain.Easy {
			s.graduate(&next, card, elapsed, rating, at)
		} else {
			next.State = domain.Learning
			s.step(&next, card, elapsed, rating, at, s.learningSteps[rating-1])
		}
	case domain.Learning, domain.Relearning:
		switch {
		case rating != domain.Again:
			s.graduate(&next, card, elapsed, rating, at)
		case card.State == domain.Relearning:
			s.step(&next, card, elapsed, rating, at, s.relearningStep)
		default:
			s.step(&next, card, elapsed, rating, at, s.learningSteps[0])
		}
	case domain.Review:
		if rating == domain.Again {
			next.Lapses++
			next.State = domain.Relearning
			s.step(&next, card, elapsed, rating, at, s.relearningStep)
		} else {
			s.graduate(&next, card, elapsed, rating, at)
		}
	}

	return next, log, nil
}

// Preview returns the outcome of each possible rating at now.
func (s *Scheduler) Preview(card domain.Schedule, now time.Time) (map[domain.Rating]domain.Schedule, error) {
	out := make(map[domain.Rating]domain.Schedule, len(domain.Ratings))
	for _, r := range domain.Ratings {
		next, _, err := s.Schedule(card, r, now)
		if err != nil {
			return nil, err
		}
		out[r] = next
	}
	return out, nil
}

// Retrievability returns the probability of recall at asOf, or nil for a
// card that has never been reviewed. An asOf before the card's last review
// is treated as zero elapsed time.
func (s *Scheduler) Retrievability(card domain.Schedule, asOf time.Time) *float64 {
	if card.State == domain.New {
		return nil
	}
	elapsed := asOf.Sub(card.Basis())
	if elapsed < 0 {
		elapsed = 0
	}
	r := s.model.retrievability(elapsed.Hours()/24, card.Stability)
	return &r
}

// Interval returns the review interval in days for a stability.
func (s *Scheduler) Interval(stability float64) int {
	return s.model.interval(stability, s.desiredRetention, s.maximumInterval)
}

// memory computes the stability and difficulty after rating r.
func (s *Scheduler) memory(prev domain.Schedule, elapsed float64, r domain.Rating) (float64, float64) {
	m := &s.model
	if prev.State == domain.New {
		return m.initStability(r), clampDifficulty(m.initDifficulty(r))
	}

	stab := clampStability(prev.Stability)
	diff := clampDifficulty(prev.Difficulty)

	var next float64
	switch {
	case elapsed < 1:
		next = m.shortTermStability(stab, r)
	case r == domain.Again:
		next = m.forgetStability(diff, stab, m.retrievability(elapsed, stab))
	default:
		next = m.recallStability(diff, stab, m.retrievability(elapsed, stab), r)
	}
	return next, m.nextDifficulty(diff, r)
}

// step keeps the card in (re)learning with a short, sub-day interval.
func (s *Scheduler) step(next *domain.Schedule, prev domain.Schedule, elapsed float64, r domain.Rating, at time.Time, step time.Duration) {
	next.Stability, next.Difficulty = s.memory(prev, elapsed, r)
	next.ScheduledDays = 0
	next.Due = at.Add(step)
}

// graduate moves the card to (or keeps it in) Review with a day interval.
// Intervals are computed for all passing ratings so that Hard <= Good < Easy.
func (s *Scheduler) graduate(next *domain.Schedule, prev domain.Schedule, elapsed float64, r domain.Rating, at time.Time) {
	var ivls [3]int
	for i, pr := range []domain.Rating{domain.Hard, domain.Good, domain.Easy} {
		st, _ := s.memory(prev, elapsed, pr)
		ivls[i] = s.Interval(st)
	}
	ivls = orderIntervals(ivls, s.maximumInterval)

	next.Stability, next.Difficulty = s.memory(prev, elapsed, r)
	ivl := ivls[r-domain.Hard]
	if s.enableFuzz {
		ivl = applyFuzz(ivl, s.maximumInterval, fuzzSeed(at, next.Reps, next.Stability))
	}

	next.State = domain.Review
	next.ScheduledDays = ivl
	next.Due = at.Add(time.Duration(ivl) * day)
}

// orderIntervals enforces Hard <= Good < Easy, then re-clamps to the maximum.
func orderIntervals(ivls [3]int, maxIvl int) [3]int {
	hard, good, easy := ivls[0], ivls[1], ivls[2]
	hard = min(hard, good)
	good = max(good, hard+1)
	easy = max(easy, good+1)
	return [3]int{
		clampInterval(hard, maxIvl),
		clampInterval(good, maxIvl),
		clampInterval(easy, maxIvl),
	}
}

// elapsedDays is the fractional time since the card's due-basis, never negative.
func elapsedDays(card domain.Schedule, at time.Time) float64 {
	if card.State == domain.New {
		return 0
	}
	d := at.Sub(card.Basis())
	if d < 0 {
		return 0
	}
	return d.Hours() / 24
}
