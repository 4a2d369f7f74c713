package booking

import (
	"sort"
	"time"

	"github.com/jwalitptl/booking-api/internal/model"
)

// RankerConfig carries the alternative-search knobs. Defaults live in
// the config package; nothing here is hard-coded at call sites.
type RankerConfig struct {
	SearchHorizonDays      int
	MaxAlternatives        int
	DayOffsetWeightMinutes int
}

// DayCandidates is one day's worth of raw material for the ranker: the
// template slot grid and the bookings already scheduled on that day.
type DayCandidates struct {
	DayOffset int
	Slots     []model.TimeInterval
	Booked    []*model.ConfirmedBooking
}

// RankAlternatives subtracts booked intervals from each day's grid and
// ranks the open slots by proximity to the requested start. The score is
// the absolute distance in minutes plus a per-day-offset penalty, so a
// nearby slot on the requested day always outranks the same time-of-day
// a few days out. Ties break toward the earlier slot. Slots already in
// the past are never suggested.
//
// The result is stable for a fixed snapshot of bookings: two calls with
// the same inputs return identical ordered output.
func RankAlternatives(requested model.TimeInterval, days []DayCandidates, now time.Time, cfg RankerConfig) []model.AlternativeSlot {
	type scored struct {
		slot      model.TimeInterval
		score     int64
		distance  int
		dayOffset int
	}

	var candidates []scored
	for _, day := range days {
		for _, slot := range day.Slots {
			if !slot.Start.After(now) {
				continue
			}
			if overlapsAny(slot, day.Booked) {
				continue
			}
			distance := absMinutes(slot.Start.Sub(requested.Start))
			score := int64(distance) + int64(day.DayOffset)*int64(cfg.DayOffsetWeightMinutes)
			candidates = append(candidates, scored{
				slot:      slot,
				score:     score,
				distance:  distance,
				dayOffset: day.DayOffset,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].slot.Start.Before(candidates[j].slot.Start)
	})

	limit := cfg.MaxAlternatives
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	alternatives := make([]model.AlternativeSlot, 0, limit)
	for i := 0; i < limit; i++ {
		alternatives = append(alternatives, model.AlternativeSlot{
			Interval:        candidates[i].slot,
			Rank:            i + 1,
			DistanceMinutes: candidates[i].distance,
			DayOffset:       candidates[i].dayOffset,
		})
	}
	return alternatives
}

func overlapsAny(slot model.TimeInterval, bookings []*model.ConfirmedBooking) bool {
	for _, b := range bookings {
		if slot.Overlaps(b.Interval()) {
			return true
		}
	}
	return false
}

func absMinutes(d time.Duration) int {
	if d < 0 {
		d = -d
	}
	return int(d / time.Minute)
}
