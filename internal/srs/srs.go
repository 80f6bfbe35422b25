// Package srs implements the spaced-repetition scheduling rules. All
// functions are pure: they read progress state and the supplied clock
// and never touch storage.
package srs

import (
	"sort"
	"time"

	"github.com/example/lexisync/pkg/models"
)

// Review intervals in days per memory-strength tier
const (
	IntervalWeakest   = 1  // strength 0-20
	IntervalWeak      = 3  // strength 21-40
	IntervalMedium    = 7  // strength 41-60
	IntervalStrong    = 14 // strength 61-80
	IntervalStrongest = 30 // strength 81-100
)

// IsDue reports whether a progress record should be reviewed at the
// given time. A record that was never scheduled is always due.
func IsDue(p *models.LearningProgress, now time.Time) bool {
	if p.NextReviewAt == nil {
		return true
	}
	return !p.NextReviewAt.After(now)
}

// NextReviewDate computes when a record should be reviewed next.
// Stronger memory earns a longer interval. The tiers are total over
// 0-100; out-of-range input is clamped to the nearest tier.
func NextReviewDate(memoryStrength int, now time.Time) time.Time {
	var days int
	switch {
	case memoryStrength <= 20:
		days = IntervalWeakest
	case memoryStrength <= 40:
		days = IntervalWeak
	case memoryStrength <= 60:
		days = IntervalMedium
	case memoryStrength <= 80:
		days = IntervalStrong
	default:
		days = IntervalStrongest
	}
	return now.AddDate(0, 0, days)
}

// SortByPriority orders records for review:
// 1. Words that have never been studied (no scheduled review)
// 2. Words with the lowest memory strength (hardest words)
// 3. Words with the earliest scheduled review
func SortByPriority(progress []models.LearningProgress) {
	sort.SliceStable(progress, func(i, j int) bool {
		pi, pj := progress[i], progress[j]

		if pi.NextReviewAt == nil && pj.NextReviewAt != nil {
			return true
		}
		if pj.NextReviewAt == nil && pi.NextReviewAt != nil {
			return false
		}

		if pi.MemoryStrength != pj.MemoryStrength {
			return pi.MemoryStrength < pj.MemoryStrength
		}

		if pi.NextReviewAt != nil && pj.NextReviewAt != nil {
			return pi.NextReviewAt.Before(*pj.NextReviewAt)
		}
		return false
	})
}

// SelectStudySet picks up to count word IDs for a session: due records
// first in priority order, padded with never-seen words when there are
// not enough due items. A word is never selected twice.
func SelectStudySet(due []models.LearningProgress, unseen []int64, count int) []int64 {
	if count <= 0 {
		return nil
	}

	sorted := make([]models.LearningProgress, len(due))
	copy(sorted, due)
	SortByPriority(sorted)

	selected := make([]int64, 0, count)
	seen := make(map[int64]bool, count)

	for _, p := range sorted {
		if len(selected) == count {
			return selected
		}
		if seen[p.WordID] {
			continue
		}
		seen[p.WordID] = true
		selected = append(selected, p.WordID)
	}

	for _, id := range unseen {
		if len(selected) == count {
			break
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, id)
	}

	return selected
}
