// Package selector implements next-track selection over a playlist queue.
//
// Selection is a pure function of its inputs: given the same queue snapshot
// and cursor it always returns the same candidate.
package selector

import (
	"github.com/samber/lo"

	"github.com/infinitune/roomserver/internal/models"
)

// PickNext returns the next track to play, or nil when nothing is playable.
//
// The playable set is {ready} normally and {ready, played} in manual mode;
// the current song is always excluded. Priority order, first non-empty tier
// wins:
//
//  1. Interrupts, oldest creation time first.
//  2. Current-epoch songs (skipped in manual mode): lowest orderIndex strictly
//     ahead of the cursor, wrapping to the lowest overall when the cursor has
//     overshot the tail.
//  3. Everything else, same ahead-first-else-wrap rule.
//
// currentOrderIndex may be nil when there is no cursor (idle room).
func PickNext(songs []models.Song, currentSongID string, playlistEpoch int, currentOrderIndex *float64, manualMode bool) *models.Song {
	candidates := lo.Filter(songs, func(s models.Song, _ int) bool {
		return s.ID != currentSongID && s.IsPlayable(manualMode)
	})
	if len(candidates) == 0 {
		return nil
	}

	// P1: interrupts jump the order, FIFO among themselves.
	interrupts := lo.Filter(candidates, func(s models.Song, _ int) bool {
		return s.IsInterrupt
	})
	if len(interrupts) > 0 {
		oldest := lo.MinBy(interrupts, func(a, b models.Song) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		return &oldest
	}

	// P2: prefer songs generated under the current steering prompt.
	if !manualMode {
		currentEpoch := lo.Filter(candidates, func(s models.Song, _ int) bool {
			return s.PromptEpoch == playlistEpoch
		})
		if len(currentEpoch) > 0 {
			return aheadOrWrap(currentEpoch, currentOrderIndex)
		}
	}

	// P3: fall back to anything playable so playback always makes progress.
	return aheadOrWrap(candidates, currentOrderIndex)
}

// aheadOrWrap picks the lowest orderIndex strictly greater than the cursor,
// wrapping to the lowest orderIndex overall when the cursor has passed the
// tail of the tier.
func aheadOrWrap(candidates []models.Song, currentOrderIndex *float64) *models.Song {
	if currentOrderIndex != nil {
		ahead := lo.Filter(candidates, func(s models.Song, _ int) bool {
			return s.OrderIndex > *currentOrderIndex
		})
		if len(ahead) > 0 {
			return minByOrder(ahead)
		}
	}
	return minByOrder(candidates)
}

// minByOrder returns the candidate with the minimum orderIndex, breaking ties
// by creation time and then id so the result is deterministic.
func minByOrder(candidates []models.Song) *models.Song {
	best := lo.MinBy(candidates, func(a, b models.Song) bool {
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &best
}

// FindGeneratingInterrupt returns the oldest in-flight interrupt, or nil.
// This feeds the "next up" banner.
func FindGeneratingInterrupt(songs []models.Song) *models.Song {
	generating := lo.Filter(songs, func(s models.Song, _ int) bool {
		return s.IsInterrupt && s.Status.IsGenerating()
	})
	if len(generating) == 0 {
		return nil
	}
	oldest := lo.MinBy(generating, func(a, b models.Song) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &oldest
}
