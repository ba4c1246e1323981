// Package arbitrator collapses the set of proposal cards a tick's
// strategies produce for one symbol into a single winner, or none.
package arbitrator

import (
	"sort"
	"sync"

	"perpsignal/config"
	"perpsignal/internal/model"
)

// Arbitrator tracks, per symbol, the last time a card was dispatched so
// it can enforce the dedupe window across ticks.
type Arbitrator struct {
	dedupeWindowMs int64
	entrySimilarPct float64
	stopSimilarPct  float64

	mu           sync.Mutex
	lastDispatch map[string]int64 // symbol -> dispatched_at_ms
}

func New(cfg *config.Config) *Arbitrator {
	return &Arbitrator{
		dedupeWindowMs:  int64(cfg.DedupeWindowSeconds) * 1000,
		entrySimilarPct: cfg.EntrySimilarPct,
		stopSimilarPct:  cfg.StopSimilarPct,
		lastDispatch:    make(map[string]int64),
	}
}

// ChooseBest applies the dedupe window, groups candidates by side,
// collapses each group's similar clusters to their best member, and
// returns the single overall winner, or (nil, false).
func (a *Arbitrator) ChooseBest(symbol string, candidates []model.ProposalCard, nowMs int64) (*model.ProposalCard, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	a.mu.Lock()
	last, dispatched := a.lastDispatch[symbol]
	a.mu.Unlock()
	if dispatched && nowMs-last < a.dedupeWindowMs {
		return nil, false
	}

	byside := make(map[model.Side][]model.ProposalCard)
	for _, c := range candidates {
		byside[c.Side] = append(byside[c.Side], c)
	}

	var survivors []model.ProposalCard
	for _, group := range byside {
		survivors = append(survivors, a.collapseSimilar(group)...)
	}
	if len(survivors) == 0 {
		return nil, false
	}

	sort.Slice(survivors, func(i, j int) bool { return less(survivors[j], survivors[i]) })
	winner := survivors[0]
	return &winner, true
}

// RecordDispatch marks a symbol as having just dispatched a card, for
// future dedupe-window checks.
func (a *Arbitrator) RecordDispatch(symbol string, nowMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastDispatch[symbol] = nowMs
}

// collapseSimilar groups same-side candidates into similarity clusters
// (pairwise entry/stop proximity) and keeps the best of each cluster.
func (a *Arbitrator) collapseSimilar(group []model.ProposalCard) []model.ProposalCard {
	used := make([]bool, len(group))
	var kept []model.ProposalCard

	for i := range group {
		if used[i] {
			continue
		}
		best := group[i]
		used[i] = true
		for j := i + 1; j < len(group); j++ {
			if used[j] {
				continue
			}
			if a.similar(best, group[j]) {
				used[j] = true
				if less(best, group[j]) {
					best = group[j]
				}
			}
		}
		kept = append(kept, best)
	}
	return kept
}

func (a *Arbitrator) similar(x, y model.ProposalCard) bool {
	if x.Entry == 0 || y.Entry == 0 || x.Stop == 0 || y.Stop == 0 {
		return false
	}
	entryDelta := absF(x.Entry-y.Entry) / x.Entry
	stopDelta := absF(x.Stop-y.Stop) / x.Stop
	return entryDelta <= a.entrySimilarPct && stopDelta <= a.stopSimilarPct
}

// less reports whether x ranks below y under the tie-break order:
// higher priority wins, then higher confidence, then shorter ttl, then
// lexicographically smaller strategy name.
func less(x, y model.ProposalCard) bool {
	if x.Priority != y.Priority {
		return x.Priority < y.Priority
	}
	if x.Confidence != y.Confidence {
		return x.Confidence < y.Confidence
	}
	if x.TTLMinutes != y.TTLMinutes {
		return x.TTLMinutes > y.TTLMinutes // shorter ttl wins, so longer ttl ranks lower
	}
	return x.Strategy > y.Strategy // lexicographically smaller strategy name wins
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
