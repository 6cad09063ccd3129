package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Churn heuristic weights. Strictly additive, order independent, capped at 1.
const (
	weightRecency        = 0.25 // most recent event older than 7 days
	weightLowScrollDepth = 0.15 // max recorded scroll depth below 25
	weightRageClicks     = 0.15 // more than 3 rage-click events
	weightNoCartIntent   = 0.10 // no cart event observed
	weightNoHelpSeeking  = 0.05 // no help-center visit observed
	weightLowAvgSession  = 0.15 // average session below 30s
	weightLowTotalTime   = 0.15 // total session time below 5 minutes

	recencyCutoffDays = 7
	scrollDepthFloor  = 25
	rageClickFloor    = 3
	avgSessionFloorMs = 30_000
	totalTimeFloorMs  = 300_000

	// AlertThreshold is the score above which a churn alert is dispatched.
	AlertThreshold = 0.5

	// ScoreTTL is how long a computed score is reused before recomputation.
	ScoreTTL = time.Hour
)

// Scorer computes deterministic churn-risk scores from persisted event
// history, memoized per (account, user) with a TTL. A fresh computation
// crossing the alert threshold dispatches a notification without blocking
// the caller; a cache hit never re-dispatches.
type Scorer struct {
	store      *Store
	cache      ScoreCache
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewScorer wires the scorer to its store, cache, and alert dispatcher.
func NewScorer(store *Store, cache ScoreCache, dispatcher Dispatcher, logger *slog.Logger) *Scorer {
	return &Scorer{
		store:      store,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger.With("component", "scorer"),
		now:        time.Now,
	}
}

// Score returns the churn score in [0,1] for one user, rounded to two
// decimals. A store failure leaves the cache untouched so a transient
// outage cannot poison it.
func (s *Scorer) Score(ctx context.Context, accountID, userID string) (float64, error) {
	if score, ok := s.cache.Get(accountID, userID); ok {
		return score, nil
	}

	events, err := s.store.EventsForUser(ctx, accountID, userID)
	if err != nil {
		return 0, fmt.Errorf("load event history: %w", err)
	}

	score := scoreEvents(events, s.now())
	s.cache.Put(accountID, userID, score)

	if score > AlertThreshold {
		alert := ChurnAlert{
			AccountID: accountID,
			UserID:    userID,
			Score:     score,
			Message: fmt.Sprintf(
				"High churn risk detected: user %s (account %s) has a churn score of %.2f. Consider reaching out or sending a re-engagement deal.",
				userID, accountID, score),
		}
		go func() {
			if err := s.dispatcher.Dispatch(context.Background(), alert); err != nil {
				s.logger.Error("churn alert dispatch failed", "account_id", accountID, "user_id", userID, "error", err)
			}
		}()
	}
	return score, nil
}

// scoreEvents evaluates the additive heuristic over a full event history.
// A user with no history at all reads as fully churned.
func scoreEvents(events []Event, now time.Time) float64 {
	if len(events) == 0 {
		return 1
	}

	var (
		lastSeen       time.Time
		maxScrollDepth float64
		rageClicks     int
		cartIntent     bool
		helpSeeking    bool
		totalDuration  float64
		sessionCount   int
	)
	for _, event := range events {
		if event.Timestamp.After(lastSeen) {
			lastSeen = event.Timestamp
		}
		switch event.Type {
		case EventScrollDepth:
			if depth, ok := numberField(event.Payload, "depth"); ok && depth > maxScrollDepth {
				maxScrollDepth = depth
			}
		case EventRageClick:
			rageClicks++
		case EventCartAbandonment:
			cartIntent = true
		case EventHelpCenterVisit:
			helpSeeking = true
		case EventSessionDuration:
			if duration, ok := numberField(event.Payload, "duration"); ok {
				totalDuration += duration
				sessionCount++
			}
		}
	}

	score := 0.0
	if now.Sub(lastSeen).Hours()/24 > recencyCutoffDays {
		score += weightRecency
	}
	if maxScrollDepth < scrollDepthFloor {
		score += weightLowScrollDepth
	}
	if rageClicks > rageClickFloor {
		score += weightRageClicks
	}
	if !cartIntent {
		score += weightNoCartIntent
	}
	if !helpSeeking {
		score += weightNoHelpSeeking
	}
	avgDuration := 0.0
	if sessionCount > 0 {
		avgDuration = totalDuration / float64(sessionCount)
	}
	if avgDuration < avgSessionFloorMs {
		score += weightLowAvgSession
	}
	if totalDuration < totalTimeFloorMs {
		score += weightLowTotalTime
	}

	return math.Round(math.Min(score, 1)*100) / 100
}

func numberField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
