package sdk

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// DetectorConfig carries the detection tunables. Zero values are replaced
// by the defaults from DefaultDetectorConfig.
type DetectorConfig struct {
	// RageClickWindow bounds the sliding click window.
	RageClickWindow time.Duration
	// RageClickThreshold is the number of clicks inside the window that
	// triggers a single rageClick event.
	RageClickThreshold int
	// InactivityTimeout is the dead time after the last interaction before
	// the session is considered inactive.
	InactivityTimeout time.Duration
	// InactivityPoll is the background check interval.
	InactivityPoll time.Duration

	// Class-list markers for commerce and support intent.
	AddToCartMarker    string
	CheckoutStepMarker string
	HelpCenterMarker   string
}

// DefaultDetectorConfig mirrors the tracking script shipped to production
// pages: 3 clicks inside 1s, 30s dead time checked every 5s.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		RageClickWindow:    time.Second,
		RageClickThreshold: 3,
		InactivityTimeout:  30 * time.Second,
		InactivityPoll:     5 * time.Second,
		AddToCartMarker:    "add-to-cart",
		CheckoutStepMarker: "checkout-step",
		HelpCenterMarker:   "help-center-link",
	}
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	d := DefaultDetectorConfig()
	if c.RageClickWindow <= 0 {
		c.RageClickWindow = d.RageClickWindow
	}
	if c.RageClickThreshold <= 0 {
		c.RageClickThreshold = d.RageClickThreshold
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.InactivityPoll <= 0 {
		c.InactivityPoll = d.InactivityPoll
	}
	if c.AddToCartMarker == "" {
		c.AddToCartMarker = d.AddToCartMarker
	}
	if c.CheckoutStepMarker == "" {
		c.CheckoutStepMarker = d.CheckoutStepMarker
	}
	if c.HelpCenterMarker == "" {
		c.HelpCenterMarker = d.HelpCenterMarker
	}
	return c
}

// Sink receives semantic events the moment the detector recognizes them.
// Implementations must not block; the delivery queue satisfies this.
type Sink interface {
	Submit(event Event)
}

// Click is a raw click signal. At defaults to the current time when zero so
// live embeddings can omit it while replays and tests supply their own.
type Click struct {
	Tag     string
	ID      string
	Classes []string
	At      time.Time
}

// Scroll is a raw scroll position sample.
type Scroll struct {
	Top            float64
	DocHeight      float64
	ViewportHeight float64
	At             time.Time
}

// Detector converts raw browser signals into semantic behavioral events and
// maintains the session-local detection state. All signal handlers are safe
// for concurrent use with the background inactivity poller.
type Detector struct {
	cfg       DetectorConfig
	sink      Sink
	accountID string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	session *Session
}

// NewDetector wires a detector to its session and event sink.
func NewDetector(accountID string, session *Session, sink Sink, cfg DetectorConfig, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:       cfg.withDefaults(),
		sink:      sink,
		accountID: accountID,
		logger:    logger.With("component", "sdk.detector", "session_id", session.ID),
		now:       time.Now,
		session:   session,
	}
}

// Start reports the initial session duration (zero is acceptable) and
// launches the inactivity poller. The poller stops when ctx is cancelled;
// in a page the context lives as long as the page does.
func (d *Detector) Start(ctx context.Context) {
	d.emitSessionDuration()
	go func() {
		ticker := time.NewTicker(d.cfg.InactivityPoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.checkInactivity(d.now())
			}
		}
	}()
}

// End reports the final session duration. Called at page teardown.
func (d *Detector) End() {
	d.emitSessionDuration()
}

// Identify attaches an email to the session; subsequent events carry it.
// No validation happens here; the collector decides what to do with it.
func (d *Detector) Identify(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session.IdentifiedEmail = email
}

// HandleClick reports the interaction, runs rage-click detection, and
// checks the commerce/support class markers.
func (d *Detector) HandleClick(click Click) {
	now := click.At
	if now.IsZero() {
		now = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	details := map[string]any{
		"tag":     click.Tag,
		"id":      click.ID,
		"classes": strings.Join(click.Classes, " "),
	}
	d.emitLocked(EventInteraction, details)

	// Sliding window: keep only clicks younger than the rage window, then
	// reset entirely once the threshold is crossed so each burst produces
	// exactly one rageClick.
	d.session.clicks = append(d.session.clicks, now)
	kept := d.session.clicks[:0]
	for _, ts := range d.session.clicks {
		if now.Sub(ts) < d.cfg.RageClickWindow {
			kept = append(kept, ts)
		}
	}
	d.session.clicks = kept
	if len(d.session.clicks) >= d.cfg.RageClickThreshold {
		d.emitLocked(EventRageClick, details)
		d.session.clicks = nil
	}

	if hasClass(click.Classes, d.cfg.AddToCartMarker) {
		// Fired on adding to cart, read optimistically as purchase intent.
		d.emitLocked(EventCartAbandonment, map[string]any{"message": "User added item to cart"})
	} else if hasClass(click.Classes, d.cfg.CheckoutStepMarker) {
		d.emitLocked(EventCheckoutProgress, map[string]any{"step": click.ID})
	}
	if hasClass(click.Classes, d.cfg.HelpCenterMarker) {
		d.emitLocked(EventHelpCenterVisit, map[string]any{"message": "User visited help center"})
	}

	d.session.LastInteraction = now
	d.session.Active = true
}

// HandleScroll updates the session's running scroll maximum and emits a
// scrollDepth event only on a strict increase. Depth never decreases
// within a session.
func (d *Detector) HandleScroll(scroll Scroll) {
	now := scroll.At
	if now.IsZero() {
		now = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	denom := scroll.DocHeight - scroll.ViewportHeight
	if denom <= 0 {
		return
	}
	percent := int(math.Round(scroll.Top / denom * 100))
	if percent > d.session.ScrollDepthMax {
		d.session.ScrollDepthMax = percent
		d.emitLocked(EventScrollDepth, map[string]any{"depth": percent})
	}

	d.session.LastInteraction = now
	d.session.Active = true
}

// HandleVisibility reports the page going hidden or visible.
func (d *Detector) HandleVisibility(hidden bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if hidden {
		d.session.Active = false
		d.emitLocked(EventUserInactive, map[string]any{"message": "User is inactive"})
	} else {
		d.session.Active = true
		d.emitLocked(EventUserActive, map[string]any{"message": "User is active"})
	}
}

// HandlePointerLeave reports exit intent when the cursor leaves through the
// top of the viewport.
func (d *Detector) HandlePointerLeave(x, y float64) {
	if y >= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emitLocked(EventExitIntent, map[string]any{"message": "User showed exit intent"})
}

// checkInactivity flips the session inactive after the dead-time threshold.
// The Active flag is consumed on transition, so a long idle stretch yields a
// single userInactive event rather than one per poll.
func (d *Detector) checkInactivity(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session.Active && now.Sub(d.session.LastInteraction) > d.cfg.InactivityTimeout {
		d.session.Active = false
		d.emitLocked(EventUserInactive, map[string]any{"message": "User is inactive"})
	}
}

func (d *Detector) emitSessionDuration() {
	d.mu.Lock()
	defer d.mu.Unlock()
	duration := d.now().Sub(d.session.StartTime).Milliseconds()
	d.emitLocked(EventSessionDuration, map[string]any{"duration": duration})
}

// emitLocked builds the immutable wire event and hands it to the sink.
// Callers hold d.mu.
func (d *Detector) emitLocked(eventType EventType, data map[string]any) {
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["deviceInfo"] = d.session.Device.payload()

	d.logger.Debug("event detected", "event_type", string(eventType))
	d.sink.Submit(Event{
		AccountID:   d.accountID,
		UserID:      d.session.ID,
		Type:        eventType,
		Payload:     payload,
		ClientEmail: d.session.IdentifiedEmail,
	})
}

func hasClass(classes []string, marker string) bool {
	for _, c := range classes {
		if c == marker {
			return true
		}
	}
	return false
}
