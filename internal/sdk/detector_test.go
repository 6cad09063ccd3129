package sdk

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Submit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) ofType(eventType EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestDetector(t *testing.T) (*Detector, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	device := DetectDevice("Mozilla/5.0 (Windows NT 10.0)", "Win32", "en-US")
	session := NewSession(MemoryStorage{}, device, time.Now())
	detector := NewDetector("client_test", session, sink, DefaultDetectorConfig(), slog.New(slog.DiscardHandler))
	return detector, sink
}

func TestClickEmitsInteraction(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandleClick(Click{Tag: "BUTTON", ID: "cta", Classes: []string{"primary", "large"}})

	interactions := sink.ofType(EventInteraction)
	if len(interactions) != 1 {
		t.Fatalf("Expected 1 interaction event, got %d", len(interactions))
	}
	event := interactions[0]
	if event.AccountID != "client_test" {
		t.Errorf("Expected accountId client_test, got %s", event.AccountID)
	}
	if event.UserID == "" {
		t.Error("Expected a session-derived userId")
	}
	if event.Payload["tag"] != "BUTTON" || event.Payload["id"] != "cta" {
		t.Errorf("Unexpected payload: %v", event.Payload)
	}
	if event.Payload["classes"] != "primary large" {
		t.Errorf("Expected joined class list, got %v", event.Payload["classes"])
	}
	if _, ok := event.Payload["deviceInfo"]; !ok {
		t.Error("Expected deviceInfo attached to payload")
	}
}

func TestRageClickOncePerThresholdCrossing(t *testing.T) {
	detector, sink := newTestDetector(t)
	base := time.Now()

	// A burst of five rapid clicks crosses the threshold once (window is
	// cleared on detection) and the two leftovers stay below it.
	for i := 0; i < 5; i++ {
		detector.HandleClick(Click{Tag: "BUTTON", At: base.Add(time.Duration(i*100) * time.Millisecond)})
	}

	if got := len(sink.ofType(EventRageClick)); got != 1 {
		t.Fatalf("Expected exactly 1 rageClick for one burst, got %d", got)
	}
	if got := len(sink.ofType(EventInteraction)); got != 5 {
		t.Errorf("Expected 5 interaction events, got %d", got)
	}
}

func TestRageClickSecondBurstFiresAgain(t *testing.T) {
	detector, sink := newTestDetector(t)
	base := time.Now()

	for i := 0; i < 3; i++ {
		detector.HandleClick(Click{At: base.Add(time.Duration(i*100) * time.Millisecond)})
	}
	// Second burst well after the first.
	later := base.Add(10 * time.Second)
	for i := 0; i < 3; i++ {
		detector.HandleClick(Click{At: later.Add(time.Duration(i*100) * time.Millisecond)})
	}

	if got := len(sink.ofType(EventRageClick)); got != 2 {
		t.Fatalf("Expected 2 rageClick events for two bursts, got %d", got)
	}
}

func TestRageClickWindowPrunesOldTimestamps(t *testing.T) {
	detector, sink := newTestDetector(t)
	base := time.Now()

	// Three clicks spread over 1.2s: the first has left the 1s window by
	// the time the third lands, so no rage click.
	detector.HandleClick(Click{At: base})
	detector.HandleClick(Click{At: base.Add(600 * time.Millisecond)})
	detector.HandleClick(Click{At: base.Add(1200 * time.Millisecond)})

	if got := len(sink.ofType(EventRageClick)); got != 0 {
		t.Fatalf("Expected no rageClick with pruned window, got %d", got)
	}
	detector.mu.Lock()
	for _, ts := range detector.session.clicks {
		if base.Add(1200 * time.Millisecond).Sub(ts) >= detector.cfg.RageClickWindow {
			t.Errorf("Window retained timestamp older than the configured window: %v", ts)
		}
	}
	detector.mu.Unlock()
}

func TestScrollDepthMonotonic(t *testing.T) {
	detector, sink := newTestDetector(t)

	scroll := func(top float64) {
		detector.HandleScroll(Scroll{Top: top, DocHeight: 2800, ViewportHeight: 800})
	}
	scroll(800)  // 40%
	scroll(600)  // 30% — below max, no event
	scroll(1200) // 60%

	depths := sink.ofType(EventScrollDepth)
	if len(depths) != 2 {
		t.Fatalf("Expected 2 scrollDepth events, got %d", len(depths))
	}
	if depths[0].Payload["depth"] != 40 || depths[1].Payload["depth"] != 60 {
		t.Errorf("Expected depths 40 then 60, got %v and %v", depths[0].Payload["depth"], depths[1].Payload["depth"])
	}
	detector.mu.Lock()
	if detector.session.ScrollDepthMax != 60 {
		t.Errorf("Expected running max 60, got %d", detector.session.ScrollDepthMax)
	}
	detector.mu.Unlock()
}

func TestScrollDepthGuardsNonPositiveDenominator(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandleScroll(Scroll{Top: 100, DocHeight: 700, ViewportHeight: 800})

	if got := len(sink.ofType(EventScrollDepth)); got != 0 {
		t.Fatalf("Expected no event when document fits the viewport, got %d", got)
	}
}

func TestVisibilityTransitions(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandleVisibility(true)
	if got := len(sink.ofType(EventUserInactive)); got != 1 {
		t.Fatalf("Expected userInactive on hide, got %d", got)
	}
	detector.mu.Lock()
	active := detector.session.Active
	detector.mu.Unlock()
	if active {
		t.Error("Expected session inactive after hide")
	}

	detector.HandleVisibility(false)
	if got := len(sink.ofType(EventUserActive)); got != 1 {
		t.Fatalf("Expected userActive on show, got %d", got)
	}
}

func TestInactivityCheckSingleTransition(t *testing.T) {
	detector, sink := newTestDetector(t)
	base := time.Now()

	detector.HandleClick(Click{At: base})
	idle := base.Add(45 * time.Second)

	detector.checkInactivity(idle)
	detector.checkInactivity(idle.Add(5 * time.Second))
	detector.checkInactivity(idle.Add(10 * time.Second))

	if got := len(sink.ofType(EventUserInactive)); got != 1 {
		t.Fatalf("Expected a single userInactive transition, got %d", got)
	}
}

func TestInactivityCheckBelowThreshold(t *testing.T) {
	detector, sink := newTestDetector(t)
	base := time.Now()

	detector.HandleClick(Click{At: base})
	detector.checkInactivity(base.Add(10 * time.Second))

	if got := len(sink.ofType(EventUserInactive)); got != 0 {
		t.Fatalf("Expected no userInactive inside dead time, got %d", got)
	}
}

func TestExitIntentTopOnly(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandlePointerLeave(300, 20)
	if got := len(sink.ofType(EventExitIntent)); got != 0 {
		t.Fatalf("Expected no exitIntent for a side exit, got %d", got)
	}

	detector.HandlePointerLeave(300, -4)
	if got := len(sink.ofType(EventExitIntent)); got != 1 {
		t.Fatalf("Expected exitIntent for a top exit, got %d", got)
	}
}

// The cartAbandonment name is historical: the event fires on *adding* to
// cart and is read as purchase intent downstream.
func TestAddToCartEmitsCartAbandonment(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandleClick(Click{Tag: "BUTTON", ID: "buy-now", Classes: []string{"add-to-cart"}})

	carts := sink.ofType(EventCartAbandonment)
	if len(carts) != 1 {
		t.Fatalf("Expected 1 cartAbandonment on add-to-cart click, got %d", len(carts))
	}
	if carts[0].Payload["message"] != "User added item to cart" {
		t.Errorf("Unexpected message: %v", carts[0].Payload["message"])
	}
}

func TestCheckoutStepCarriesElementID(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandleClick(Click{Tag: "BUTTON", ID: "step-2", Classes: []string{"checkout-step"}})

	steps := sink.ofType(EventCheckoutProgress)
	if len(steps) != 1 {
		t.Fatalf("Expected 1 checkoutProgress event, got %d", len(steps))
	}
	if steps[0].Payload["step"] != "step-2" {
		t.Errorf("Expected step step-2, got %v", steps[0].Payload["step"])
	}
}

func TestHelpCenterClick(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandleClick(Click{Tag: "A", ID: "faq", Classes: []string{"help-center-link"}})

	if got := len(sink.ofType(EventHelpCenterVisit)); got != 1 {
		t.Fatalf("Expected 1 helpCenterVisit event, got %d", got)
	}
}

func TestIdentifyAttachesEmailToSubsequentEvents(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.HandleClick(Click{Tag: "BUTTON"})
	detector.Identify("jane@example.com")
	detector.HandleClick(Click{Tag: "BUTTON"})

	interactions := sink.ofType(EventInteraction)
	if len(interactions) != 2 {
		t.Fatalf("Expected 2 interactions, got %d", len(interactions))
	}
	if interactions[0].ClientEmail != "" {
		t.Errorf("Expected no email before identify, got %s", interactions[0].ClientEmail)
	}
	if interactions[1].ClientEmail != "jane@example.com" {
		t.Errorf("Expected email after identify, got %s", interactions[1].ClientEmail)
	}
}

func TestSessionDurationOnStartAndEnd(t *testing.T) {
	detector, sink := newTestDetector(t)

	detector.emitSessionDuration()
	detector.End()

	durations := sink.ofType(EventSessionDuration)
	if len(durations) != 2 {
		t.Fatalf("Expected sessionDuration at init and teardown, got %d", len(durations))
	}
	for _, e := range durations {
		if _, ok := e.Payload["duration"].(int64); !ok {
			t.Errorf("Expected millisecond duration payload, got %T", e.Payload["duration"])
		}
	}
}

func TestSessionIDReusedAcrossPageLoads(t *testing.T) {
	storage := MemoryStorage{}
	device := DetectDevice("agent", "platform", "en")

	first := NewSession(storage, device, time.Now())
	second := NewSession(storage, device, time.Now())

	if first.ID == "" {
		t.Fatal("Expected a generated session id")
	}
	if first.ID != second.ID {
		t.Errorf("Expected the stored id to be reused, got %s and %s", first.ID, second.ID)
	}
}
