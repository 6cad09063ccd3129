package sdk

// EventType names a semantic behavioral event. The set is closed; the
// collector gates each type by the account's subscription plan.
type EventType string

const (
	EventInteraction      EventType = "interaction"
	EventScrollDepth      EventType = "scrollDepth"
	EventSessionDuration  EventType = "sessionDuration"
	EventCartAbandonment  EventType = "cartAbandonment"
	EventCheckoutProgress EventType = "checkoutProgress"
	EventUserActive       EventType = "userActive"
	EventUserInactive     EventType = "userInactive"
	EventRageClick        EventType = "rageClick"
	EventHelpCenterVisit  EventType = "helpCenterVisit"
	EventExitIntent       EventType = "exitIntent"
	EventDeviceInfo       EventType = "deviceInfo"
)

// Event is an immutable behavioral record in the collector's wire format.
// Once built by the detector it is never mutated again; it is queued,
// possibly retried, and eventually delivered or dropped.
type Event struct {
	AccountID   string         `json:"accountId"`
	UserID      string         `json:"userId"`
	Type        EventType      `json:"eventType"`
	Payload     map[string]any `json:"payload"`
	ClientEmail string         `json:"clientEmail,omitempty"`
}
