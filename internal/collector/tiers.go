package collector

import "fmt"

// Tier allow-lists are strictly nested: basic ⊂ premium ⊂ enterprise.
var (
	basicEvents = []EventType{
		EventSessionDuration, EventInteraction, EventScrollDepth,
	}
	premiumEvents = append([]EventType{
		EventCartAbandonment, EventCheckoutProgress, EventUserActive, EventUserInactive,
	}, basicEvents...)
	enterpriseEvents = append([]EventType{
		EventRageClick, EventHelpCenterVisit, EventExitIntent, EventDeviceInfo,
	}, premiumEvents...)

	planEvents = map[Plan][]EventType{
		PlanBasic:      basicEvents,
		PlanPremium:    premiumEvents,
		PlanEnterprise: enterpriseEvents,
	}
)

// Allows reports whether the plan's entitlement covers the event type.
func (p Plan) Allows(eventType EventType) bool {
	for _, allowed := range planEvents[p] {
		if allowed == eventType {
			return true
		}
	}
	return false
}

// ParsePlan validates a plan name from the wire.
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanBasic, PlanPremium, PlanEnterprise:
		return Plan(s), nil
	}
	return "", fmt.Errorf("unknown plan %q", s)
}
