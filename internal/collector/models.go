package collector

import "time"

// Plan is an account's subscription level; it gates which event types the
// account may submit.
type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// EventType names a semantic behavioral event submitted by the tracking SDK.
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

// Account owns submitted events. AccessKey authenticates dashboard reads.
type Account struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Plan      Plan      `json:"plan"`
	AccessKey string    `json:"accessKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event is one append-only row in the event store. Timestamp is assigned at
// ingestion when the client did not provide one.
type Event struct {
	ID          int64          `json:"id,omitempty"`
	AccountID   string         `json:"accountId"`
	UserID      string         `json:"userId"`
	Type        EventType      `json:"eventType"`
	Payload     map[string]any `json:"payload"`
	ClientEmail string         `json:"clientEmail,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// UserScore pairs a user with their churn score for the bulk listing.
type UserScore struct {
	UserID     string  `json:"userID"`
	Email      string  `json:"email,omitempty"`
	ChurnScore float64 `json:"churnScore"`
}

// ChurnAlert describes a user crossing the risk threshold.
type ChurnAlert struct {
	AccountID string  `json:"accountId"`
	UserID    string  `json:"userId"`
	Score     float64 `json:"churnScore"`
	Message   string  `json:"message"`
}

// EventFilter narrows dashboard stat and overview queries. End is inclusive
// through the end of its day when it carries no time component.
type EventFilter struct {
	EventType EventType
	UserID    string
	Start     *time.Time
	End       *time.Time
}

// UserEventCount ranks users by activity volume.
type UserEventCount struct {
	UserID     string `json:"userID"`
	EventCount int    `json:"eventCount"`
}

// Stats aggregates an account's event history for the dashboard.
type Stats struct {
	TotalEvents        int              `json:"totalEvents"`
	TotalSessions      int              `json:"totalSessions"`
	AvgSessionDuration int64            `json:"avgSessionDuration"`
	AvgScrollDepth     int              `json:"avgScrollDepth"`
	EventCounts        map[string]int   `json:"eventCounts"`
	TopUsers           []UserEventCount `json:"topUsers"`
}
