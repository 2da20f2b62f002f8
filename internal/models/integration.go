package models

import "time"

// IntegrationType enumerates the supported analytics/fan-out sinks.
type IntegrationType string

const (
	IntegrationSlack     IntegrationType = "slack"
	IntegrationAmplitude IntegrationType = "amplitude"
	IntegrationMixpanel  IntegrationType = "mixpanel"
	IntegrationSegment   IntegrationType = "segment"
	IntegrationFirebase  IntegrationType = "firebase"
	IntegrationBraze     IntegrationType = "braze"
	IntegrationAppsFlyer IntegrationType = "appsflyer"
	IntegrationAdjust    IntegrationType = "adjust"
	IntegrationGeneric   IntegrationType = "generic_webhook"
)

// Integration is a third-party analytics sink configured by a tenant.
type Integration struct {
	BaseModel
	AppID       string          `json:"app_id" gorm:"not null;index"`
	Type        IntegrationType `json:"type" gorm:"size:30;not null"`
	Name        string          `json:"name"`
	Config      string          `json:"-" gorm:"type:text"` // JSON, provider-specific
	Enabled     bool            `json:"enabled" gorm:"default:true"`
	EventFilter string          `json:"event_filter" gorm:"type:text"`
}

func (Integration) TableName() string { return "integrations" }

func (i *Integration) Matches(eventType string) bool {
	w := Webhook{EventFilter: i.EventFilter}
	return w.Matches(eventType)
}

// IntegrationDelivery records a best-effort fan-out attempt. Never
// retried; kept for observability only.
type IntegrationDelivery struct {
	BaseModel
	IntegrationID  uint       `json:"integration_id" gorm:"not null;index"`
	EventID        string     `json:"event_id" gorm:"size:64;index"`
	EventType      string     `json:"event_type" gorm:"size:40"`
	Success        bool       `json:"success"`
	ResponseStatus int        `json:"response_status"`
	ResponseBody   string     `json:"response_body" gorm:"type:text"`
	ErrorMessage   string     `json:"error_message" gorm:"type:text"`
	SentAt         *time.Time `json:"sent_at"`
}

func (IntegrationDelivery) TableName() string { return "integration_deliveries" }
