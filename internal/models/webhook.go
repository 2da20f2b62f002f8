package models

import "time"

// Webhook is a customer-registered outbound endpoint.
type Webhook struct {
	BaseModel
	AppID       string `json:"app_id" gorm:"not null;index"`
	URL         string `json:"url" gorm:"not null"`
	Secret      string `json:"-" gorm:"size:64;not null"`     // 32-byte hex
	EventFilter string `json:"event_filter" gorm:"type:text"` // "*" or comma-separated DomainEventType list
	IsActive    bool   `json:"is_active" gorm:"default:true"`
}

func (Webhook) TableName() string { return "webhooks" }

// Matches reports whether this webhook's filter accepts eventType.
func (w *Webhook) Matches(eventType string) bool {
	if w.EventFilter == "" || w.EventFilter == "*" {
		return true
	}
	for _, want := range splitCSV(w.EventFilter) {
		if want == eventType {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// WebhookDelivery is one attempt record per (webhook, event). Invariant:
// delivered_at and next_retry_at are never both non-null; attempts <= 7.
type WebhookDelivery struct {
	BaseModel
	WebhookID uint   `json:"webhook_id" gorm:"not null;index"`
	EventID   string `json:"event_id" gorm:"size:64;index"`
	EventType string `json:"event_type" gorm:"size:40;not null"`
	Payload   string `json:"payload" gorm:"type:text;not null"`

	ResponseStatus int    `json:"response_status"`
	ResponseBody   string `json:"response_body" gorm:"type:text"` // truncated to 1000 bytes

	Attempts int `json:"attempts" gorm:"not null;default:0"`

	DeliveredAt *time.Time `json:"delivered_at" gorm:"index"`
	NextRetryAt *time.Time `json:"next_retry_at" gorm:"index"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }
