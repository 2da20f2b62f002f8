package models

// ProcessedNotification is the idempotency witness for inbound store
// notifications. Primary uniqueness key is (app_id, platform,
// notification_uuid); see internal/idempotency.
type ProcessedNotification struct {
	BaseModel
	AppID            string   `json:"app_id" gorm:"not null;index:idx_notif_dedup,unique"`
	Platform         Platform `json:"platform" gorm:"size:20;not null;index:idx_notif_dedup,unique"`
	NotificationUUID string   `json:"notification_uuid" gorm:"size:200;not null;index:idx_notif_dedup,unique"`
	NotificationType string   `json:"notification_type" gorm:"size:60"`
}

func (ProcessedNotification) TableName() string { return "processed_notifications" }
