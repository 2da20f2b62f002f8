package models

import "time"

// Subscriber is one real end-user within an App. Identified by a
// tenant-scoped external id whose format the core never interprets.
// Created on first receipt or explicit identify call; never
// auto-destroyed; admin erase cascades to subscriptions/transactions.
type Subscriber struct {
	BaseModel
	AppID      string    `json:"app_id" gorm:"not null;index:idx_subscriber_app_user,unique"`
	AppUserID  string    `json:"app_user_id" gorm:"not null;index:idx_subscriber_app_user,unique"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Attributes string    `json:"-" gorm:"type:text"` // JSON-encoded map[string]interface{}
}

func (Subscriber) TableName() string { return "subscribers" }
