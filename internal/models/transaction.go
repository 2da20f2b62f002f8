package models

import "time"

// TransactionType is the closed ledger-entry vocabulary.
type TransactionType string

const (
	TxnInitialPurchase TransactionType = "initial_purchase"
	TxnRenewal         TransactionType = "renewal"
	TxnRefund          TransactionType = "refund"
	TxnUpgrade         TransactionType = "upgrade"
	TxnDowngrade       TransactionType = "downgrade"
)

// Transaction is an append-only ledger entry. Never mutated after
// creation except to mark a refund against an existing transaction id.
type Transaction struct {
	BaseModel
	SubscriptionID uint   `json:"subscription_id" gorm:"not null;index"`
	AppID          string `json:"app_id" gorm:"not null;index"`

	TransactionID         string          `json:"transaction_id" gorm:"size:200;not null;uniqueIndex"`
	OriginalTransactionID string          `json:"original_transaction_id" gorm:"size:200;index"`
	ProductID             string          `json:"product_id" gorm:"size:120"`
	Platform              Platform        `json:"platform" gorm:"size:20"`
	Type                  TransactionType `json:"type" gorm:"size:20;not null"`

	PurchaseDate time.Time  `json:"purchase_date"`
	ExpiresDate  *time.Time `json:"expires_date"`

	// RevenueAmount is signed, minor units (negative on refund).
	RevenueAmount int64  `json:"revenue_amount"`
	Currency      string `json:"currency" gorm:"size:3"`

	IsRefunded bool       `json:"is_refunded" gorm:"default:false"`
	RefundedAt *time.Time `json:"refunded_at"`

	RawPayload string `json:"-" gorm:"type:text"`
}

func (Transaction) TableName() string { return "transactions" }
