package models

// EntitlementDefinition is a named capability an App has defined (e.g.
// "pro", "no_ads").
type EntitlementDefinition struct {
	BaseModel
	AppID         string `json:"app_id" gorm:"not null;index"`
	EntitlementID string `json:"entitlement_id" gorm:"not null;size:80;index:idx_entitlement_app,unique"`
	Description   string `json:"description"`
}

func (EntitlementDefinition) TableName() string { return "entitlement_definitions" }

// ProductEntitlement maps a product id to the entitlement(s) it grants.
// When an App has configured none, the resolver falls back to a 1:1
// product-id-as-entitlement-id default.
type ProductEntitlement struct {
	BaseModel
	AppID         string `json:"app_id" gorm:"not null;index"`
	ProductID     string `json:"product_id" gorm:"not null;size:120;index:idx_product_entitlement,unique"`
	EntitlementID string `json:"entitlement_id" gorm:"not null;size:80;index:idx_product_entitlement,unique"`
}

func (ProductEntitlement) TableName() string { return "product_entitlements" }
