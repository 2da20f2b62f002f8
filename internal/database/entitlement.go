package database

import "paycat.dev/gateway/internal/models"

// GetProductEntitlementMappings loads an app's configured product →
// entitlement mappings. An empty result tells the resolver to fall back
// to the 1:1 product-id-as-entitlement-id default.
func GetProductEntitlementMappings(appID string) ([]models.ProductEntitlement, error) {
	var mappings []models.ProductEntitlement
	err := DB.Where("app_id = ?", appID).Find(&mappings).Error
	return mappings, err
}
