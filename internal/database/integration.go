package database

import "paycat.dev/gateway/internal/models"

// GetEnabledIntegrationsForApp loads every enabled analytics sink an app
// has configured.
func GetEnabledIntegrationsForApp(appID string) ([]models.Integration, error) {
	var integrations []models.Integration
	err := DB.Where("app_id = ? AND enabled = ?", appID, true).Find(&integrations).Error
	return integrations, err
}

// RecordIntegrationDelivery persists a best-effort observability row;
// errors are swallowed by the caller per the fan-out's never-block policy.
func RecordIntegrationDelivery(d *models.IntegrationDelivery) error {
	return DB.Create(d).Error
}
