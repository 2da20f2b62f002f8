package database

import (
	"encoding/json"
	"fmt"

	"paycat.dev/gateway/internal/models"

	"gorm.io/gorm"
)

// GetAppByID returns an active App by its tenant id.
func GetAppByID(appID string) (*models.App, error) {
	var app models.App
	if err := DB.Where("app_id = ? AND is_active = ?", appID, true).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// GetAppByAPIKey returns an active App by its public API key.
func GetAppByAPIKey(apiKey string) (*models.App, error) {
	var app models.App
	if err := DB.Where("api_key = ? AND is_active = ?", apiKey, true).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// GetAppByPackageName finds the App whose GoogleConfig.PackageName
// matches, used to route RTDN pushes (which carry no app id) to a
// tenant.
func GetAppByPackageName(packageName string) (*models.App, error) {
	var apps []models.App
	if err := DB.Where("is_active = ?", true).Find(&apps).Error; err != nil {
		return nil, err
	}
	for i := range apps {
		cfg, err := DecodeProviderConfig(&apps[i])
		if err != nil {
			continue
		}
		if cfg.Google != nil && cfg.Google.PackageName == packageName {
			return &apps[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// GetAppByBundleID finds the App whose AppleConfig.BundleID matches,
// used when an Apple notification's envelope carries bundleId but the
// path has no app id segment.
func GetAppByBundleID(bundleID string) (*models.App, error) {
	var apps []models.App
	if err := DB.Where("is_active = ?", true).Find(&apps).Error; err != nil {
		return nil, err
	}
	for i := range apps {
		cfg, err := DecodeProviderConfig(&apps[i])
		if err != nil {
			continue
		}
		if cfg.Apple != nil && cfg.Apple.BundleID == bundleID {
			return &apps[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// GetAppByAmazonAppID finds the App whose AmazonConfig.AppID matches the
// RTDN envelope's appPackageName. Amazon's SNS signature is signed by
// AWS's own certificate rather than a per-tenant secret, so unlike
// Stripe/Paddle there is nothing to try-until-match against; AppID is
// the closest tenant-scoping field the notification carries.
func GetAppByAmazonAppID(appID string) (*models.App, error) {
	var apps []models.App
	if err := DB.Where("is_active = ?", true).Find(&apps).Error; err != nil {
		return nil, err
	}
	for i := range apps {
		cfg, err := DecodeProviderConfig(&apps[i])
		if err != nil {
			continue
		}
		if cfg.Amazon != nil && cfg.Amazon.AppID == appID {
			return &apps[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ActiveAppsWithStripe returns every active app that has a Stripe
// configuration, for the inbound webhook handler to try each tenant's
// signing secret in turn until one verifies.
func ActiveAppsWithStripe() ([]*models.App, error) {
	var apps []models.App
	if err := DB.Where("is_active = ?", true).Find(&apps).Error; err != nil {
		return nil, err
	}
	var out []*models.App
	for i := range apps {
		cfg, err := DecodeProviderConfig(&apps[i])
		if err != nil {
			continue
		}
		if cfg.Stripe != nil {
			out = append(out, &apps[i])
		}
	}
	return out, nil
}

// ActiveAppsWithPaddle returns every active app that has a Paddle
// configuration, for the inbound webhook handler to try each tenant's
// public key in turn until one verifies the p_signature.
func ActiveAppsWithPaddle() ([]*models.App, error) {
	var apps []models.App
	if err := DB.Where("is_active = ?", true).Find(&apps).Error; err != nil {
		return nil, err
	}
	var out []*models.App
	for i := range apps {
		cfg, err := DecodeProviderConfig(&apps[i])
		if err != nil {
			continue
		}
		if cfg.Paddle != nil {
			out = append(out, &apps[i])
		}
	}
	return out, nil
}

// DecodeProviderConfig unmarshals an App's stored provider credential
// blobs.
func DecodeProviderConfig(app *models.App) (*models.ProviderConfig, error) {
	cfg := &models.ProviderConfig{}
	if app.ProviderConfig == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(app.ProviderConfig), cfg); err != nil {
		return nil, fmt.Errorf("database: failed to decode provider config for app %s: %w", app.AppID, err)
	}
	return cfg, nil
}

// EncodeProviderConfig marshals and stores an App's provider config.
func EncodeProviderConfig(app *models.App, cfg *models.ProviderConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("database: failed to encode provider config: %w", err)
	}
	app.ProviderConfig = string(b)
	return nil
}
