package models

// Platform is the closed set of billing providers the gateway ingests.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformStripe  Platform = "stripe"
	PlatformPaddle  Platform = "paddle"
	PlatformAmazon  Platform = "amazon"
)

// PlatformPriority breaks ties when selecting a primary subscription.
func (p Platform) Priority() int {
	switch p {
	case PlatformIOS:
		return 3
	case PlatformAndroid:
		return 2
	case PlatformStripe:
		return 1
	default:
		return 0
	}
}

// AppleConfig carries the App Store Server API / notification credentials
// for one tenant.
type AppleConfig struct {
	KeyID      string `json:"key_id"`
	IssuerID   string `json:"issuer_id"`
	BundleID   string `json:"bundle_id"`
	PrivateKey string `json:"private_key"` // PKCS8 PEM
}

// GoogleConfig carries the Android Publisher service-account credentials.
type GoogleConfig struct {
	PackageName         string `json:"package_name"`
	ServiceAccountEmail string `json:"service_account_email"`
	ServicePrivateKey   string `json:"service_private_key"` // PKCS8 PEM
	PushEndpointURL     string `json:"push_endpoint_url"`
}

// StripeConfig carries the Stripe secret + webhook signing key.
type StripeConfig struct {
	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret"`
}

// PaddleConfig carries Paddle vendor credentials and the RSA public key
// used to verify the PHP-serialized webhook signature.
type PaddleConfig struct {
	VendorID    string `json:"vendor_id"`
	APIKey      string `json:"api_key"`
	PublicKey   string `json:"public_key"` // PEM
	SandboxFlag bool   `json:"sandbox"`
}

// AmazonConfig carries Amazon Appstore credentials.
type AmazonConfig struct {
	AppID        string `json:"app_id"`
	SharedSecret string `json:"shared_secret"`
	SandboxFlag  bool   `json:"sandbox"`
}

// ProviderConfig is the full set of per-provider credential blobs stored
// on an App. At most one populated struct is meaningful per provider; an
// App may configure any subset of the five.
type ProviderConfig struct {
	Apple  *AppleConfig  `json:"apple,omitempty"`
	Google *GoogleConfig `json:"google,omitempty"`
	Stripe *StripeConfig `json:"stripe,omitempty"`
	Paddle *PaddleConfig `json:"paddle,omitempty"`
	Amazon *AmazonConfig `json:"amazon,omitempty"`
}

// App is a tenant: one customer of the gateway, identified by an opaque
// id and authenticated via an API key. Created by an admin surface that
// is out of this core's scope; mutated rarely; never destroyed by the
// core itself.
type App struct {
	BaseModel
	AppID          string `json:"app_id" gorm:"uniqueIndex;not null"`
	Name           string `json:"name" gorm:"not null"`
	APIKey         string `json:"api_key" gorm:"uniqueIndex;not null"`
	IsActive       bool   `json:"is_active" gorm:"default:true"`
	ProviderConfig string `json:"-" gorm:"type:text"` // JSON-encoded ProviderConfig
}

func (App) TableName() string { return "apps" }
