package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	AppPort          string
	DBDSN            string
	JWTSecret        string
	JWTExpiresMin    int
	GoogleClientID   string
	GoogleSecret     string
	GoogleRedirect   string
	FacebookAppID    string
	FacebookSecret   string
	FacebookRedirect string
	FrontendBaseURL  string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	MinRecharge           decimal.Decimal

	OpenAIAPIKey    string
	ProviderTimeout time.Duration

	CostPerMinute decimal.Decimal
	DemoMinutes   decimal.Decimal

	UploadDir          string
	MaxUploadSize      int64
	MaxDurationMinutes int
	AllowedFormats     []string
}

func Load() Config {
	expires, _ := strconv.Atoi(get("JWT_EXPIRES_MIN", "10080"))
	maxUpload, _ := strconv.ParseInt(get("MAX_UPLOAD_SIZE", "104857600"), 10, 64)
	maxDuration, _ := strconv.Atoi(get("MAX_DURATION_MINUTES", "120"))
	providerTimeout, _ := strconv.Atoi(get("PROVIDER_TIMEOUT_SEC", "600"))

	return Config{
		AppPort:          get("APP_PORT", "8080"),
		DBDSN:            must("DB_DSN"),
		JWTSecret:        must("JWT_SECRET"),
		JWTExpiresMin:    expires,
		GoogleClientID:   get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:     get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:   get("GOOGLE_REDIRECT_URL", ""),
		FacebookAppID:    get("FACEBOOK_APP_ID", ""),
		FacebookSecret:   get("FACEBOOK_APP_SECRET", ""),
		FacebookRedirect: get("FACEBOOK_REDIRECT_URL", ""),
		FrontendBaseURL:  get("FRONTEND_BASE_URL", "http://localhost:3000"),

		RazorpayKeyID:         get("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     get("RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: get("RAZORPAY_WEBHOOK_SECRET", ""),
		MinRecharge:           mustDecimal("MIN_RECHARGE", "10"),

		OpenAIAPIKey:    get("OPENAI_API_KEY", ""),
		ProviderTimeout: time.Duration(providerTimeout) * time.Second,

		CostPerMinute: mustDecimal("COST_PER_MINUTE", "1"),
		DemoMinutes:   mustDecimal("DEMO_MINUTES", "10"),

		UploadDir:          get("UPLOAD_DIR", "./uploads"),
		MaxUploadSize:      maxUpload,
		MaxDurationMinutes: maxDuration,
		AllowedFormats:     []string{"mp3", "wav", "m4a", "flac", "ogg", "webm"},
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

func mustDecimal(k, def string) decimal.Decimal {
	d, err := decimal.NewFromString(get(k, def))
	if err != nil {
		panic("invalid decimal env " + k + ": " + err.Error())
	}
	return d
}
