package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	DB  *gorm.DB
	RDB *redis.Client

	// configuration presence, reported so a misdeployed instance is
	// visible before the first payment or transcription fails
	GatewayConfigured  bool
	ProviderConfigured bool
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client, gatewayConfigured, providerConfigured bool) *HealthHandler {
	return &HealthHandler{
		DB:                 db,
		RDB:                rdb,
		GatewayConfigured:  gatewayConfigured,
		ProviderConfigured: providerConfigured,
	}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	sqlDB, err := h.DB.DB()
	if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		dbStatus = "down"
	}

	redisStatus := "ok"
	if err := h.RDB.Ping(c.UserContext()).Err(); err != nil {
		redisStatus = "down"
	}

	status := fiber.StatusOK
	if dbStatus != "ok" || redisStatus != "ok" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"success": status == fiber.StatusOK,
		"data": fiber.Map{
			"database":            dbStatus,
			"redis":               redisStatus,
			"payment_gateway":     configState(h.GatewayConfigured),
			"transcription_model": configState(h.ProviderConfigured),
		},
	})
}

func configState(configured bool) string {
	if configured {
		return "configured"
	}
	return "not configured"
}
