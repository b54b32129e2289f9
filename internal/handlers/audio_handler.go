package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/numanijaz119/Audio-to-text/internal/services/audio"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

type AudioHandler struct {
	Audio  *audio.Service
	Wallet *wallet.Service
}

func NewAudioHandler(a *audio.Service, w *wallet.Service) *AudioHandler {
	return &AudioHandler{Audio: a, Wallet: w}
}

// Upload stores the file, probes its duration and returns the metadata
// together with the estimated transcription cost.
func (h *AudioHandler) Upload(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No file uploaded",
		})
	}

	af, err := h.Audio.Store(c.UserContext(), uid, fh.Filename, fh.Size, func(dst string) error {
		return c.SaveFile(fh, dst)
	})
	if err != nil {
		return audioError(c, err)
	}

	est, sufficient, err := h.Wallet.EstimateCharge(uid, af.Duration)
	if err != nil {
		return walletError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"audio_file":           af,
			"estimated_cost":       est.Cost,
			"billed_minutes":       est.BilledMinutes,
			"demo_minutes_applied": est.DemoMinutesApplied,
			"sufficient_balance":   sufficient,
		},
	})
}

func (h *AudioHandler) List(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	files, err := h.Audio.List(uid)
	if err != nil {
		log.Println("Error listing audio files:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal error",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    files,
	})
}

func (h *AudioHandler) Delete(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	audioID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid audio id",
		})
	}

	if err := h.Audio.Delete(uid, audioID); err != nil {
		return audioError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Audio file deleted",
	})
}

func audioError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Unsupported audio format",
		})
	case errors.Is(err, audio.ErrFileTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"success": false,
			"message": "File exceeds the upload size limit",
		})
	case errors.Is(err, audio.ErrDurationTooLong):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Audio exceeds the maximum duration",
		})
	case errors.Is(err, audio.ErrNoDuration):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Could not read audio duration",
		})
	case errors.Is(err, audio.ErrAudioNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Audio file not found",
		})
	default:
		log.Println("Audio error:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal error",
		})
	}
}
