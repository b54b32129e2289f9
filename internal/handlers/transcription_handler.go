package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/numanijaz119/Audio-to-text/internal/models"
	"github.com/numanijaz119/Audio-to-text/internal/services/transcription"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

type TranscriptionHandler struct {
	Jobs *transcription.Service
}

func NewTranscriptionHandler(j *transcription.Service) *TranscriptionHandler {
	return &TranscriptionHandler{Jobs: j}
}

type createTranscriptionRequest struct {
	AudioFileID string `json:"audio_file_id"`
	Language    string `json:"language"`
}

// Create charges the wallet and queues the transcription. The charge
// happens first, so a failed charge leaves no job behind.
func (h *TranscriptionHandler) Create(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req createTranscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	audioID, err := uuid.Parse(req.AudioFileID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid audio_file_id",
		})
	}

	language := models.Language(req.Language)
	switch language {
	case "":
		language = models.LanguageAuto
	case models.LanguageAuto, models.LanguageEnglish, models.LanguageHindi:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Unsupported language",
		})
	}

	job, err := h.Jobs.Submit(uid, audioID, language)
	if err != nil {
		switch {
		case errors.Is(err, transcription.ErrAudioNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Audio file not found",
			})
		case errors.Is(err, wallet.ErrInsufficientFunds):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"success": false,
				"message": "Insufficient balance, please recharge",
			})
		case errors.Is(err, wallet.ErrBusy):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Wallet busy, please retry",
			})
		default:
			log.Println("Error submitting transcription:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Internal error",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    job,
	})
}

func (h *TranscriptionHandler) Get(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid transcription id",
		})
	}

	job, err := h.Jobs.Get(uid, jobID)
	if err != nil {
		return transcriptionError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    job,
	})
}

func (h *TranscriptionHandler) List(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	jobs, err := h.Jobs.List(uid, historyFilter(c))
	if err != nil {
		log.Println("Error listing transcriptions:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal error",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    jobs,
	})
}

func (h *TranscriptionHandler) Delete(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid transcription id",
		})
	}

	if err := h.Jobs.Delete(uid, jobID); err != nil {
		return transcriptionError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Transcription deleted",
	})
}

// Download serves the completed transcript as a text file attachment.
func (h *TranscriptionHandler) Download(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid transcription id",
		})
	}

	content, filename, err := h.Jobs.DownloadContent(uid, jobID)
	if err != nil {
		return transcriptionError(c, err)
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.Send(content)
}

// ExportCSV downloads the filtered history as a CSV file.
func (h *TranscriptionHandler) ExportCSV(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	content, err := h.Jobs.ExportCSV(uid, historyFilter(c))
	if err != nil {
		log.Println("Error exporting transcriptions:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal error",
		})
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="transcriptions.csv"`)
	c.Set(fiber.HeaderContentType, "text/csv")
	return c.Send(content)
}

func historyFilter(c *fiber.Ctx) transcription.HistoryFilter {
	filter := transcription.HistoryFilter{
		Language: c.Query("language"),
		Status:   c.Query("status"),
	}
	if from := c.Query("date_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = &t
		}
	}
	if to := c.Query("date_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			end := t.Add(24 * time.Hour)
			filter.DateTo = &end
		}
	}
	return filter
}

func transcriptionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, transcription.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Transcription not found",
		})
	case errors.Is(err, transcription.ErrNotCompleted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Transcription is not completed yet",
		})
	default:
		log.Println("Transcription error:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal error",
		})
	}
}
