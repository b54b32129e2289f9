// Package transcription owns the job state machine: pending ->
// processing -> completed/failed. Every transition is tied to a ledger
// operation: the wallet is charged before the job row exists, and a
// failure always carries a refund.
package transcription

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/numanijaz119/Audio-to-text/internal/models"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

var (
	ErrAudioNotFound = errors.New("audio file not found")
	ErrJobNotFound   = errors.New("transcription not found")
	ErrNotCompleted  = errors.New("transcription is not completed")
)

// Notifier pushes job status changes to connected clients. Optional.
type Notifier interface {
	NotifyJobUpdate(userID uuid.UUID, job *models.Transcription)
}

type Service struct {
	DB              *gorm.DB
	Wallet          *wallet.Service
	Provider        Provider
	ProviderTimeout time.Duration
	Notifier        Notifier
}

func NewService(db *gorm.DB, walletSvc *wallet.Service, provider Provider, providerTimeout time.Duration) *Service {
	return &Service{
		DB:              db,
		Wallet:          walletSvc,
		Provider:        provider,
		ProviderTimeout: providerTimeout,
	}
}

// Submit charges the wallet for the referenced audio file and, only on a
// successful charge, creates the job and dispatches it to the provider.
// A failed charge creates no job row. The cost is frozen on the job here
// and never recomputed.
func (s *Service) Submit(userID, audioFileID uuid.UUID, language models.Language) (*models.Transcription, error) {
	var audio models.AudioFile
	err := s.DB.Where("id = ? AND user_id = ?", audioFileID, userID).First(&audio).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAudioNotFound
	}
	if err != nil {
		return nil, err
	}

	jobID := uuid.New()
	_, cost, err := s.Wallet.Charge(userID, audio.Duration, jobID)
	if err != nil {
		return nil, err
	}

	job := models.Transcription{
		ID:          jobID,
		UserID:      userID,
		AudioFileID: audio.ID,
		Language:    language,
		Status:      models.StatusPending,
		Duration:    audio.Duration,
		Cost:        cost,
	}
	if err := s.DB.Create(&job).Error; err != nil {
		// The charge went through but the job cannot exist; give the money
		// back rather than leave an orphaned debit.
		if _, rerr := s.Wallet.Refund(userID, jobID); rerr != nil {
			log.Printf("refund after job create failure: %v", rerr)
		}
		return nil, err
	}

	if err := s.DB.Model(&job).Update("status", models.StatusProcessing).Error; err != nil {
		return nil, err
	}
	job.Status = models.StatusProcessing
	s.notify(userID, &job)

	go s.run(jobID, userID, audio.FilePath, language)

	return &job, nil
}

// run dispatches to the external provider under a bounded deadline. The
// wallet was debited before dispatch; no lock is held here.
func (s *Service) run(jobID, userID uuid.UUID, audioPath string, language models.Language) {
	ctx, cancel := context.WithTimeout(context.Background(), s.ProviderTimeout)
	defer cancel()

	text, err := s.Provider.Transcribe(ctx, audioPath, language)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "provider timeout"
		}
		if ferr := s.Fail(jobID, msg); ferr != nil {
			log.Printf("fail transition for job %s: %v", jobID, ferr)
		}
		return
	}

	if cerr := s.Complete(jobID, text); cerr != nil {
		log.Printf("complete transition for job %s: %v", jobID, cerr)
	}
}

// Complete finalises a successful job. Terminal states are immutable, so
// a repeated call is a no-op.
// terminalStatuses guards the finalising updates: a transition only
// lands on a row that is not already terminal.
var terminalStatuses = []models.TranscriptionStatus{models.StatusCompleted, models.StatusFailed}

func (s *Service) Complete(jobID uuid.UUID, text string) error {
	job, err := s.findJob(jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return nil
	}

	now := time.Now()
	res := s.DB.Model(&models.Transcription{}).
		Where("id = ? AND status NOT IN ?", jobID, terminalStatuses).
		Updates(map[string]interface{}{
			"status":       models.StatusCompleted,
			"text":         text,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race to another finaliser
		return nil
	}
	job.Status = models.StatusCompleted
	job.Text = text
	job.CompletedAt = &now
	s.notify(job.UserID, job)
	return nil
}

// Fail finalises a failed or timed-out job. The refund always accompanies
// the failure transition; it is keyed by the job id, so a retried Fail
// cannot refund twice.
func (s *Service) Fail(jobID uuid.UUID, errorMessage string) error {
	job, err := s.findJob(jobID)
	if err != nil {
		return err
	}
	if job.Status == models.StatusCompleted {
		return nil
	}

	now := time.Now()
	res := s.DB.Model(&models.Transcription{}).
		Where("id = ? AND status NOT IN ?", jobID, terminalStatuses).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": errorMessage,
			"completed_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	claimed := res.RowsAffected > 0
	if !claimed && job.Status != models.StatusFailed {
		// a racing completion won; its debit stands
		return nil
	}

	// The refund accompanies the failure transition. It is keyed by the
	// job id, so settling it again for an already-failed job is a no-op,
	// and a Fail retried after a refund error can still settle it.
	if _, err := s.Wallet.Refund(job.UserID, jobID); err != nil && !errors.Is(err, wallet.ErrNothingToRefund) {
		return fmt.Errorf("refund for failed job %s: %w", jobID, err)
	}

	if !claimed {
		return nil
	}
	job.Status = models.StatusFailed
	job.ErrorMessage = &errorMessage
	job.CompletedAt = &now
	s.notify(job.UserID, job)
	return nil
}

func (s *Service) Get(userID, jobID uuid.UUID) (*models.Transcription, error) {
	var job models.Transcription
	err := s.DB.Preload("AudioFile").Where("id = ? AND user_id = ?", jobID, userID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// HistoryFilter narrows List/ExportCSV results.
type HistoryFilter struct {
	Language string
	Status   string
	DateFrom *time.Time
	DateTo   *time.Time
}

func (s *Service) List(userID uuid.UUID, filter HistoryFilter) ([]models.Transcription, error) {
	q := s.DB.Preload("AudioFile").Where("user_id = ?", userID).Order("created_at DESC")
	if filter.Language != "" {
		q = q.Where("language = ?", filter.Language)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		q = q.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("created_at <= ?", *filter.DateTo)
	}
	var jobs []models.Transcription
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Delete removes a job record. The charge and any refund stay in the
// ledger; deleting history never rewrites money.
func (s *Service) Delete(userID, jobID uuid.UUID) error {
	res := s.DB.Where("id = ? AND user_id = ?", jobID, userID).Delete(&models.Transcription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DownloadContent renders a completed transcription as a text file.
func (s *Service) DownloadContent(userID, jobID uuid.UUID) ([]byte, string, error) {
	job, err := s.Get(userID, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.Status != models.StatusCompleted {
		return nil, "", ErrNotCompleted
	}

	filename := "audio"
	if job.AudioFile != nil {
		filename = job.AudioFile.Filename
	}
	completedAt := ""
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.Format("2006-01-02 15:04:05")
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Transcription Result\n====================\n\n")
	fmt.Fprintf(&b, "Audio File: %s\n", filename)
	fmt.Fprintf(&b, "Language: %s\n", job.Language)
	fmt.Fprintf(&b, "Duration: %s minutes\n", job.Duration.StringFixed(2))
	fmt.Fprintf(&b, "Date: %s\n\n", completedAt)
	fmt.Fprintf(&b, "Transcription:\n--------------\n\n%s\n", job.Text)

	return b.Bytes(), fmt.Sprintf("transcription_%s.txt", job.ID), nil
}

// ExportCSV renders the filtered history as a CSV document.
func (s *Service) ExportCSV(userID uuid.UUID, filter HistoryFilter) ([]byte, error) {
	jobs, err := s.List(userID, filter)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	w := csv.NewWriter(&b)
	_ = w.Write([]string{"ID", "Audio File", "Language", "Duration (min)", "Cost", "Status", "Created At", "Completed At"})
	for _, job := range jobs {
		filename := ""
		if job.AudioFile != nil {
			filename = job.AudioFile.Filename
		}
		completedAt := ""
		if job.CompletedAt != nil {
			completedAt = job.CompletedAt.Format("2006-01-02 15:04:05")
		}
		_ = w.Write([]string{
			job.ID.String(),
			filename,
			string(job.Language),
			job.Duration.StringFixed(2),
			job.Cost.StringFixed(2),
			string(job.Status),
			job.CreatedAt.Format("2006-01-02 15:04:05"),
			completedAt,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (s *Service) findJob(jobID uuid.UUID) (*models.Transcription, error) {
	var job models.Transcription
	err := s.DB.Where("id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Service) notify(userID uuid.UUID, job *models.Transcription) {
	if s.Notifier != nil {
		s.Notifier.NotifyJobUpdate(userID, job)
	}
}
