// Package audio validates uploads, stores them on disk and extracts the
// metadata (duration, format, size) the pricing engine needs.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/numanijaz119/Audio-to-text/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrDurationTooLong   = errors.New("audio duration exceeds the maximum")
	ErrNoDuration        = errors.New("could not extract audio duration")
	ErrAudioNotFound     = errors.New("audio file not found")
)

type Service struct {
	DB                 *gorm.DB
	UploadDir          string
	MaxUploadSize      int64
	MaxDurationMinutes decimal.Decimal
	AllowedFormats     []string
}

func NewService(db *gorm.DB, uploadDir string, maxUploadSize int64, maxDurationMinutes decimal.Decimal, allowedFormats []string) *Service {
	return &Service{
		DB:                 db,
		UploadDir:          uploadDir,
		MaxUploadSize:      maxUploadSize,
		MaxDurationMinutes: maxDurationMinutes,
		AllowedFormats:     allowedFormats,
	}
}

// Validate checks the extension against the allow-list and the size
// against the cap, returning the normalised format.
func (s *Service) Validate(filename string, size int64) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	allowed := false
	for _, f := range s.AllowedFormats {
		if ext == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("%w: .%s (allowed: %s)", ErrUnsupportedFormat, ext, strings.Join(s.AllowedFormats, ", "))
	}
	if size > s.MaxUploadSize {
		return "", fmt.Errorf("%w: %d bytes, maximum %d", ErrFileTooLarge, size, s.MaxUploadSize)
	}
	return ext, nil
}

// Store validates, saves the bytes via the supplied callback, probes the
// duration and creates the AudioFile record. The file is cleaned up if
// probing or the duration cap rejects it.
func (s *Service) Store(ctx context.Context, userID uuid.UUID, filename string, size int64, save func(dst string) error) (*models.AudioFile, error) {
	format, err := s.Validate(filename, size)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.UploadDir, userID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s.%s", uuid.New(), format))

	if err := save(dst); err != nil {
		return nil, err
	}

	duration, err := s.probeDuration(ctx, dst)
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	if duration.GreaterThan(s.MaxDurationMinutes) {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("%w: %s minutes, maximum %s", ErrDurationTooLong, duration.StringFixed(2), s.MaxDurationMinutes)
	}

	record := models.AudioFile{
		UserID:   userID,
		Filename: filename,
		FilePath: dst,
		Duration: duration,
		Size:     size,
		Format:   format,
	}
	if err := s.DB.Create(&record).Error; err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	return &record, nil
}

func (s *Service) Get(userID, audioID uuid.UUID) (*models.AudioFile, error) {
	var record models.AudioFile
	err := s.DB.Where("id = ? AND user_id = ?", audioID, userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAudioNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) List(userID uuid.UUID) ([]models.AudioFile, error) {
	var records []models.AudioFile
	if err := s.DB.Where("user_id = ?", userID).Order("uploaded_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes the stored bytes and the record. Retention is
// independent of transcription state: jobs keep their frozen metadata.
func (s *Service) Delete(userID, audioID uuid.UUID) error {
	record, err := s.Get(userID, audioID)
	if err != nil {
		return err
	}
	if record.FilePath != "" {
		if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return s.DB.Delete(record).Error
}

// probeDuration shells out to ffprobe and converts the reported seconds
// to minutes.
func (s *Service) probeDuration(ctx context.Context, path string) (decimal.Decimal, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ffprobe: %v", ErrNoDuration, err)
	}

	seconds, err := decimal.NewFromString(strings.TrimSpace(string(out)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: unparseable output %q", ErrNoDuration, strings.TrimSpace(string(out)))
	}
	if !seconds.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: zero-length audio", ErrNoDuration)
	}
	return seconds.Div(decimal.NewFromInt(60)).Round(2), nil
}
