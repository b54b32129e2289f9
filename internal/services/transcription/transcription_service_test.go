package transcription

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/numanijaz119/Audio-to-text/internal/models"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type providerFunc func(ctx context.Context, audioPath string, language models.Language) (string, error)

func (f providerFunc) Transcribe(ctx context.Context, audioPath string, language models.Language) (string, error) {
	return f(ctx, audioPath, language)
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	userID  uuid.UUID
	audioID uuid.UUID
}

// newFixture builds a service over sqlite with a funded user and one
// five-minute audio file.
func newFixture(t *testing.T, provider Provider, startBalance string) *fixture {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "jobs.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Wallet{}, &models.Transaction{}, &models.AudioFile{}, &models.Transcription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	walletSvc := wallet.NewService(db, dec("1"), dec("0"))

	userID := uuid.New()
	u := models.User{ID: userID, Name: "Speaker", Email: uuid.NewString() + "@example.com", Provider: models.ProviderGoogle, ProviderID: uuid.NewString()}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := walletSvc.CreateForUser(db, userID); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if sb := dec(startBalance); sb.IsPositive() {
		if _, err := walletSvc.Credit(userID, sb, "seed_"+uuid.NewString(), "order_seed"); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}

	audio := models.AudioFile{
		UserID:   userID,
		Filename: "meeting.mp3",
		FilePath: "/tmp/does-not-matter.mp3",
		Duration: dec("5"),
		Size:     1024,
		Format:   "mp3",
	}
	if err := db.Create(&audio).Error; err != nil {
		t.Fatalf("create audio: %v", err)
	}

	svc := NewService(db, walletSvc, provider, 2*time.Second)
	return &fixture{svc: svc, db: db, userID: userID, audioID: audio.ID}
}

func (f *fixture) waitTerminal(t *testing.T, jobID uuid.UUID) *models.Transcription {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var job models.Transcription
		if err := f.db.First(&job, "id = ?", jobID).Error; err != nil {
			t.Fatalf("load job: %v", err)
		}
		if job.Terminal() {
			return &job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func (f *fixture) ledgerCounts(t *testing.T, jobID uuid.UUID) (debits, refunds int64) {
	t.Helper()
	f.db.Model(&models.Transaction{}).Where("reference_id = ? AND type = ?", jobID, models.TrxDebit).Count(&debits)
	f.db.Model(&models.Transaction{}).Where("reference_id = ? AND type = ?", jobID, models.TrxRefund).Count(&refunds)
	return
}

func TestSubmitSuccessCompletesWithOneDebitNoRefund(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "hello from the meeting", nil
	})
	f := newFixture(t, provider, "20")

	job, err := f.svc.Submit(f.userID, f.audioID, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !job.Cost.Equal(dec("5")) {
		t.Errorf("cost = %s, want 5", job.Cost)
	}

	done := f.waitTerminal(t, job.ID)
	if done.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed (err=%v)", done.Status, done.ErrorMessage)
	}
	if done.Text != "hello from the meeting" {
		t.Errorf("text = %q", done.Text)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	debits, refunds := f.ledgerCounts(t, job.ID)
	if debits != 1 || refunds != 0 {
		t.Errorf("ledger has %d debits, %d refunds; want 1, 0", debits, refunds)
	}

	bal, _ := f.svc.Wallet.GetBalance(f.userID)
	if !bal.Balance.Equal(dec("15")) {
		t.Errorf("balance = %s, want 15", bal.Balance)
	}
}

func TestSubmitProviderFailureRefundsExactlyOnce(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "", errors.New("model unavailable")
	})
	f := newFixture(t, provider, "20")

	job, err := f.svc.Submit(f.userID, f.audioID, models.LanguageAuto)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := f.waitTerminal(t, job.ID)
	if done.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	if done.ErrorMessage == nil || *done.ErrorMessage != "model unavailable" {
		t.Errorf("error_message = %v", done.ErrorMessage)
	}

	debits, refunds := f.ledgerCounts(t, job.ID)
	if debits != 1 || refunds != 1 {
		t.Errorf("ledger has %d debits, %d refunds; want 1, 1", debits, refunds)
	}

	bal, _ := f.svc.Wallet.GetBalance(f.userID)
	if !bal.Balance.Equal(dec("20")) {
		t.Errorf("balance = %s, want 20 (refunded)", bal.Balance)
	}
}

func TestSubmitProviderTimeoutRefunds(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	f := newFixture(t, provider, "20")
	f.svc.ProviderTimeout = 50 * time.Millisecond

	job, err := f.svc.Submit(f.userID, f.audioID, models.LanguageHindi)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := f.waitTerminal(t, job.ID)
	if done.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	if done.ErrorMessage == nil || *done.ErrorMessage != "provider timeout" {
		t.Errorf("error_message = %v, want provider timeout", done.ErrorMessage)
	}

	_, refunds := f.ledgerCounts(t, job.ID)
	if refunds != 1 {
		t.Errorf("refunds = %d, want 1", refunds)
	}
}

func TestSubmitInsufficientFundsCreatesNoJob(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		t.Error("provider must not be dispatched on a failed charge")
		return "", nil
	})
	f := newFixture(t, provider, "0")

	_, err := f.svc.Submit(f.userID, f.audioID, models.LanguageEnglish)
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	var count int64
	f.db.Model(&models.Transcription{}).Count(&count)
	if count != 0 {
		t.Errorf("found %d job rows, want 0", count)
	}
}

func TestSubmitUnknownAudio(t *testing.T) {
	f := newFixture(t, providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "", nil
	}), "20")

	if _, err := f.svc.Submit(f.userID, uuid.New(), models.LanguageEnglish); !errors.Is(err, ErrAudioNotFound) {
		t.Fatalf("err = %v, want ErrAudioNotFound", err)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "final text", nil
	})
	f := newFixture(t, provider, "20")

	job, err := f.svc.Submit(f.userID, f.audioID, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.waitTerminal(t, job.ID)

	// A late failure report must not clobber the completed job or refund.
	if err := f.svc.Fail(job.ID, "late timeout"); err != nil {
		t.Fatalf("Fail on terminal job: %v", err)
	}

	var reloaded models.Transcription
	f.db.First(&reloaded, "id = ?", job.ID)
	if reloaded.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", reloaded.Status)
	}
	_, refunds := f.ledgerCounts(t, job.ID)
	if refunds != 0 {
		t.Errorf("refunds = %d, want 0", refunds)
	}
}

func TestLateCompletionCannotClobberFailedJob(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "", errors.New("provider exploded")
	})
	f := newFixture(t, provider, "20")

	job, err := f.svc.Submit(f.userID, f.audioID, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.waitTerminal(t, job.ID)

	// A late success report must not resurrect the job or undo the refund.
	if err := f.svc.Complete(job.ID, "late text"); err != nil {
		t.Fatalf("Complete on terminal job: %v", err)
	}

	var reloaded models.Transcription
	f.db.First(&reloaded, "id = ?", job.ID)
	if reloaded.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", reloaded.Status)
	}
	if reloaded.Text != "" {
		t.Errorf("text = %q, want empty", reloaded.Text)
	}
	_, refunds := f.ledgerCounts(t, job.ID)
	if refunds != 1 {
		t.Errorf("refunds = %d, want 1", refunds)
	}
}

func TestFailSettlesMissingRefundOnFailedJob(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "", nil
	})
	f := newFixture(t, provider, "20")

	// A job already marked failed whose refund never landed, as after a
	// crash between the status write and the refund.
	jobID := uuid.New()
	if _, _, err := f.svc.Wallet.Charge(f.userID, dec("5"), jobID); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	errMsg := "provider exploded"
	job := models.Transcription{
		ID:           jobID,
		UserID:       f.userID,
		AudioFileID:  f.audioID,
		Language:     models.LanguageEnglish,
		Status:       models.StatusFailed,
		Duration:     dec("5"),
		Cost:         dec("5"),
		ErrorMessage: &errMsg,
	}
	if err := f.db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := f.svc.Fail(jobID, errMsg); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	debits, refunds := f.ledgerCounts(t, jobID)
	if debits != 1 || refunds != 1 {
		t.Errorf("debits = %d, refunds = %d, want 1 and 1", debits, refunds)
	}

	// settling again changes nothing
	if err := f.svc.Fail(jobID, errMsg); err != nil {
		t.Fatalf("repeated Fail: %v", err)
	}
	_, refunds = f.ledgerCounts(t, jobID)
	if refunds != 1 {
		t.Errorf("refunds after repeat = %d, want 1", refunds)
	}

	bal, err := f.svc.Wallet.GetBalance(f.userID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !bal.Balance.Equal(dec("20")) {
		t.Errorf("balance = %s, want 20 restored", bal.Balance)
	}
}

func TestDownloadContent(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "downloadable text", nil
	})
	f := newFixture(t, provider, "20")

	job, err := f.svc.Submit(f.userID, f.audioID, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.waitTerminal(t, job.ID)

	content, filename, err := f.svc.DownloadContent(f.userID, job.ID)
	if err != nil {
		t.Fatalf("DownloadContent: %v", err)
	}
	if filename != "transcription_"+job.ID.String()+".txt" {
		t.Errorf("filename = %s", filename)
	}
	if !bytes.Contains(content, []byte("downloadable text")) || !bytes.Contains(content, []byte("meeting.mp3")) {
		t.Errorf("content missing expected fields:\n%s", content)
	}
}

func TestDownloadContentNotCompleted(t *testing.T) {
	block := make(chan struct{})
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		<-block
		return "", nil
	})
	f := newFixture(t, provider, "20")

	job, err := f.svc.Submit(f.userID, f.audioID, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	defer close(block)

	if _, _, err := f.svc.DownloadContent(f.userID, job.ID); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("err = %v, want ErrNotCompleted", err)
	}
}

func TestListFilters(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, path string, lang models.Language) (string, error) {
		return "text", nil
	})
	f := newFixture(t, provider, "50")

	a, err := f.svc.Submit(f.userID, f.audioID, models.LanguageEnglish)
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	f.waitTerminal(t, a.ID)
	b, err := f.svc.Submit(f.userID, f.audioID, models.LanguageHindi)
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	f.waitTerminal(t, b.ID)

	hindi, err := f.svc.List(f.userID, HistoryFilter{Language: "hindi"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(hindi) != 1 || hindi[0].ID != b.ID {
		t.Errorf("language filter returned %d jobs", len(hindi))
	}

	completed, err := f.svc.List(f.userID, HistoryFilter{Status: "completed"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("status filter returned %d jobs, want 2", len(completed))
	}
}
