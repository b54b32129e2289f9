package wallet

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/numanijaz119/Audio-to-text/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "wallet.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// SQLite allows one writer; funnel everything through one connection
	// so concurrent transactions queue instead of failing with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Wallet{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newTestService creates a service, a user and their wallet, optionally
// seeding a starting balance through a recharge credit.
func newTestService(t *testing.T, rate, demo, startBalance string) (*Service, uuid.UUID) {
	t.Helper()
	db := newTestDB(t)
	svc := NewService(db, dec(rate), dec(demo))

	userID := uuid.New()
	u := models.User{ID: userID, Name: "Tester", Email: uuid.NewString() + "@example.com", Provider: models.ProviderGoogle, ProviderID: uuid.NewString()}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.CreateForUser(db, userID); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if sb := dec(startBalance); sb.IsPositive() {
		if _, err := svc.Credit(userID, sb, "seed_"+uuid.NewString(), "order_seed"); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	return svc, userID
}

func TestCreateForUserGrantsDemoMinutes(t *testing.T) {
	svc, userID := newTestService(t, "1", "10", "0")

	bal, err := svc.GetBalance(userID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !bal.Balance.Equal(dec("0")) {
		t.Errorf("balance = %s, want 0", bal.Balance)
	}
	if !bal.DemoMinutesRemaining.Equal(dec("10")) {
		t.Errorf("demo = %s, want 10", bal.DemoMinutesRemaining)
	}

	trxs, err := svc.Transactions(userID, 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(trxs) != 1 || trxs[0].Type != models.TrxDemoCredit {
		t.Fatalf("expected a single demo_credit grant entry, got %+v", trxs)
	}
}

func TestChargeConsumesDemoMinutesFirst(t *testing.T) {
	// demo=5, duration=8, rate=1 -> cost 3, demo drops to 0.
	svc, userID := newTestService(t, "1", "5", "10")

	trx, cost, err := svc.Charge(userID, dec("8"), uuid.New())
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !cost.Equal(dec("3")) {
		t.Errorf("cost = %s, want 3", cost)
	}
	if !trx.DemoMinutes.Equal(dec("5")) {
		t.Errorf("demo applied = %s, want 5", trx.DemoMinutes)
	}

	bal, _ := svc.GetBalance(userID)
	if !bal.Balance.Equal(dec("7")) {
		t.Errorf("balance = %s, want 7", bal.Balance)
	}
	if !bal.DemoMinutesRemaining.Equal(dec("0")) {
		t.Errorf("demo = %s, want 0", bal.DemoMinutesRemaining)
	}
}

func TestChargeScenarioFromDemoToInsufficient(t *testing.T) {
	// balance=0, demo=10: a 7-minute job is free and leaves demo=3; a
	// following 5-minute job needs 2 and fails with no ledger entry.
	svc, userID := newTestService(t, "1", "10", "0")

	_, cost, err := svc.Charge(userID, dec("7"), uuid.New())
	if err != nil {
		t.Fatalf("first charge: %v", err)
	}
	if !cost.Equal(dec("0")) {
		t.Errorf("first cost = %s, want 0", cost)
	}

	bal, _ := svc.GetBalance(userID)
	if !bal.DemoMinutesRemaining.Equal(dec("3")) {
		t.Fatalf("demo = %s, want 3", bal.DemoMinutesRemaining)
	}

	_, _, err = svc.Charge(userID, dec("5"), uuid.New())
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("second charge err = %v, want ErrInsufficientFunds", err)
	}

	trxs, _ := svc.Transactions(userID, 0)
	for _, trx := range trxs {
		if trx.Type == models.TrxDebit && !trx.Amount.IsZero() {
			t.Errorf("failed charge left a paid debit entry: %+v", trx)
		}
	}
}

func TestChargeIsIdempotentPerJob(t *testing.T) {
	svc, userID := newTestService(t, "1", "0", "20")
	jobID := uuid.New()

	first, _, err := svc.Charge(userID, dec("5"), jobID)
	if err != nil {
		t.Fatalf("first charge: %v", err)
	}
	second, _, err := svc.Charge(userID, dec("5"), jobID)
	if err != nil {
		t.Fatalf("repeat charge: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeat charge created a new debit: %s vs %s", first.ID, second.ID)
	}

	bal, _ := svc.GetBalance(userID)
	if !bal.Balance.Equal(dec("15")) {
		t.Errorf("balance = %s, want 15 (charged once)", bal.Balance)
	}
}

func TestChargeThenRefundRestoresWalletExactly(t *testing.T) {
	svc, userID := newTestService(t, "1.50", "2.50", "100")
	before, _ := svc.GetBalance(userID)
	jobID := uuid.New()

	if _, _, err := svc.Charge(userID, dec("7.20"), jobID); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if _, err := svc.Refund(userID, jobID); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	after, _ := svc.GetBalance(userID)
	if after.Balance.String() != before.Balance.String() {
		t.Errorf("balance %s != pre-charge %s", after.Balance, before.Balance)
	}
	if after.DemoMinutesRemaining.String() != before.DemoMinutesRemaining.String() {
		t.Errorf("demo %s != pre-charge %s", after.DemoMinutesRemaining, before.DemoMinutesRemaining)
	}

	stats, _ := svc.GetStatistics(userID)
	if !stats.TotalAmountSpent.Equal(dec("0")) {
		t.Errorf("total spent = %s, want 0 after refund", stats.TotalAmountSpent)
	}
	if !stats.TotalMinutesTranscribed.Equal(dec("0")) {
		t.Errorf("total minutes = %s, want 0 after refund", stats.TotalMinutesTranscribed)
	}
}

func TestRefundIsIdempotentPerJob(t *testing.T) {
	svc, userID := newTestService(t, "1", "0", "50")
	jobID := uuid.New()

	if _, _, err := svc.Charge(userID, dec("10"), jobID); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if _, err := svc.Refund(userID, jobID); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := svc.Refund(userID, jobID); !errors.Is(err, ErrNothingToRefund) {
		t.Fatalf("second refund err = %v, want ErrNothingToRefund", err)
	}
	if _, err := svc.Refund(userID, uuid.New()); !errors.Is(err, ErrNothingToRefund) {
		t.Fatalf("refund of unknown job err = %v, want ErrNothingToRefund", err)
	}

	bal, _ := svc.GetBalance(userID)
	if !bal.Balance.Equal(dec("50")) {
		t.Errorf("balance = %s, want 50", bal.Balance)
	}
}

func TestCreditRejectsDuplicatePaymentID(t *testing.T) {
	svc, userID := newTestService(t, "1", "0", "0")

	if _, err := svc.Credit(userID, dec("500"), "pay_abc123", "order_xyz"); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if _, err := svc.Credit(userID, dec("500"), "pay_abc123", "order_xyz"); !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("duplicate credit err = %v, want ErrDuplicatePayment", err)
	}

	bal, _ := svc.GetBalance(userID)
	if !bal.Balance.Equal(dec("500")) {
		t.Errorf("balance = %s, want 500 (credited once)", bal.Balance)
	}
}

func TestConcurrentChargesOnlyOneSucceeds(t *testing.T) {
	// Balance covers exactly one job: the two charges must not both win.
	svc, userID := newTestService(t, "1", "0", "5")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Charge(userID, dec("5"), uuid.New())
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected charge error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("got %d successes and %d insufficient, want exactly 1 and 1", ok, insufficient)
	}

	bal, _ := svc.GetBalance(userID)
	if !bal.Balance.Equal(dec("0")) {
		t.Errorf("balance = %s, want 0", bal.Balance)
	}
}

func TestLedgerReplayMatchesBalance(t *testing.T) {
	svc, userID := newTestService(t, "2", "10", "0")

	if _, err := svc.Credit(userID, dec("100"), "pay_replay_1", "order_1"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	jobA, jobB := uuid.New(), uuid.New()
	if _, _, err := svc.Charge(userID, dec("12"), jobA); err != nil {
		t.Fatalf("charge A: %v", err)
	}
	if _, _, err := svc.Charge(userID, dec("20"), jobB); err != nil {
		t.Fatalf("charge B: %v", err)
	}
	if _, err := svc.Refund(userID, jobB); err != nil {
		t.Fatalf("refund B: %v", err)
	}

	trxs, err := svc.Transactions(userID, 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	replayed := ReplayBalance(trxs)

	bal, _ := svc.GetBalance(userID)
	if !replayed.Equal(bal.Balance) {
		t.Errorf("replayed balance %s != stored balance %s", replayed, bal.Balance)
	}
	if bal.Balance.IsNegative() {
		t.Errorf("balance went negative: %s", bal.Balance)
	}

	// Every entry must satisfy balance_after == balance_before +/- amount.
	for _, trx := range trxs {
		var want decimal.Decimal
		switch trx.Type {
		case models.TrxRecharge, models.TrxRefund:
			want = trx.BalanceBefore.Add(trx.Amount)
		case models.TrxDebit:
			want = trx.BalanceBefore.Sub(trx.Amount)
		case models.TrxDemoCredit:
			want = trx.BalanceBefore
		}
		if !trx.BalanceAfter.Equal(want) {
			t.Errorf("entry %s: balance_after %s, want %s", trx.ID, trx.BalanceAfter, want)
		}
	}
}

func TestChargeUnknownWallet(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, dec("1"), dec("10"))

	_, _, err := svc.Charge(uuid.New(), dec("5"), uuid.New())
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
}
