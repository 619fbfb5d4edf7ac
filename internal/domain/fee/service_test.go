package fee_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/fee"
	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/wallet"
	"github.com/hatid/hatid-api/internal/pkg/codec"
	"github.com/hatid/hatid-api/internal/store/memory"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func php(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type recordingNotifier struct {
	mu      sync.Mutex
	updates []fee.WalletUpdate
}

func (n *recordingNotifier) SendToUser(_ string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, payload.(fee.WalletUpdate))
	return nil
}

func setup(t *testing.T, balances map[string]string) (*fee.Service, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.New(codec.Plain{})
	for userID, b := range balances {
		if err := store.SeedWallet(userID, php(b)); err != nil {
			t.Fatalf("seed %s: %v", userID, err)
		}
	}
	notifier := &recordingNotifier{}
	svc := fee.NewService(store, fee.WithClock(func() time.Time { return fixedNow }), fee.WithNotifier(notifier))
	return svc, store, notifier
}

func TestHoldThenCollect(t *testing.T) {
	svc, store, notifier := setup(t, map[string]string{"merchant-1": "500"})
	ctx := context.Background()

	hold, err := svc.DeductAndHold(ctx, "merchant-1", php("50"), wallet.RoleMerchant, 30)
	if err != nil {
		t.Fatalf("DeductAndHold: %v", err)
	}
	if !hold.NewBalance.Equal(php("450")) || !hold.HeldAmount.Equal(php("50")) {
		t.Fatalf("unexpected hold result %+v", hold)
	}
	if !hold.HoldUntil.Equal(fixedNow.Add(30 * time.Minute)) {
		t.Fatalf("expected hold until %v, got %v", fixedNow.Add(30*time.Minute), hold.HoldUntil)
	}

	collected, err := svc.CollectHeldAmount(ctx, "merchant-1", wallet.RoleMerchant)
	if err != nil {
		t.Fatalf("CollectHeldAmount: %v", err)
	}
	if !collected.CollectedAmount.Equal(php("50")) {
		t.Fatalf("expected 50 collected, got %s", collected.CollectedAmount)
	}

	w, err := store.Get(ctx, "merchant-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !w.Balance.Equal(php("450")) || w.Hold != nil {
		t.Fatalf("expected balance 450 and no hold, got %s hold=%v", w.Balance, w.Hold)
	}

	entries := store.Entries()
	if len(entries) != 2 || entries[0].Kind != ledger.KindFeeHold || entries[1].Kind != ledger.KindFeeCollect {
		t.Fatalf("expected fee_hold then fee_collect, got %+v", entries)
	}
	if !entries[0].ResultingBalance.Decimal.Equal(php("450")) {
		t.Fatalf("expected resulting balance 450 on hold entry, got %s", entries[0].ResultingBalance.Decimal)
	}
	if len(notifier.updates) != 2 {
		t.Fatalf("expected 2 wallet updates, got %d", len(notifier.updates))
	}
}

func TestHoldThenRelease(t *testing.T) {
	svc, store, _ := setup(t, map[string]string{"rider-1": "500"})
	ctx := context.Background()

	if _, err := svc.DeductAndHold(ctx, "rider-1", php("50"), wallet.RoleRider, 0); err != nil {
		t.Fatalf("DeductAndHold: %v", err)
	}
	released, err := svc.ReleaseHold(ctx, "rider-1")
	if err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}
	if !released.NewBalance.Equal(php("500")) || !released.ReleasedAmount.Equal(php("50")) {
		t.Fatalf("unexpected release result %+v", released)
	}

	entries := store.Entries()
	if len(entries) != 2 || entries[1].Kind != ledger.KindFeeRelease {
		t.Fatalf("expected fee_hold then fee_release, got %+v", entries)
	}
}

func TestDefaultHoldMinutes(t *testing.T) {
	svc, _, _ := setup(t, map[string]string{"rider-1": "100"})
	hold, err := svc.DeductAndHold(context.Background(), "rider-1", php("10"), wallet.RoleRider, 0)
	if err != nil {
		t.Fatalf("DeductAndHold: %v", err)
	}
	if !hold.HoldUntil.Equal(fixedNow.Add(fee.DefaultHoldMinutes * time.Minute)) {
		t.Fatalf("expected default hold window, got %v", hold.HoldUntil)
	}
}

func TestReleaseWithoutHoldIsNoop(t *testing.T) {
	svc, store, notifier := setup(t, map[string]string{"merchant-1": "450"})

	res, err := svc.ReleaseHold(context.Background(), "merchant-1")
	if err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}
	if !res.NewBalance.Equal(php("450")) || !res.ReleasedAmount.IsZero() {
		t.Fatalf("expected no-op release at 450, got %+v", res)
	}
	if n := len(store.Entries()); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}
	if len(notifier.updates) != 0 {
		t.Fatal("expected no wallet update for a no-op")
	}
}

func TestSettlingTwiceIsNoop(t *testing.T) {
	svc, store, _ := setup(t, map[string]string{"merchant-1": "500"})
	ctx := context.Background()

	if _, err := svc.DeductAndHold(ctx, "merchant-1", php("50"), wallet.RoleMerchant, 30); err != nil {
		t.Fatalf("DeductAndHold: %v", err)
	}
	if _, err := svc.CollectHeldAmount(ctx, "merchant-1", wallet.RoleMerchant); err != nil {
		t.Fatalf("first collect: %v", err)
	}
	second, err := svc.CollectHeldAmount(ctx, "merchant-1", wallet.RoleMerchant)
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if !second.CollectedAmount.IsZero() {
		t.Fatalf("expected zero on second collect, got %s", second.CollectedAmount)
	}
	released, err := svc.ReleaseHold(ctx, "merchant-1")
	if err != nil {
		t.Fatalf("release after collect: %v", err)
	}
	if !released.ReleasedAmount.IsZero() || !released.NewBalance.Equal(php("450")) {
		t.Fatalf("expected release after collect to be a no-op, got %+v", released)
	}
	if n := len(store.Entries()); n != 2 {
		t.Fatalf("expected exactly 2 ledger entries, got %d", n)
	}
}

func TestInsufficientBalance(t *testing.T) {
	svc, store, _ := setup(t, map[string]string{"rider-1": "20"})
	ctx := context.Background()

	_, err := svc.DeductAndHold(ctx, "rider-1", php("50"), wallet.RoleRider, 30)
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	w, _ := store.Get(ctx, "rider-1")
	if !w.Balance.Equal(php("20")) || w.Hold != nil {
		t.Fatalf("wallet must be unchanged, got %s hold=%v", w.Balance, w.Hold)
	}
	if n := len(store.Entries()); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}
}

func TestExactBalanceCanBeHeld(t *testing.T) {
	svc, _, _ := setup(t, map[string]string{"rider-1": "50"})
	res, err := svc.DeductAndHold(context.Background(), "rider-1", php("50"), wallet.RoleRider, 30)
	if err != nil {
		t.Fatalf("DeductAndHold: %v", err)
	}
	if !res.NewBalance.IsZero() {
		t.Fatalf("expected zero balance, got %s", res.NewBalance)
	}
}

func TestInvalidInputs(t *testing.T) {
	svc, _, _ := setup(t, map[string]string{"merchant-1": "500"})
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "1.005"} {
		if _, err := svc.DeductAndHold(ctx, "merchant-1", php(amount), wallet.RoleMerchant, 30); !errors.Is(err, wallet.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for %s, got %v", amount, err)
		}
	}
	if _, err := svc.DeductAndHold(ctx, "merchant-1", php("5"), wallet.Role("customer"), 30); !errors.Is(err, fee.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := svc.CollectHeldAmount(ctx, "merchant-1", wallet.Role("")); !errors.Is(err, fee.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole on collect, got %v", err)
	}
	if _, err := svc.DeductAndHold(ctx, "ghost", php("5"), wallet.RoleRider, 30); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	if _, err := svc.ReleaseHold(ctx, "ghost"); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound on release, got %v", err)
	}
}

func TestUnreadableBalanceIsNotZero(t *testing.T) {
	svc, store, _ := setup(t, map[string]string{"merchant-1": "500"})
	store.SetRawBalance("merchant-1", "corrupted")

	_, err := svc.DeductAndHold(context.Background(), "merchant-1", php("5"), wallet.RoleMerchant, 30)
	if !errors.Is(err, codec.ErrCodec) {
		t.Fatalf("expected ErrCodec, got %v", err)
	}
}

func TestHoldsAccumulateInOneSlot(t *testing.T) {
	svc, store, _ := setup(t, map[string]string{"merchant-1": "500"})
	ctx := context.Background()

	if _, err := svc.DeductAndHold(ctx, "merchant-1", php("50"), wallet.RoleMerchant, 30); err != nil {
		t.Fatalf("first hold: %v", err)
	}
	second, err := svc.DeductAndHold(ctx, "merchant-1", php("25.50"), wallet.RoleMerchant, 30)
	if err != nil {
		t.Fatalf("second hold: %v", err)
	}
	if !second.TotalHeld.Equal(php("75.50")) || !second.NewBalance.Equal(php("424.50")) {
		t.Fatalf("unexpected accumulated hold %+v", second)
	}

	released, err := svc.ReleaseHold(ctx, "merchant-1")
	if err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}
	if !released.ReleasedAmount.Equal(php("75.50")) || !released.NewBalance.Equal(php("500")) {
		t.Fatalf("expected whole slot released, got %+v", released)
	}
	if n := len(store.Entries()); n != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", n)
	}
}

func TestConcurrentHoldsNeverOverdraw(t *testing.T) {
	svc, store, _ := setup(t, map[string]string{"merchant-1": "500"})
	ctx := context.Background()
	feeAmount := php("30")

	const workers = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.DeductAndHold(ctx, "merchant-1", feeAmount, wallet.RoleMerchant, 30)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, wallet.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// floor(500 / 30)
	if successes != 16 {
		t.Fatalf("expected 16 successful holds, got %d", successes)
	}
	w, err := store.Get(ctx, "merchant-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !w.Balance.Equal(php("20")) {
		t.Fatalf("expected remaining balance 20, got %s", w.Balance)
	}
	if !w.HeldAmount().Equal(php("480")) {
		t.Fatalf("expected 480 held, got %s", w.HeldAmount())
	}
	if n := len(store.Entries()); n != 16 {
		t.Fatalf("expected 16 ledger entries, got %d", n)
	}
}
