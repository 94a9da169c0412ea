package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coursely/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks. They reproduce the storage-level guarantees the engine
// relies on — the unique index on (account, course) and the compare-and-set
// semantics of the one-shot flags — so the real engine logic can be exercised
// without a database, including concurrently.
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- accounts ---

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func newMockAccounts(accs ...*models.Account) *mockAccounts {
	m := &mockAccounts{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accs {
		cp := *a
		m.accounts[a.ID] = &cp
	}
	return m
}

func (m *mockAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return m.GetByID(ctx, id)
}

func (m *mockAccounts) DeductCredits(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.CreditBalance < amount {
		// The conditional UPDATE matched no row.
		return 0, pgx.ErrNoRows
	}
	a.CreditBalance -= amount
	return a.CreditBalance, nil
}

func (m *mockAccounts) AddCredits(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	a.CreditBalance += amount
	return a.CreditBalance, nil
}

func (m *mockAccounts) MarkFirstPurchaseBonus(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if a.HasReceivedFirstPurchaseBonus {
		return false, nil
	}
	a.HasReceivedFirstPurchaseBonus = true
	return true, nil
}

func (m *mockAccounts) balance(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].CreditBalance
}

// --- ledger ---

type mockLedger struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *mockLedger) AppendTx(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockLedger) ListByAccountID(_ context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AccountID == accountID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *mockLedger) byAccountAndKind(accountID uuid.UUID, kind string) []*models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == accountID && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockLedger) signedSum(accountID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.entries {
		if e.AccountID == accountID {
			sum += e.Signed()
		}
	}
	return sum
}

func (m *mockLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// --- referrals ---

type mockReferrals struct {
	mu    sync.Mutex
	links map[uuid.UUID]*models.ReferralLink // keyed by referred account id
}

func newMockReferrals(links ...*models.ReferralLink) *mockReferrals {
	m := &mockReferrals{links: make(map[uuid.UUID]*models.ReferralLink)}
	for _, l := range links {
		cp := *l
		m.links[l.ReferredID] = &cp
	}
	return m
}

func (m *mockReferrals) FindPendingByReferred(_ context.Context, _ pgx.Tx, referredID uuid.UUID) (*models.ReferralLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[referredID]
	if !ok || l.Status != models.ReferralStatusPending || l.RewardIssued {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *mockReferrals) Settle(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.ID == id {
			if l.RewardIssued {
				return false, nil
			}
			l.Status = models.ReferralStatusConverted
			l.RewardIssued = true
			return true, nil
		}
	}
	return false, nil
}

func (m *mockReferrals) byReferred(referredID uuid.UUID) *models.ReferralLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[referredID]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

// --- purchases ---

type mockPurchases struct {
	mu      sync.Mutex
	records map[string]*models.PurchaseRecord // keyed by accountID|courseID
}

func newMockPurchases() *mockPurchases {
	return &mockPurchases{records: make(map[string]*models.PurchaseRecord)}
}

func purchaseKey(accountID, courseID uuid.UUID) string {
	return accountID.String() + "|" + courseID.String()
}

func (m *mockPurchases) ExistsByAccountAndCourse(_ context.Context, accountID, courseID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[purchaseKey(accountID, courseID)]
	return ok, nil
}

func (m *mockPurchases) CreateTx(_ context.Context, _ pgx.Tx, p *models.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := purchaseKey(p.AccountID, p.CourseID)
	if _, ok := m.records[key]; ok {
		// The unique index on (account_id, course_id) decides the race.
		return &pgconn.PgError{Code: "23505", ConstraintName: "purchases_account_id_course_id_key"}
	}
	cp := *p
	m.records[key] = &cp
	return nil
}

func (m *mockPurchases) MarkReferralRewardIssuedTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.records {
		if p.ID == id {
			p.ReferralRewardIssued = true
			return nil
		}
	}
	return fmt.Errorf("purchase %s not found", id)
}

func (m *mockPurchases) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockPurchases) get(accountID, courseID uuid.UUID) *models.PurchaseRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[purchaseKey(accountID, courseID)]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// --- catalog ---

type mockCatalog struct {
	prices map[uuid.UUID]int
}

func (m *mockCatalog) PriceByID(_ context.Context, id uuid.UUID) (int, error) {
	price, ok := m.prices[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return price, nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type fixture struct {
	accounts  *mockAccounts
	ledger    *mockLedger
	referrals *mockReferrals
	purchases *mockPurchases
	catalog   *mockCatalog
	engine    *SettlementEngine
	seed      map[uuid.UUID]int // balances granted at setup, outside the ledger
}

func newFixture(accounts *mockAccounts, referrals *mockReferrals, prices map[uuid.UUID]int) *fixture {
	f := &fixture{
		accounts:  accounts,
		ledger:    &mockLedger{},
		referrals: referrals,
		purchases: newMockPurchases(),
		catalog:   &mockCatalog{prices: prices},
		seed:      make(map[uuid.UUID]int),
	}
	for id, a := range accounts.accounts {
		f.seed[id] = a.CreditBalance
	}
	f.engine = NewSettlementEngine(mockPool{}, f.accounts, f.ledger, f.referrals, f.purchases, f.catalog, nil)
	return f
}

func acct(id uuid.UUID, balance int) *models.Account {
	return &models.Account{ID: id, Name: "Test User", CreditBalance: balance}
}

// assertLedgerMatchesBalance checks the core invariant: the cached balance
// equals the seeded starting balance plus the signed sum of the account's
// ledger entries.
func assertLedgerMatchesBalance(t *testing.T, f *fixture, accountID uuid.UUID) {
	t.Helper()
	balance := f.accounts.balance(accountID)
	want := f.seed[accountID] + f.ledger.signedSum(accountID)
	if balance != want {
		t.Errorf("balance invariant violated for %s: balance %d, seed+ledger %d", accountID, balance, want)
	}
}

// ---------------------------------------------------------------------------
// 1. First purchase without credits grants the 200 bonus.
// ---------------------------------------------------------------------------

func TestExecutePurchase_FirstPurchaseBonus(t *testing.T) {
	buyer := uuid.New()
	course := uuid.New()

	f := newFixture(newMockAccounts(acct(buyer, 0)), newMockReferrals(), map[uuid.UUID]int{course: 1000})

	ctx := context.Background()
	result, err := f.engine.ExecutePurchase(ctx, buyer, course, 0)
	if err != nil {
		t.Fatalf("ExecutePurchase: %v", err)
	}

	if result.Purchase.PricePaid != 1000 {
		t.Errorf("price paid: got %d, want 1000", result.Purchase.PricePaid)
	}
	if result.Purchase.CreditsApplied != 0 {
		t.Errorf("credits applied: got %d, want 0", result.Purchase.CreditsApplied)
	}
	if result.NewBalance != FirstPurchaseBonusCredits {
		t.Errorf("new balance: got %d, want %d", result.NewBalance, FirstPurchaseBonusCredits)
	}
	if result.ReferralRewardIssued {
		t.Error("referral reward should not be issued without a link")
	}

	earned := f.ledger.byAccountAndKind(buyer, models.LedgerKindEarned)
	if len(earned) != 1 {
		t.Fatalf("EARNED entries: got %d, want 1", len(earned))
	}
	if earned[0].Amount != FirstPurchaseBonusCredits {
		t.Errorf("bonus amount: got %d, want %d", earned[0].Amount, FirstPurchaseBonusCredits)
	}
	if earned[0].RelatedPurchaseID == nil || *earned[0].RelatedPurchaseID != result.Purchase.ID {
		t.Error("bonus entry should reference the purchase")
	}
	assertLedgerMatchesBalance(t, f, buyer)
}

// ---------------------------------------------------------------------------
// 2. First purchase of a referred account settles the referral.
// ---------------------------------------------------------------------------

func TestExecutePurchase_ReferralConversion(t *testing.T) {
	referrer := uuid.New()
	buyer := uuid.New()
	course := uuid.New()
	link := &models.ReferralLink{
		ID:         uuid.New(),
		ReferrerID: referrer,
		ReferredID: buyer,
		Status:     models.ReferralStatusPending,
	}

	f := newFixture(
		newMockAccounts(acct(referrer, 0), acct(buyer, 0)),
		newMockReferrals(link),
		map[uuid.UUID]int{course: 500},
	)

	ctx := context.Background()
	result, err := f.engine.ExecutePurchase(ctx, buyer, course, 0)
	if err != nil {
		t.Fatalf("ExecutePurchase: %v", err)
	}

	if !result.ReferralRewardIssued {
		t.Error("expected referral reward to be issued")
	}
	if got := f.accounts.balance(buyer); got != FirstPurchaseBonusCredits {
		t.Errorf("buyer balance: got %d, want %d", got, FirstPurchaseBonusCredits)
	}
	if got := f.accounts.balance(referrer); got != ReferralBonusCredits {
		t.Errorf("referrer balance: got %d, want %d", got, ReferralBonusCredits)
	}

	settled := f.referrals.byReferred(buyer)
	if settled.Status != models.ReferralStatusConverted || !settled.RewardIssued {
		t.Errorf("link not settled: status=%s reward_issued=%v", settled.Status, settled.RewardIssued)
	}
	if p := f.purchases.get(buyer, course); !p.ReferralRewardIssued {
		t.Error("purchase record should carry referral_reward_issued")
	}

	referrerEarned := f.ledger.byAccountAndKind(referrer, models.LedgerKindEarned)
	if len(referrerEarned) != 1 || referrerEarned[0].Amount != ReferralBonusCredits {
		t.Fatalf("referrer EARNED entries: got %d, want exactly 1 of %d", len(referrerEarned), ReferralBonusCredits)
	}
	assertLedgerMatchesBalance(t, f, buyer)
	assertLedgerMatchesBalance(t, f, referrer)
}

// ---------------------------------------------------------------------------
// 3. Requested credits are clamped, never trusted.
// ---------------------------------------------------------------------------

func TestExecutePurchase_ClampsRequestedCredits(t *testing.T) {
	cases := []struct {
		name          string
		balance       int
		price         int
		requested     int
		wantApplied   int
		wantPricePaid int
	}{
		{"over-request caps at price", 150, 100, 500, 100, 0},
		{"over-request caps at balance", 80, 300, 500, 80, 220},
		{"negative treated as zero", 150, 100, -50, 0, 100},
		{"exact request honored", 150, 300, 100, 100, 200},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buyer := uuid.New()
			course := uuid.New()
			f := newFixture(newMockAccounts(acct(buyer, tc.balance)), newMockReferrals(), map[uuid.UUID]int{course: tc.price})

			result, err := f.engine.ExecutePurchase(context.Background(), buyer, course, tc.requested)
			if err != nil {
				t.Fatalf("ExecutePurchase: %v", err)
			}
			if result.Purchase.CreditsApplied != tc.wantApplied {
				t.Errorf("credits applied: got %d, want %d", result.Purchase.CreditsApplied, tc.wantApplied)
			}
			if result.Purchase.PricePaid != tc.wantPricePaid {
				t.Errorf("price paid: got %d, want %d", result.Purchase.PricePaid, tc.wantPricePaid)
			}
			// balance = start − applied + first purchase bonus
			want := tc.balance - tc.wantApplied + FirstPurchaseBonusCredits
			if got := f.accounts.balance(buyer); got != want {
				t.Errorf("balance: got %d, want %d", got, want)
			}
			assertLedgerMatchesBalance(t, f, buyer)
		})
	}
}

// ---------------------------------------------------------------------------
// 4. Validation failures mutate nothing.
// ---------------------------------------------------------------------------

func TestExecutePurchase_ValidationErrors(t *testing.T) {
	buyer := uuid.New()
	course := uuid.New()
	f := newFixture(newMockAccounts(acct(buyer, 150)), newMockReferrals(), map[uuid.UUID]int{course: 100})

	ctx := context.Background()

	if _, err := f.engine.ExecutePurchase(ctx, uuid.New(), course, 0); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("unknown account: got %v, want ErrAccountNotFound", err)
	}
	if _, err := f.engine.ExecutePurchase(ctx, buyer, uuid.New(), 0); !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("unknown course: got %v, want ErrCourseNotFound", err)
	}

	if f.ledger.count() != 0 || f.purchases.count() != 0 {
		t.Error("validation failures must not write ledger entries or purchases")
	}
	if got := f.accounts.balance(buyer); got != 150 {
		t.Errorf("balance mutated on validation failure: got %d, want 150", got)
	}

	// First successful purchase, then the duplicate path.
	if _, err := f.engine.ExecutePurchase(ctx, buyer, course, 0); err != nil {
		t.Fatalf("ExecutePurchase: %v", err)
	}
	balanceBefore := f.accounts.balance(buyer)
	entriesBefore := f.ledger.count()

	if _, err := f.engine.ExecutePurchase(ctx, buyer, course, 0); !errors.Is(err, ErrDuplicatePurchase) {
		t.Errorf("repeat purchase: got %v, want ErrDuplicatePurchase", err)
	}
	if f.accounts.balance(buyer) != balanceBefore || f.ledger.count() != entriesBefore {
		t.Error("duplicate purchase must not change balance or ledger")
	}
	if f.purchases.count() != 1 {
		t.Errorf("purchase records: got %d, want 1", f.purchases.count())
	}
}

// ---------------------------------------------------------------------------
// 5. N concurrent calls for the same (account, course): exactly one wins.
// ---------------------------------------------------------------------------

func TestExecutePurchase_ConcurrentSamePair(t *testing.T) {
	buyer := uuid.New()
	course := uuid.New()
	f := newFixture(newMockAccounts(acct(buyer, 0)), newMockReferrals(), map[uuid.UUID]int{course: 300})

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.ExecutePurchase(context.Background(), buyer, course, 0)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicatePurchase):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful settlements: got %d, want exactly 1", succeeded)
	}
	if f.purchases.count() != 1 {
		t.Errorf("purchase records: got %d, want 1", f.purchases.count())
	}
	if earned := f.ledger.byAccountAndKind(buyer, models.LedgerKindEarned); len(earned) != 1 {
		t.Errorf("first purchase bonus entries: got %d, want 1", len(earned))
	}
	assertLedgerMatchesBalance(t, f, buyer)
}

// ---------------------------------------------------------------------------
// 6. Concurrent first purchases on different courses: the bonus is granted
//    exactly once; the losing path observes the flag and grants nothing.
// ---------------------------------------------------------------------------

func TestExecutePurchase_ConcurrentFirstPurchase(t *testing.T) {
	buyer := uuid.New()
	courseA := uuid.New()
	courseB := uuid.New()
	f := newFixture(newMockAccounts(acct(buyer, 0)), newMockReferrals(), map[uuid.UUID]int{
		courseA: 100,
		courseB: 250,
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, course := range []uuid.UUID{courseA, courseB} {
		wg.Add(1)
		go func(i int, course uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.engine.ExecutePurchase(context.Background(), buyer, course, 0)
		}(i, course)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("purchase %d: %v", i, err)
		}
	}
	if f.purchases.count() != 2 {
		t.Errorf("purchase records: got %d, want 2", f.purchases.count())
	}
	earned := f.ledger.byAccountAndKind(buyer, models.LedgerKindEarned)
	if len(earned) != 1 {
		t.Fatalf("first purchase bonus entries: got %d, want exactly 1", len(earned))
	}
	if got := f.accounts.balance(buyer); got != FirstPurchaseBonusCredits {
		t.Errorf("balance: got %d, want %d", got, FirstPurchaseBonusCredits)
	}
	assertLedgerMatchesBalance(t, f, buyer)
}

// ---------------------------------------------------------------------------
// 7. An already-settled link never pays twice.
// ---------------------------------------------------------------------------

func TestExecutePurchase_ReferralRewardNotReissued(t *testing.T) {
	referrer := uuid.New()
	buyer := uuid.New()
	course := uuid.New()
	// The link lost a race elsewhere: reward already issued, status pending.
	link := &models.ReferralLink{
		ID:           uuid.New(),
		ReferrerID:   referrer,
		ReferredID:   buyer,
		Status:       models.ReferralStatusPending,
		RewardIssued: true,
	}

	f := newFixture(
		newMockAccounts(acct(referrer, 0), acct(buyer, 0)),
		newMockReferrals(link),
		map[uuid.UUID]int{course: 100},
	)

	result, err := f.engine.ExecutePurchase(context.Background(), buyer, course, 0)
	if err != nil {
		t.Fatalf("ExecutePurchase: %v", err)
	}
	if result.ReferralRewardIssued {
		t.Error("reward must not be reissued for a settled link")
	}
	if got := f.accounts.balance(referrer); got != 0 {
		t.Errorf("referrer balance: got %d, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// 8. Concurrent spends cannot overdraw: balances always equal ledger sums
//    and never go negative.
// ---------------------------------------------------------------------------

func TestExecutePurchase_ConcurrentSpendsKeepInvariant(t *testing.T) {
	buyer := uuid.New()
	courseA := uuid.New()
	courseB := uuid.New()
	f := newFixture(newMockAccounts(acct(buyer, 100)), newMockReferrals(), map[uuid.UUID]int{
		courseA: 100,
		courseB: 100,
	})

	var wg sync.WaitGroup
	for _, course := range []uuid.UUID{courseA, courseB} {
		wg.Add(1)
		go func(course uuid.UUID) {
			defer wg.Done()
			// Both ask for the full balance; clamping and the conditional
			// deduct decide who actually spends.
			if _, err := f.engine.ExecutePurchase(context.Background(), buyer, course, 100); err != nil {
				t.Errorf("ExecutePurchase: %v", err)
			}
		}(course)
	}
	wg.Wait()

	if got := f.accounts.balance(buyer); got < 0 {
		t.Errorf("balance went negative: %d", got)
	}
	// Spending never exceeds what was available: the starting balance plus
	// anything earned along the way.
	spent, earnedTotal := 0, 0
	for _, e := range f.ledger.byAccountAndKind(buyer, models.LedgerKindSpent) {
		spent += e.Amount
	}
	for _, e := range f.ledger.byAccountAndKind(buyer, models.LedgerKindEarned) {
		earnedTotal += e.Amount
	}
	if spent > 100+earnedTotal {
		t.Errorf("total spent %d exceeds available credits %d", spent, 100+earnedTotal)
	}
	assertLedgerMatchesBalance(t, f, buyer)
}

// ---------------------------------------------------------------------------
// 9. Read side: GetBalance and GetLedgerHistory.
// ---------------------------------------------------------------------------

func TestGetBalanceAndHistory(t *testing.T) {
	buyer := uuid.New()
	course := uuid.New()
	f := newFixture(newMockAccounts(acct(buyer, 50)), newMockReferrals(), map[uuid.UUID]int{course: 30})

	ctx := context.Background()
	if _, err := f.engine.ExecutePurchase(ctx, buyer, course, 30); err != nil {
		t.Fatalf("ExecutePurchase: %v", err)
	}

	balance, err := f.engine.GetBalance(ctx, buyer)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	// 50 − 30 spent + 200 bonus
	if balance != 220 {
		t.Errorf("balance: got %d, want 220", balance)
	}

	history, err := f.engine.GetLedgerHistory(ctx, buyer)
	if err != nil {
		t.Fatalf("GetLedgerHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries: got %d, want 2", len(history))
	}
	// Newest first: the bonus was appended after the spend.
	if history[0].Kind != models.LedgerKindEarned || history[1].Kind != models.LedgerKindSpent {
		t.Errorf("history order wrong: got [%s, %s], want [EARNED, SPENT]", history[0].Kind, history[1].Kind)
	}

	if _, err := f.engine.GetBalance(ctx, uuid.New()); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("unknown account balance: got %v, want ErrAccountNotFound", err)
	}
}
