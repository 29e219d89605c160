package promo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
)

// --- Mock implementations ---

type mockPromoRepo struct {
	codes map[string]*Promocode
	used  map[string]map[int64]bool
}

func newMockPromoRepo(codes ...Promocode) *mockPromoRepo {
	m := &mockPromoRepo{
		codes: make(map[string]*Promocode),
		used:  make(map[string]map[int64]bool),
	}
	for i := range codes {
		m.codes[strings.ToUpper(codes[i].Code)] = &codes[i]
	}
	return m
}

func (m *mockPromoRepo) FindByCode(_ context.Context, code string) (*Promocode, error) {
	p, ok := m.codes[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPromoRepo) UsedBy(_ context.Context, code string, userID int64) (bool, error) {
	return m.used[strings.ToUpper(code)][userID], nil
}

func (m *mockPromoRepo) RecordUsage(_ context.Context, code string, userID int64) error {
	key := strings.ToUpper(code)
	if m.used[key] == nil {
		m.used[key] = make(map[int64]bool)
	}
	m.used[key][userID] = true
	return nil
}

// --- Helpers ---

var testNow = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

func activeCode(code string, typ DiscountType, value int64) Promocode {
	return Promocode{
		Code:      code,
		Type:      typ,
		Value:     decimal.NewFromInt(value),
		ValidFrom: testNow.Add(-24 * time.Hour),
		ValidTo:   testNow.Add(24 * time.Hour),
	}
}

func cartWithSubtotal(subtotal int64) *cart.Cart {
	return &cart.Cart{
		UserID: 7,
		Items: []cart.Item{
			{ProductID: 1, Price: decimal.NewFromInt(subtotal), Qty: 1},
		},
	}
}

// --- Tests ---

func TestValidatePromo_Valid(t *testing.T) {
	svc := NewService(newMockPromoRepo(activeCode("SAVE10", DiscountPercent, 10)))

	res, err := svc.ValidatePromo(context.Background(), "SAVE10", testNow)
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Equal(t, DiscountPercent, res.Type)
	assert.True(t, res.Value.Equal(decimal.NewFromInt(10)))
}

func TestValidatePromo_CaseInsensitive(t *testing.T) {
	svc := NewService(newMockPromoRepo(activeCode("SAVE10", DiscountPercent, 10)))

	res, err := svc.ValidatePromo(context.Background(), "save10", testNow)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidatePromo_NotFound(t *testing.T) {
	svc := NewService(newMockPromoRepo())

	res, err := svc.ValidatePromo(context.Background(), "MISSING", testNow)
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, "Промокод не найден", res.Message)
}

func TestValidatePromo_Expired(t *testing.T) {
	expired := activeCode("OLD", DiscountPercent, 10)
	expired.ValidTo = testNow.Add(-time.Hour)
	svc := NewService(newMockPromoRepo(expired))

	res, err := svc.ValidatePromo(context.Background(), "OLD", testNow)
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, "Промокод истёк", res.Message)
}

func TestValidatePromo_NotYetValid(t *testing.T) {
	future := activeCode("SOON", DiscountPercent, 10)
	future.ValidFrom = testNow.Add(time.Hour)
	svc := NewService(newMockPromoRepo(future))

	res, err := svc.ValidatePromo(context.Background(), "SOON", testNow)
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, "Промокод истёк", res.Message)
}

func TestValidatePromo_Used(t *testing.T) {
	used := activeCode("ONCE", DiscountPercent, 10)
	used.Used = true
	svc := NewService(newMockPromoRepo(used))

	res, err := svc.ValidatePromo(context.Background(), "ONCE", testNow)
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, "Промокод уже использован", res.Message)
}

func TestValidatePromo_ExpiredWinsOverUsed(t *testing.T) {
	// When a code is both expired and used, the window check fires first.
	p := activeCode("BOTH", DiscountPercent, 10)
	p.ValidTo = testNow.Add(-time.Hour)
	p.Used = true
	svc := NewService(newMockPromoRepo(p))

	res, err := svc.ValidatePromo(context.Background(), "BOTH", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Промокод истёк", res.Message)
}

func TestCheckUsage(t *testing.T) {
	repo := newMockPromoRepo(activeCode("SAVE10", DiscountPercent, 10))
	svc := NewService(repo)

	used, err := svc.CheckUsage(context.Background(), "SAVE10", 7)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, repo.RecordUsage(context.Background(), "SAVE10", 7))

	used, err = svc.CheckUsage(context.Background(), "SAVE10", 7)
	require.NoError(t, err)
	assert.True(t, used)

	// Another user is unaffected.
	used, err = svc.CheckUsage(context.Background(), "SAVE10", 8)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestAutoDiscount(t *testing.T) {
	svc := NewService(newMockPromoRepo())

	tests := []struct {
		subtotal int64
		want     string
	}{
		{49_999, "0"},
		{50_000, "2500"},
		{100_000, "5000"},
	}
	for _, tt := range tests {
		got := svc.AutoDiscount(decimal.NewFromInt(tt.subtotal))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"subtotal %d: got %s, want %s", tt.subtotal, got, tt.want)
	}
}

func TestAutoDiscount_MultipleTiers(t *testing.T) {
	svc := NewService(newMockPromoRepo(), WithTiers([]Tier{
		{MinSubtotal: decimal.NewFromInt(100_000), Percent: decimal.NewFromInt(10)},
		{MinSubtotal: decimal.NewFromInt(50_000), Percent: decimal.NewFromInt(5)},
	}))

	// Highest qualifying tier wins regardless of config order.
	got := svc.AutoDiscount(decimal.NewFromInt(120_000))
	assert.True(t, got.Equal(decimal.NewFromInt(12_000)), "got %s", got)

	got = svc.AutoDiscount(decimal.NewFromInt(60_000))
	assert.True(t, got.Equal(decimal.NewFromInt(3_000)), "got %s", got)
}

func TestApplyDiscounts_PercentCode(t *testing.T) {
	svc := NewService(newMockPromoRepo(activeCode("SAVE10", DiscountPercent, 10)))

	applied, err := svc.ApplyDiscounts(context.Background(), cartWithSubtotal(100_000), "SAVE10", testNow)
	require.NoError(t, err)

	assert.True(t, applied.PromoDiscount.Equal(decimal.NewFromInt(10_000)), "promo %s", applied.PromoDiscount)
	assert.True(t, applied.AutoDiscount.Equal(decimal.NewFromInt(5_000)), "auto %s", applied.AutoDiscount)
	assert.True(t, applied.FinalTotal.Equal(decimal.NewFromInt(85_000)), "total %s", applied.FinalTotal)
}

func TestApplyDiscounts_WindowCheckedAtGivenInstant(t *testing.T) {
	svc := NewService(newMockPromoRepo(activeCode("SAVE10", DiscountPercent, 10)))

	// Inside the window the code applies.
	applied, err := svc.ApplyDiscounts(context.Background(), cartWithSubtotal(100_000), "SAVE10", testNow)
	require.NoError(t, err)
	assert.True(t, applied.PromoDiscount.Equal(decimal.NewFromInt(10_000)), "promo %s", applied.PromoDiscount)

	// A year later the same code is expired and contributes nothing.
	applied, err = svc.ApplyDiscounts(context.Background(), cartWithSubtotal(100_000), "SAVE10", testNow.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.True(t, applied.PromoDiscount.IsZero(), "promo %s", applied.PromoDiscount)
	assert.True(t, applied.AutoDiscount.Equal(decimal.NewFromInt(5_000)), "auto %s", applied.AutoDiscount)
}

func TestApplyDiscounts_FixedCodeCappedAtSubtotal(t *testing.T) {
	svc := NewService(newMockPromoRepo(activeCode("BIG", DiscountFixed, 5_000)))

	applied, err := svc.ApplyDiscounts(context.Background(), cartWithSubtotal(3_000), "BIG", testNow)
	require.NoError(t, err)

	assert.True(t, applied.PromoDiscount.Equal(decimal.NewFromInt(3_000)), "promo %s", applied.PromoDiscount)
	assert.True(t, applied.FinalTotal.IsZero(), "total %s", applied.FinalTotal)
}

func TestApplyDiscounts_InvalidCodeIgnored(t *testing.T) {
	svc := NewService(newMockPromoRepo())

	applied, err := svc.ApplyDiscounts(context.Background(), cartWithSubtotal(1_000), "MISSING", testNow)
	require.NoError(t, err)

	assert.True(t, applied.PromoDiscount.IsZero())
	assert.True(t, applied.FinalTotal.Equal(decimal.NewFromInt(1_000)))
}

func TestApplyDiscounts_NoCode(t *testing.T) {
	svc := NewService(newMockPromoRepo())

	applied, err := svc.ApplyDiscounts(context.Background(), cartWithSubtotal(60_000), "", testNow)
	require.NoError(t, err)

	assert.True(t, applied.PromoDiscount.IsZero())
	assert.True(t, applied.AutoDiscount.Equal(decimal.NewFromInt(3_000)), "auto %s", applied.AutoDiscount)
	assert.True(t, applied.FinalTotal.Equal(decimal.NewFromInt(57_000)))
}

func TestApplyDiscounts_NonStackableKeepsLarger(t *testing.T) {
	repo := newMockPromoRepo(activeCode("SAVE10", DiscountPercent, 10))
	svc := NewService(repo, WithStackable(false))

	// Promo 10% (10000) beats auto 5% (5000).
	applied, err := svc.ApplyDiscounts(context.Background(), cartWithSubtotal(100_000), "SAVE10", testNow)
	require.NoError(t, err)
	assert.True(t, applied.PromoDiscount.Equal(decimal.NewFromInt(10_000)))
	assert.True(t, applied.AutoDiscount.IsZero())
	assert.True(t, applied.FinalTotal.Equal(decimal.NewFromInt(90_000)))

	// A small fixed code loses to the auto tier.
	svc = NewService(newMockPromoRepo(activeCode("TINY", DiscountFixed, 100)), WithStackable(false))
	applied, err = svc.ApplyDiscounts(context.Background(), cartWithSubtotal(100_000), "TINY", testNow)
	require.NoError(t, err)
	assert.True(t, applied.PromoDiscount.IsZero())
	assert.True(t, applied.AutoDiscount.Equal(decimal.NewFromInt(5_000)))
}

func TestPromoDiscount_Rounding(t *testing.T) {
	// 10% of 10.55 is 1.055, rounded half-up to 1.06.
	got := promoDiscount(DiscountPercent, decimal.NewFromInt(10), decimal.RequireFromString("10.55"))
	assert.True(t, got.Equal(decimal.RequireFromString("1.06")), "got %s", got)
}
