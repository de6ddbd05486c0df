package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	in := Inputs{
		PurchasePrice:       1_000_000,
		Units:               10,
		MonthlyRentPerUnit:  1_000,
		OtherMonthlyIncome:  500,
		VacancyRatePct:      5,
		AnnualOperatingCost: 40_000,
		DownPaymentPct:      25,
		InterestRatePct:     0,
		AmortizationYears:   30,
		ClosingCosts:        20_000,
	}

	r := Calculate(in)

	assert.Equal(t, 126_000.0, r.GrossPotentialIncome)
	assert.Equal(t, 6_300.0, r.VacancyLoss)
	assert.Equal(t, 119_700.0, r.EffectiveGrossIncome)
	assert.Equal(t, 79_700.0, r.NOI)
	assert.Equal(t, 7.97, r.CapRatePct)
	assert.Equal(t, 750_000.0, r.LoanAmount)
	assert.Equal(t, 25_000.0, r.AnnualDebtService)
	assert.Equal(t, 54_700.0, r.CashFlow)
	assert.Equal(t, 270_000.0, r.CashInvested)
	assert.Equal(t, 20.26, r.CashOnCashPct)
	assert.Equal(t, 3.19, r.DSCR)
	assert.Equal(t, 100_000.0, r.PricePerUnit)
	assert.Equal(t, 7.94, r.GrossRentMultiplier)
}

func TestAnnualDebtService(t *testing.T) {
	t.Run("amortizing", func(t *testing.T) {
		// 100k at 6% over 30 years is $599.55 a month.
		assert.InDelta(t, 599.55*12, AnnualDebtService(100_000, 6, 30), 0.1)
	})

	t.Run("interest only", func(t *testing.T) {
		assert.Equal(t, 6_000.0, AnnualDebtService(100_000, 6, 0))
	})

	t.Run("zero rate", func(t *testing.T) {
		assert.InDelta(t, 10_000.0, AnnualDebtService(100_000, 0, 10), 0.0001)
	})

	t.Run("all cash", func(t *testing.T) {
		assert.Equal(t, 0.0, AnnualDebtService(0, 6, 30))
	})
}

func TestCalculate_AllCashPurchase(t *testing.T) {
	r := Calculate(Inputs{
		PurchasePrice:      500_000,
		Units:              4,
		MonthlyRentPerUnit: 1_500,
		DownPaymentPct:     100,
		InterestRatePct:    7,
		AmortizationYears:  30,
	})

	assert.Equal(t, 0.0, r.LoanAmount)
	assert.Equal(t, 0.0, r.AnnualDebtService)
	assert.Equal(t, 0.0, r.DSCR)
	assert.Equal(t, r.NOI, r.CashFlow)
	assert.Equal(t, 14.4, r.CashOnCashPct)
}
