package analysis

import "math"

// Inputs describe one multifamily property. Percentages are 0-100.
type Inputs struct {
	PurchasePrice       float64 `json:"purchase_price" validate:"gt=0"`
	Units               int     `json:"units" validate:"gte=1,lte=10000"`
	MonthlyRentPerUnit  float64 `json:"monthly_rent_per_unit" validate:"gte=0"`
	OtherMonthlyIncome  float64 `json:"other_monthly_income" validate:"gte=0"`
	VacancyRatePct      float64 `json:"vacancy_rate_pct" validate:"gte=0,lte=100"`
	AnnualOperatingCost float64 `json:"annual_operating_expenses" validate:"gte=0"`
	DownPaymentPct      float64 `json:"down_payment_pct" validate:"gte=0,lte=100"`
	InterestRatePct     float64 `json:"interest_rate_pct" validate:"gte=0,lte=30"`
	AmortizationYears   int     `json:"amortization_years" validate:"gte=0,lte=50"`
	ClosingCosts        float64 `json:"closing_costs" validate:"gte=0"`
}

type Results struct {
	GrossPotentialIncome float64 `json:"gross_potential_income"`
	VacancyLoss          float64 `json:"vacancy_loss"`
	EffectiveGrossIncome float64 `json:"effective_gross_income"`
	OperatingExpenses    float64 `json:"operating_expenses"`
	NOI                  float64 `json:"noi"`
	CapRatePct           float64 `json:"cap_rate_pct"`
	LoanAmount           float64 `json:"loan_amount"`
	AnnualDebtService    float64 `json:"annual_debt_service"`
	CashFlow             float64 `json:"cash_flow"`
	CashInvested         float64 `json:"cash_invested"`
	CashOnCashPct        float64 `json:"cash_on_cash_pct"`
	DSCR                 float64 `json:"dscr"`
	PricePerUnit         float64 `json:"price_per_unit"`
	GrossRentMultiplier  float64 `json:"gross_rent_multiplier"`
}

// Calculate derives annual income, return and financing metrics from in.
// Ratios with a zero denominator are reported as 0.
func Calculate(in Inputs) Results {
	var r Results

	r.GrossPotentialIncome = (in.MonthlyRentPerUnit*float64(in.Units) + in.OtherMonthlyIncome) * 12
	r.VacancyLoss = r.GrossPotentialIncome * in.VacancyRatePct / 100
	r.EffectiveGrossIncome = r.GrossPotentialIncome - r.VacancyLoss
	r.OperatingExpenses = in.AnnualOperatingCost
	r.NOI = r.EffectiveGrossIncome - r.OperatingExpenses
	r.CapRatePct = ratio(r.NOI, in.PurchasePrice) * 100

	downPayment := in.PurchasePrice * in.DownPaymentPct / 100
	r.LoanAmount = in.PurchasePrice - downPayment
	r.AnnualDebtService = AnnualDebtService(r.LoanAmount, in.InterestRatePct, in.AmortizationYears)
	r.CashFlow = r.NOI - r.AnnualDebtService
	r.CashInvested = downPayment + in.ClosingCosts
	r.CashOnCashPct = ratio(r.CashFlow, r.CashInvested) * 100
	r.DSCR = ratio(r.NOI, r.AnnualDebtService)
	r.PricePerUnit = ratio(in.PurchasePrice, float64(in.Units))
	r.GrossRentMultiplier = ratio(in.PurchasePrice, r.GrossPotentialIncome)

	return r.rounded()
}

// AnnualDebtService is twelve level monthly payments on loan. A zero
// amortization term means interest-only.
func AnnualDebtService(loan, ratePct float64, years int) float64 {
	if loan <= 0 {
		return 0
	}
	annualRate := ratePct / 100
	if years <= 0 {
		return loan * annualRate
	}

	n := float64(years * 12)
	monthly := annualRate / 12
	if monthly == 0 {
		return loan / float64(years)
	}

	payment := loan * monthly / (1 - math.Pow(1+monthly, -n))
	return payment * 12
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (r Results) rounded() Results {
	return Results{
		GrossPotentialIncome: round2(r.GrossPotentialIncome),
		VacancyLoss:          round2(r.VacancyLoss),
		EffectiveGrossIncome: round2(r.EffectiveGrossIncome),
		OperatingExpenses:    round2(r.OperatingExpenses),
		NOI:                  round2(r.NOI),
		CapRatePct:           round2(r.CapRatePct),
		LoanAmount:           round2(r.LoanAmount),
		AnnualDebtService:    round2(r.AnnualDebtService),
		CashFlow:             round2(r.CashFlow),
		CashInvested:         round2(r.CashInvested),
		CashOnCashPct:        round2(r.CashOnCashPct),
		DSCR:                 round2(r.DSCR),
		PricePerUnit:         round2(r.PricePerUnit),
		GrossRentMultiplier:  round2(r.GrossRentMultiplier),
	}
}
