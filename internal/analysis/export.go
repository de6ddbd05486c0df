package analysis

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/database/models"
)

const reportContentType = "text/csv"

type Export struct {
	ID          uuid.UUID  `json:"id,omitempty"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	URL         string     `json:"url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Data        []byte     `json:"-"`
}

// Inline reports whether the report must be streamed in the response.
func (e *Export) Inline() bool {
	return e.URL == ""
}

// Export renders a saved analysis as CSV. With a store configured the report
// is uploaded and a signed link returned; otherwise Data holds the report.
func (s *Service) Export(ctx context.Context, userID, id uuid.UUID) (*Export, error) {
	user, err := s.billing.LoadNormalized(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if !billing.HasFullAccess(user, s.clock.Now()) {
		return nil, ErrFullAccessRequired
	}

	saved, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	data, err := RenderCSV(saved)
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	now := s.clock.Now()
	export := &Export{
		Filename:    reportFilename(saved.Name, now),
		ContentType: reportContentType,
		Data:        data,
	}
	if s.store == nil {
		return export, nil
	}

	key := fmt.Sprintf("exports/%s/%s/%d.csv", userID, id, now.Unix())
	if err := s.store.Put(ctx, key, data, reportContentType); err != nil {
		return nil, err
	}
	url, err := s.store.SignedURL(ctx, key, s.urlExpiry)
	if err != nil {
		return nil, err
	}

	record := models.ReportExport{
		UserID:      userID,
		AnalysisID:  id,
		Provider:    s.store.Provider(),
		StorageKey:  key,
		ContentType: reportContentType,
		SizeBytes:   int64(len(data)),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	expires := now.Add(s.urlExpiry)
	export.ID = record.ID
	export.URL = url
	export.ExpiresAt = &expires
	export.Data = nil

	s.metrics.ReportExported(s.store.Provider())
	s.logger.Info("report exported", "analysis_id", id, "provider", s.store.Provider(), "key", key)
	return export, nil
}

func reportFilename(name string, at time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(name))
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "analysis"
	}
	return fmt.Sprintf("%s-%s.csv", slug, at.Format("20060102"))
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// RenderCSV writes a two column metric/value report.
func RenderCSV(a *Saved) ([]byte, error) {
	in, r := a.Inputs, a.Results
	rows := [][]string{
		{"Metric", "Value"},
		{"Name", a.Name},
		{"Property address", a.PropertyAddress},
		{"Units", strconv.Itoa(in.Units)},
		{"Purchase price", money(in.PurchasePrice)},
		{"Monthly rent per unit", money(in.MonthlyRentPerUnit)},
		{"Other monthly income", money(in.OtherMonthlyIncome)},
		{"Vacancy rate %", money(in.VacancyRatePct)},
		{"Annual operating expenses", money(in.AnnualOperatingCost)},
		{"Down payment %", money(in.DownPaymentPct)},
		{"Interest rate %", money(in.InterestRatePct)},
		{"Amortization years", strconv.Itoa(in.AmortizationYears)},
		{"Closing costs", money(in.ClosingCosts)},
		{"Gross potential income", money(r.GrossPotentialIncome)},
		{"Vacancy loss", money(r.VacancyLoss)},
		{"Effective gross income", money(r.EffectiveGrossIncome)},
		{"Net operating income", money(r.NOI)},
		{"Cap rate %", money(r.CapRatePct)},
		{"Loan amount", money(r.LoanAmount)},
		{"Annual debt service", money(r.AnnualDebtService)},
		{"Annual cash flow", money(r.CashFlow)},
		{"Total cash invested", money(r.CashInvested)},
		{"Cash on cash %", money(r.CashOnCashPct)},
		{"DSCR", money(r.DSCR)},
		{"Price per unit", money(r.PricePerUnit)},
		{"Gross rent multiplier", money(r.GrossRentMultiplier)},
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
