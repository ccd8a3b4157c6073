package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/repairhub/api/internal/database"
)

// ReportRequest bounds the report to orders created in [Start, End).
// Either bound may be nil.
type ReportRequest struct {
	Start *time.Time
	End   *time.Time
}

type Report struct {
	TotalOrders  int64
	Completed    int64
	Rejected     int64
	Pending      int64
	Cancelled    int64
	TotalRevenue decimal.Decimal
	Appliances   []ApplianceReport
}

type ApplianceReport struct {
	ApplianceKind    string
	Label            string
	ItemCount        int64
	Quantity         int64
	CompletedRevenue decimal.Decimal
}

// Report summarizes orders for staff. Both aggregates are read from one
// repeatable-read snapshot.
func (s *OrderService) Report(ctx context.Context, caller Caller, req ReportRequest) (*Report, error) {
	if err := Authorize(caller, OpReport, caller.UserID); err != nil {
		return nil, err
	}
	if req.Start != nil && req.End != nil && !req.Start.Before(*req.End) {
		return nil, ErrInvalidDateRange
	}

	start, end := optionalTime(req.Start), optionalTime(req.End)
	var summary database.GetOrderSummaryRow
	var rows []database.GetApplianceSummaryRow
	err := s.readSnapshot(ctx, func(store OrderStore) error {
		var err error
		summary, err = store.GetOrderSummary(ctx, database.GetOrderSummaryParams{StartDate: start, EndDate: end})
		if err != nil {
			return fmt.Errorf("order summary: %w", err)
		}
		rows, err = store.GetApplianceSummary(ctx, database.GetApplianceSummaryParams{StartDate: start, EndDate: end})
		if err != nil {
			return fmt.Errorf("appliance summary: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rep := &Report{
		TotalOrders:  summary.TotalOrders,
		Completed:    summary.Completed,
		Rejected:     summary.Rejected,
		Pending:      summary.Pending,
		Cancelled:    summary.Cancelled,
		TotalRevenue: numericToDecimal(summary.TotalRevenue),
		Appliances:   make([]ApplianceReport, 0, len(rows)),
	}
	for _, r := range rows {
		rep.Appliances = append(rep.Appliances, ApplianceReport{
			ApplianceKind:    r.ApplianceKind,
			Label:            s.catalog.Label(r.ApplianceKind),
			ItemCount:        r.ItemCount,
			Quantity:         r.Quantity,
			CompletedRevenue: numericToDecimal(r.CompletedRevenue),
		})
	}
	return rep, nil
}

func optionalTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
