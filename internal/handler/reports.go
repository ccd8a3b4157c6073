package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/repairhub/api/internal/service"
)

const dateLayout = "2006-01-02"

// ReportServicer defines the service method needed by report handlers.
// Satisfied by *service.OrderService.
type ReportServicer interface {
	Report(ctx context.Context, caller service.Caller, req service.ReportRequest) (*service.Report, error)
}

// ReportsHandler serves the staff order summary.
type ReportsHandler struct {
	svc ReportServicer
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(svc ReportServicer) *ReportsHandler {
	return &ReportsHandler{svc: svc}
}

// RegisterRoutes registers report endpoints. Expected to be mounted inside
// /orders behind RequireStaff.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/reports", h.Summary)
}

type reportResponse struct {
	TotalOrders     int64                     `json:"total_orders"`
	CompletedOrders int64                     `json:"completed_orders"`
	RejectedOrders  int64                     `json:"rejected_orders"`
	PendingOrders   int64                     `json:"pending_orders"`
	CancelledOrders int64                     `json:"cancelled_orders"`
	TotalRevenue    string                    `json:"total_revenue"`
	StartDate       *string                   `json:"start_date"`
	EndDate         *string                   `json:"end_date"`
	Appliances      []applianceReportResponse `json:"appliances"`
}

type applianceReportResponse struct {
	ApplianceKind    string `json:"appliance_kind"`
	Label            string `json:"label"`
	ItemCount        int64  `json:"item_count"`
	Quantity         int64  `json:"quantity"`
	CompletedRevenue string `json:"completed_revenue"`
}

// Summary handles GET /orders/reports. start_date and end_date are optional
// YYYY-MM-DD dates in UTC; end_date is inclusive.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var req service.ReportRequest
	if s := q.Get("start_date"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, kindValidation, "invalid start_date format, use YYYY-MM-DD")
			return
		}
		req.Start = &t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, kindValidation, "invalid end_date format, use YYYY-MM-DD")
			return
		}
		end := t.AddDate(0, 0, 1)
		req.End = &end
	}

	rep, err := h.svc.Report(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, r, "order report", err)
		return
	}

	resp := reportResponse{
		TotalOrders:     rep.TotalOrders,
		CompletedOrders: rep.Completed,
		RejectedOrders:  rep.Rejected,
		PendingOrders:   rep.Pending,
		CancelledOrders: rep.Cancelled,
		TotalRevenue:    rep.TotalRevenue.StringFixed(service.MoneyPlaces),
		Appliances:      make([]applianceReportResponse, len(rep.Appliances)),
	}
	if s := q.Get("start_date"); s != "" {
		resp.StartDate = &s
	}
	if s := q.Get("end_date"); s != "" {
		resp.EndDate = &s
	}
	for i, a := range rep.Appliances {
		resp.Appliances[i] = applianceReportResponse{
			ApplianceKind:    a.ApplianceKind,
			Label:            a.Label,
			ItemCount:        a.ItemCount,
			Quantity:         a.Quantity,
			CompletedRevenue: a.CompletedRevenue.StringFixed(service.MoneyPlaces),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
