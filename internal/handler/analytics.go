package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/webstore/internal/domain/analytics"
)

// GetSalesSummary serves ?startDate=&endDate=&compareWithPrevious=.
// Dates are YYYY-MM-DD or RFC 3339; a date-only endDate covers the whole day.
func (h *Handler) GetSalesSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseDate(q.Get("startDate"), false)
	if err != nil {
		respondError(w, r, badRequest("invalid startDate: %v", err))
		return
	}
	end, err := parseDate(q.Get("endDate"), true)
	if err != nil {
		respondError(w, r, badRequest("invalid endDate: %v", err))
		return
	}
	compare := false
	if raw := q.Get("compareWithPrevious"); raw != "" {
		compare, err = strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, badRequest("invalid compareWithPrevious %q", raw))
			return
		}
	}

	summary, err := h.analytics.SalesSummary(r.Context(), analytics.SummaryRequest{
		Start:               start,
		End:                 end,
		CompareWithPrevious: compare,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSalesSummary(e, summary) })
}

// parseDate returns the zero time for an empty value so that the service
// applies its defaults.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Microsecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
