package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vuoksi-trader/apperrors"
	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/fundamentals"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Fundamentals.GetProfile(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRefreshProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Fundamentals.FetchAndUpsertCompanyProfile(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reports, err := s.deps.Fundamentals.ListReports(r.Context(),
		r.PathValue("symbol"),
		q.Get("report_type"),
		q.Get("timeframe"),
		getIntParam(r, "limit", 5, intPtr(1), intPtr(100)),
	)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleRefreshReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = models.TimeframeAnnual
	}
	reports, err := s.deps.Fundamentals.FetchAndUpsertFinancialReports(r.Context(),
		r.PathValue("symbol"),
		timeframe,
		getIntParam(r, "limit", 5, nil, nil),
	)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stored": len(reports), "reports": reports})
}

// reportRequest is the wire shape of a manual report upsert; dates are YYYY-MM-DD
type reportRequest struct {
	Symbol              string         `json:"symbol"`
	ReportType          string         `json:"report_type"`
	Timeframe           string         `json:"timeframe"`
	PeriodEnd           string         `json:"period_of_report_date"`
	StartDate           string         `json:"start_date"`
	FiscalYear          *int           `json:"fiscal_year"`
	FiscalPeriod        string         `json:"fiscal_period"`
	FilingDate          string         `json:"filing_date"`
	Data                map[string]any `json:"data"`
	SourceFilingURL     string         `json:"source_filing_url"`
	SourceFilingFileURL string         `json:"source_filing_file_url"`
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, apperrors.Validation("api", field, "must be YYYY-MM-DD")
	}
	return &t, nil
}

func (s *Server) handleUpsertReport(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body reportRequest
	if err := dec.Decode(&body); err != nil {
		s.badRequest(w, r, "body", "invalid JSON")
		return
	}
	symbol := r.PathValue("symbol")
	if body.Symbol != "" && !strings.EqualFold(body.Symbol, symbol) {
		s.badRequest(w, r, "symbol", "does not match path")
		return
	}

	in := fundamentals.ReportInput{
		Symbol:              symbol,
		ReportType:          body.ReportType,
		Timeframe:           body.Timeframe,
		FiscalYear:          body.FiscalYear,
		FiscalPeriod:        body.FiscalPeriod,
		Data:                body.Data,
		SourceFilingURL:     body.SourceFilingURL,
		SourceFilingFileURL: body.SourceFilingFileURL,
	}
	end, err := parseOptionalDate("period_of_report_date", body.PeriodEnd)
	if err == nil && end != nil {
		in.PeriodEnd = *end
	}
	if err == nil {
		in.StartDate, err = parseOptionalDate("start_date", body.StartDate)
	}
	if err == nil {
		in.FilingDate, err = parseOptionalDate("filing_date", body.FilingDate)
	}
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	rep, err := s.deps.Fundamentals.UpsertReport(r.Context(), in)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleGetRatios(w http.ResponseWriter, r *http.Request) {
	asOf, err := getDateParam(r, "date")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	set, err := s.deps.Fundamentals.GetOrCalculateAndStoreKeyRatios(r.Context(), r.PathValue("symbol"), asOf)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleListRatios(w http.ResponseWriter, r *http.Request) {
	since, err := getDateParam(r, "since")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	sets, err := s.deps.Fundamentals.ListKeyRatios(r.Context(), r.PathValue("symbol"), since, getIntParam(r, "limit", 5, intPtr(1), intPtr(100)))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}
