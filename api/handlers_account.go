package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"vuoksi-trader/alpaca"
)

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.deps.Brokerage.GetAccount(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.deps.Brokerage.ListPositions(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// portfolioResponse summarises the account with its open positions
type portfolioResponse struct {
	PortfolioValue decimal.Decimal   `json:"portfolio_value"`
	Cash           decimal.Decimal   `json:"cash"`
	Equity         decimal.Decimal   `json:"equity"`
	PositionsValue decimal.Decimal   `json:"positions_value"`
	UnrealizedPL   decimal.Decimal   `json:"unrealized_pl"`
	Positions      []alpaca.Position `json:"positions"`
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	acct, err := s.deps.Brokerage.GetAccount(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	positions, err := s.deps.Brokerage.ListPositions(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	resp := portfolioResponse{
		PortfolioValue: acct.PortfolioValue,
		Cash:           acct.Cash,
		Equity:         acct.Equity,
		Positions:      positions,
	}
	if resp.Positions == nil {
		resp.Positions = []alpaca.Position{}
	}
	for _, p := range positions {
		resp.PositionsValue = resp.PositionsValue.Add(p.MarketValue)
		resp.UnrealizedPL = resp.UnrealizedPL.Add(p.UnrealizedPL)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetActivities(w http.ResponseWriter, r *http.Request) {
	after, err := getDateParam(r, "after")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var since time.Time
	if after != nil {
		since = *after
	}
	pageSize := getIntParam(r, "page_size", 50, intPtr(1), intPtr(100))

	activities, err := s.deps.Brokerage.ListFillActivities(r.Context(), since, pageSize)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}
