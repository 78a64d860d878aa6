package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vuoksi-trader/auth"
	"vuoksi-trader/database/trades"
	"vuoksi-trader/ml"
	"vuoksi-trader/trading"
)

type executeTradeRequest struct {
	Symbol              string   `json:"symbol"`
	ModelType           string   `json:"model_type"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	RiskPerTrade        *float64 `json:"risk_per_trade"`
}

// executionStatus maps a trade outcome to its HTTP status
func executionStatus(status trading.Status) int {
	switch status {
	case trading.StatusPartialFailure:
		return http.StatusMultiStatus
	case trading.StatusFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func (s *Server) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	var body executeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, r, "body", "invalid JSON")
		return
	}
	if body.ModelType == "" {
		body.ModelType = ml.ModelLSTM
	}
	if !ml.ValidModel(body.ModelType) {
		s.badRequest(w, r, "model_type", "must be one of "+strings.Join(ml.SupportedModels(), ", "))
		return
	}

	req := trading.TradeRequest{
		UserID:              userID,
		Symbol:              body.Symbol,
		ModelType:           body.ModelType,
		ConfidenceThreshold: s.deps.Defaults.ConfidenceThreshold,
		RiskPerTrade:        s.deps.Defaults.RiskPerTrade,
	}
	if body.ConfidenceThreshold != nil {
		req.ConfidenceThreshold = *body.ConfidenceThreshold
	}
	if body.RiskPerTrade != nil {
		req.RiskPerTrade = *body.RiskPerTrade
	}

	res, err := s.deps.Trading.Execute(r.Context(), req)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, executionStatus(res.Status), res)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	filter := trades.ListFilter{
		UserID: userID,
		Symbol: strings.ToUpper(r.URL.Query().Get("symbol")),
		Limit:  getIntParam(r, "limit", 50, intPtr(1), intPtr(500)),
		Offset: getIntParam(r, "offset", 0, intPtr(0), nil),
	}
	since, err := getDateParam(r, "since")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if since != nil {
		filter.Since = *since
	}

	records, err := s.deps.History.ListTrades(r.Context(), filter)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": records,
		"count":  len(records),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	modelType := q.Get("model_type")
	if modelType == "" {
		modelType = ml.ModelLSTM
	}
	if !ml.ValidModel(modelType) {
		s.badRequest(w, r, "model_type", "must be one of "+strings.Join(ml.SupportedModels(), ", "))
		return
	}

	// out-of-range values are passed through so the engine reports them
	lookback := getIntParam(r, "lookback", 60, nil, nil)
	testPoints := getIntParam(r, "test_points", 30, nil, nil)

	res, err := s.deps.Backtests.Run(r.Context(), q.Get("symbol"), modelType, lookback, testPoints)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	modelType := r.URL.Query().Get("model_type")
	if modelType == "" {
		modelType = ml.ModelLSTM
	}
	if !ml.ValidModel(modelType) {
		s.badRequest(w, r, "model_type", "must be one of "+strings.Join(ml.SupportedModels(), ", "))
		return
	}

	p, err := s.deps.Trading.Prediction(r.Context(), r.PathValue("symbol"), modelType)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": ml.SupportedModels()})
}

type trainRequest struct {
	ModelType string `json:"model_type"`
	Epochs    int    `json:"epochs"`
}

func (s *Server) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	var body trainRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.badRequest(w, r, "body", "invalid JSON")
			return
		}
	}
	if body.ModelType == "" {
		body.ModelType = ml.ModelLSTM
	}
	if !ml.ValidModel(body.ModelType) {
		s.badRequest(w, r, "model_type", "must be one of "+strings.Join(ml.SupportedModels(), ", "))
		return
	}
	if body.Epochs < 0 || body.Epochs > 1000 {
		s.badRequest(w, r, "epochs", "must be within [0,1000]")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))

	start := time.Now()
	res, err := s.deps.Trainer.Train(r.Context(), symbol, body.ModelType, body.Epochs)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.log.Info().
		Str("symbol", symbol).
		Str("model_type", body.ModelType).
		Dur("duration", time.Since(start)).
		Msg("model training finished")
	writeJSON(w, http.StatusOK, res)
}
