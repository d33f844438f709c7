package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/DavidNaak/copytradepoly/internal/engine"
	"github.com/DavidNaak/copytradepoly/internal/models"
	"github.com/DavidNaak/copytradepoly/internal/repository"
	"github.com/DavidNaak/copytradepoly/internal/service"
)

// SessionHandler is the read-mostly ops API over the running session.
// It reports state; the trading loop never depends on it.
type SessionHandler struct {
	Repo   repository.Repository
	Trader *service.CopyTraderService
	Flags  *service.SystemSettingsService
}

func (h *SessionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/session", h.session)
	g.GET("/trades", h.trades)
	g.GET("/positions", h.positions)
	g.GET("/summary", h.summary)
	g.GET("/settings/:key", h.getSetting)
	g.PUT("/settings/:key", h.putSetting)
}

func (h *SessionHandler) session(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	cfg, err := h.Repo.GetActiveCopyConfig(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if cfg == nil && h.Trader != nil && h.Trader.ConfigID() != 0 {
		// Session already ended; show the final state of its config.
		cfg, err = h.Repo.GetCopyConfigByID(c.Request.Context(), h.Trader.ConfigID())
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	}
	if cfg == nil {
		Error(c, http.StatusNotFound, "no session", nil)
		return
	}
	Ok(c, cfg, nil)
}

func (h *SessionHandler) trades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var status *string
	if v := strings.ToUpper(strings.TrimSpace(c.Query("status"))); v != "" {
		status = &v
	}
	var side *string
	if v := strings.ToUpper(strings.TrimSpace(c.Query("side"))); v != "" {
		side = &v
	}
	var tokenID *string
	if v := strings.TrimSpace(c.Query("token_id")); v != "" {
		tokenID = &v
	}
	var configID *uint64
	if h.Trader != nil && h.Trader.ConfigID() != 0 {
		id := h.Trader.ConfigID()
		configID = &id
	}
	params := repository.ListCopyTradesParams{
		ConfigID: configID,
		Status:   status,
		Side:     side,
		TokenID:  tokenID,
		Limit:    limit,
		Offset:   offset,
		OrderBy:  "traded_at",
		Asc:      boolPtr(false),
	}
	items, err := h.Repo.ListCopyTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountCopyTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

type positionView struct {
	TokenID     string          `json:"token_id"`
	Title       string          `json:"title"`
	Outcome     string          `json:"outcome"`
	Shares      decimal.Decimal `json:"shares"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
}

func (h *SessionHandler) positions(c *gin.Context) {
	if h.Repo == nil || h.Trader == nil {
		Error(c, http.StatusInternalServerError, "not wired", nil)
		return
	}
	configID := h.Trader.ConfigID()
	if configID == 0 {
		Ok(c, []positionView{}, nil)
		return
	}
	records, err := h.Repo.ListSessionTrades(c.Request.Context(), configID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, buildPositionViews(records), nil)
}

func buildPositionViews(records []models.CopyTrade) []positionView {
	shares := engine.SessionShares(records)
	buyShares := make(map[string]decimal.Decimal)
	buyCost := make(map[string]decimal.Decimal)
	labels := make(map[string][2]string)
	for _, rec := range records {
		if rec.Status != models.StatusSuccess {
			continue
		}
		if _, ok := labels[rec.TokenID]; !ok {
			labels[rec.TokenID] = [2]string{rec.Title, rec.Outcome}
		}
		if rec.Side == models.SideBuy {
			buyShares[rec.TokenID] = buyShares[rec.TokenID].Add(rec.ExecutedShares)
			buyCost[rec.TokenID] = buyCost[rec.TokenID].Add(rec.ExecutedShares.Mul(rec.Price))
		}
	}
	out := make([]positionView, 0, len(shares))
	for tokenID, held := range shares {
		if !held.IsPositive() {
			continue
		}
		avg := decimal.Zero
		if buyShares[tokenID].IsPositive() {
			avg = buyCost[tokenID].Div(buyShares[tokenID])
		}
		label := labels[tokenID]
		out = append(out, positionView{
			TokenID:     tokenID,
			Title:       label[0],
			Outcome:     label[1],
			Shares:      held,
			AvgBuyPrice: avg,
			CostUSD:     held.Mul(avg),
		})
	}
	return out
}

func (h *SessionHandler) summary(c *gin.Context) {
	if h.Trader == nil {
		Error(c, http.StatusInternalServerError, "not wired", nil)
		return
	}
	sum, err := h.Trader.Summary(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sum, nil)
}

func (h *SessionHandler) getSetting(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	item, err := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "setting not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *SessionHandler) putSetting(c *gin.Context) {
	if h.Flags == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Flags.SetEnabled(c.Request.Context(), key, body.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": body.Enabled}, nil)
}
