package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/features/recommendations"
)

type handlers struct {
	deps Deps
}

type pointsResponse struct {
	UserID     int64  `json:"user_id"`
	Balance    int64  `json:"balance"`
	Level      int    `json:"level"`
	NextValue  *int64 `json:"next_threshold,omitempty"`
	NextLabel  string `json:"next_label,omitempty"`
	LastActive string `json:"last_daily,omitempty"`
}

type entryResponse struct {
	ID        int64     `json:"id"`
	Delta     int64     `json:"delta"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type rankedResponse struct {
	Place       int    `json:"place"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Balance     int64  `json:"balance"`
	Level       int    `json:"level"`
}

type tallyResponse struct {
	Positives int `json:"positives"`
	Negatives int `json:"negatives"`
}

type recommendationResponse struct {
	ID          int64          `json:"id"`
	SubmitterID int64          `json:"submitter_id"`
	DisplayName string         `json:"display_name"`
	Link        string         `json:"link"`
	Coins       int64          `json:"coins"`
	Reward      int64          `json:"reward"`
	Outcome     string         `json:"outcome"`
	CreatedAt   time.Time      `json:"created_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	Settled     bool           `json:"settled"`
	Revealed    bool           `json:"revealed"`
	Tally       *tallyResponse `json:"tally,omitempty"` // До раскрытия не отдаём
}

func (h *handlers) health(c *gin.Context) {
	if h.deps.DB != nil {
		if err := h.deps.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) userPoints(c *gin.Context) {
	userID, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	acc, err := common.RetryValue(ctx, h.deps.Retries, func() (*points.Account, error) {
		return h.deps.Ledger.Account(ctx, userID)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := pointsResponse{UserID: userID, Balance: acc.Balance, Level: acc.Level}
	if next, ok := h.deps.Ledger.Levels().Next(acc.Balance); ok {
		v := next.Value
		resp.NextValue = &v
		resp.NextLabel = next.Label
	}
	if acc.LastInteraction != nil {
		resp.LastActive = common.FormatDate(*acc.LastInteraction)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) userHistory(c *gin.Context) {
	userID, ok := parseID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	entries, err := common.RetryValue(ctx, h.deps.Retries, func() ([]*points.Entry, error) {
		return h.deps.Ledger.HistoryRange(ctx, userID, limit, offset)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID: e.ID, Delta: e.Delta, Kind: string(e.Kind), Reason: e.Reason, CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) top(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}
	if limit > 100 {
		limit = 100
	}

	ctx := c.Request.Context()
	ranked, err := common.RetryValue(ctx, h.deps.Retries, func() ([]*points.Ranked, error) {
		return h.deps.Ledger.Top(ctx, limit)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]rankedResponse, 0, len(ranked))
	for i, r := range ranked {
		out = append(out, rankedResponse{
			Place: i + 1, UserID: r.UserID, DisplayName: r.DisplayName, Balance: r.Balance, Level: r.Level,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) recommendation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	snap, err := common.RetryValue(ctx, h.deps.Retries, func() (*recommendations.Snapshot, error) {
		return h.deps.Recommendations.Snapshot(ctx, id)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	rec := snap.Recommendation
	resp := recommendationResponse{
		ID:          rec.ID,
		SubmitterID: rec.SubmitterID,
		DisplayName: rec.DisplayName,
		Link:        rec.Link,
		Coins:       rec.Coins,
		Reward:      h.deps.Recommendations.Reward(rec.Coins),
		Outcome:     string(rec.Outcome),
		CreatedAt:   rec.CreatedAt,
		DecidedAt:   rec.DecidedAt,
		Settled:     rec.SettledAt != nil,
		Revealed:    h.deps.Recommendations.Revealed(rec),
	}
	if resp.Revealed {
		resp.Tally = &tallyResponse{Positives: snap.Tally.Positives, Negatives: snap.Tally.Negatives}
	} else {
		// Итог выдал бы подсчёт раньше времени
		resp.Outcome = string(recommendations.OutcomePending)
		resp.DecidedAt = nil
	}
	c.JSON(http.StatusOK, resp)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

// writeError переводит вид ошибки в HTTP статус.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrInfrastructure):
		status = http.StatusServiceUnavailable
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, common.ErrIneligible):
		status = http.StatusForbidden
	}
	msg := err.Error()
	if status >= 500 {
		msg = "internal error"
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}
