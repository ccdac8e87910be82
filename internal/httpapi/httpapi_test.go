package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/features/recommendations"
	"serotonyl.ru/points-bot/internal/httpapi"
	"serotonyl.ru/points-bot/internal/testutil"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type env struct {
	router *gin.Engine
	clock  *common.ManualClock
	ledger *points.Service
	recs   *recommendations.Service
}

func setup(t *testing.T, db httpapi.Pinger) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := common.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ledger := points.NewService(testutil.NewPointsStore(clock), points.Config{
		Thresholds: []points.Threshold{{Value: 500, Label: "Оценщик"}, {Value: 1000, Label: "Приз 1 уровня"}},
	})
	pen := penalties.NewService(testutil.NewPenaltyStore(), clock, penalties.Config{})
	dir := members.NewService(testutil.NewMemberStore(&members.Member{UserID: 1, Username: "alice"}))
	recs := recommendations.NewService(testutil.NewRecommendationStore(clock), ledger, pen, dir, &testutil.Recorder{}, clock,
		recommendations.Config{
			MinCoins: 5, Quorum: 3, MaxVotes: 10,
			RewardMultiplier: decimal.NewFromInt(10),
			RevealDelay:      6 * time.Minute,
		})

	r := httpapi.NewRouter(httpapi.Deps{DB: db, Ledger: ledger, Recommendations: recs, Retries: 1})
	return &env{router: r, clock: clock, ledger: ledger, recs: recs}
}

func httpGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	e := setup(t, pinger{})
	w := httpGet(e.router, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	e = setup(t, pinger{err: errors.New("connection refused")})
	w = httpGet(e.router, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUserPoints(t *testing.T) {
	e := setup(t, pinger{})
	ctx := context.Background()
	_, err := e.ledger.ApplyDelta(ctx, 1, 600, points.KindAdminAward, "тест")
	require.NoError(t, err)

	w := httpGet(e.router, "/api/v1/users/1/points")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Balance   int64  `json:"balance"`
		Level     int    `json:"level"`
		NextValue *int64 `json:"next_threshold"`
		NextLabel string `json:"next_label"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, int64(600), body.Balance)
	require.Equal(t, 1, body.Level)
	require.NotNil(t, body.NextValue)
	require.Equal(t, int64(1000), *body.NextValue)
	require.Equal(t, "Приз 1 уровня", body.NextLabel)

	// Неизвестный пользователь — нулевой счёт, не 404
	w = httpGet(e.router, "/api/v1/users/42/points")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Zero(t, body.Balance)

	w = httpGet(e.router, "/api/v1/users/abc/points")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHistoryPaging(t *testing.T) {
	e := setup(t, pinger{})
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := e.ledger.ApplyDelta(ctx, 1, int64(i), points.KindAdminAward, "тест")
		require.NoError(t, err)
	}

	w := httpGet(e.router, "/api/v1/users/1/history?limit=2&offset=1")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []struct {
		Delta int64  `json:"delta"`
		Kind  string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, int64(4), entries[0].Delta)
	require.Equal(t, int64(3), entries[1].Delta)
	require.Equal(t, string(points.KindAdminAward), entries[0].Kind)

	w = httpGet(e.router, "/api/v1/users/1/history?limit=-1")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTop(t *testing.T) {
	e := setup(t, pinger{})
	ctx := context.Background()
	for id, amount := range map[int64]int64{1: 30, 2: 50, 3: 10} {
		_, err := e.ledger.ApplyDelta(ctx, id, amount, points.KindAdminAward, "тест")
		require.NoError(t, err)
	}

	w := httpGet(e.router, "/api/v1/top?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var ranked []struct {
		Place   int   `json:"place"`
		UserID  int64 `json:"user_id"`
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ranked))
	require.Len(t, ranked, 2)
	require.Equal(t, int64(2), ranked[0].UserID)
	require.Equal(t, 1, ranked[0].Place)
	require.Equal(t, int64(1), ranked[1].UserID)
}

func TestRecommendationTallyHiddenUntilReveal(t *testing.T) {
	e := setup(t, pinger{})
	ctx := context.Background()

	w := httpGet(e.router, "/api/v1/recommendations/1")
	require.Equal(t, http.StatusNotFound, w.Code)

	rec, err := e.recs.Submit(ctx, 1, "br.shp.ee/abc", 5)
	require.NoError(t, err)

	type body struct {
		Link     string `json:"link"`
		Reward   int64  `json:"reward"`
		Outcome  string `json:"outcome"`
		Revealed bool   `json:"revealed"`
		Tally    *struct {
			Positives int `json:"positives"`
			Negatives int `json:"negatives"`
		} `json:"tally"`
	}

	w = httpGet(e.router, "/api/v1/recommendations/1")
	require.Equal(t, http.StatusOK, w.Code)
	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	require.Equal(t, "https://br.shp.ee/abc", b.Link)
	require.Equal(t, int64(50), b.Reward)
	require.False(t, b.Revealed)
	require.Nil(t, b.Tally)
	require.Equal(t, rec.ID, int64(1))

	e.clock.Advance(7 * time.Minute)
	w = httpGet(e.router, "/api/v1/recommendations/1")
	require.Equal(t, http.StatusOK, w.Code)
	b = body{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	require.True(t, b.Revealed)
	require.NotNil(t, b.Tally)
	require.Equal(t, "pending", b.Outcome)
}
