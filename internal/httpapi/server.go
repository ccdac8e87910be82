// Package httpapi — HTTP API только для чтения: балансы, история, рейтинг
// и рекомендации. Нужен для внешних панелей и проверки здоровья.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/features/recommendations"
)

// Pinger проверяет доступность базы.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ledger — чтение баллов.
type Ledger interface {
	Account(ctx context.Context, userID int64) (*points.Account, error)
	HistoryRange(ctx context.Context, userID int64, limit, offset int) ([]*points.Entry, error)
	Top(ctx context.Context, n int) ([]*points.Ranked, error)
	Levels() *points.Levels
}

// Recommendations — чтение рекомендаций.
type Recommendations interface {
	Snapshot(ctx context.Context, id int64) (*recommendations.Snapshot, error)
	Revealed(rec *recommendations.Recommendation) bool
	Reward(coins int64) int64
}

// Deps — зависимости API.
type Deps struct {
	DB              Pinger
	Ledger          Ledger
	Recommendations Recommendations
	Retries         uint
}

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())

	h := &handlers{deps: d}
	r.GET("/healthz", h.health)

	api := r.Group("/api/v1")
	{
		api.GET("/users/:id/points", h.userPoints)
		api.GET("/users/:id/history", h.userHistory)
		api.GET("/top", h.top)
		api.GET("/recommendations/:id", h.recommendation)
	}
	return r
}

// Server — HTTP сервер с корректной остановкой.
type Server struct {
	srv *http.Server
}

// NewServer создаёт сервер на addr.
func NewServer(addr string, d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run слушает до отмены ctx, затем даёт запросам 5 секунд на завершение.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.srv.Addr).Info("HTTP API запущен")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("HTTP API остановлен")
	return nil
}
