// Package penalties — repository.go работает с таблицами penalties и penalty_strikes.
package penalties

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/db/postgres"
)

// Repository работает с таблицами штрафов.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий штрафов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Strike добавляет страйк с источником source.
// Повтор того же (user_id, source) ничего не меняет: уникальный ключ в penalty_strikes.
// Если страйков стало >= ceiling — ставит blocked_until.
func (r *Repository) Strike(ctx context.Context, userID int64, source string, ceiling int, blockUntil time.Time) (*StrikeResult, error) {
	res := &StrikeResult{UserID: userID}

	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO penalty_strikes (user_id, source) VALUES ($1, $2)
			ON CONFLICT (user_id, source) DO NOTHING
		`, userID, source)
		if err != nil {
			return fmt.Errorf("ошибка записи страйка: %w", err)
		}

		if tag.RowsAffected() == 0 {
			// Уже штрафовали за этот источник — просто читаем текущее состояние
			return tx.QueryRow(ctx,
				`SELECT strikes, blocked_until FROM penalties WHERE user_id = $1`, userID,
			).Scan(&res.Strikes, &res.BlockedUntil)
		}

		// Upsert блокирует строку до конца транзакции
		if err := tx.QueryRow(ctx, `
			INSERT INTO penalties (user_id, strikes) VALUES ($1, 1)
			ON CONFLICT (user_id) DO UPDATE
			SET strikes = penalties.strikes + 1, updated_at = NOW()
			RETURNING strikes, blocked_until
		`, userID).Scan(&res.Strikes, &res.BlockedUntil); err != nil {
			return fmt.Errorf("ошибка увеличения страйков: %w", err)
		}
		res.Applied = true

		if res.Strikes >= ceiling {
			if _, err := tx.Exec(ctx, `
				UPDATE penalties SET blocked_until = $2, block_reason = $3, updated_at = NOW()
				WHERE user_id = $1
			`, userID, blockUntil, ReasonStrikes); err != nil {
				return fmt.Errorf("ошибка установки блокировки: %w", err)
			}
			until := blockUntil
			res.BlockedUntil = &until
			res.Blocked = true
		}
		return nil
	})
	if err != nil {
		return nil, common.Infra("penalties strike", err)
	}
	return res, nil
}

// Get возвращает штрафы пользователя. Если записей нет — пустая запись.
func (r *Repository) Get(ctx context.Context, userID int64) (*Record, error) {
	rec := Record{UserID: userID}
	err := r.db.QueryRow(ctx, `
		SELECT strikes, blocked_until, block_reason, updated_at
		FROM penalties WHERE user_id = $1
	`, userID).Scan(&rec.Strikes, &rec.BlockedUntil, &rec.BlockReason, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &rec, nil
		}
		return nil, common.Infra("penalties get", err)
	}
	return &rec, nil
}

// SetBlock вручную ставит (until != nil) или снимает (until == nil) блокировку.
// Счётчик страйков не меняется.
func (r *Repository) SetBlock(ctx context.Context, userID int64, until *time.Time, reason string) error {
	var reasonArg *string
	if until != nil {
		reasonArg = &reason
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO penalties (user_id, strikes, blocked_until, block_reason) VALUES ($1, 0, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET blocked_until = EXCLUDED.blocked_until, block_reason = EXCLUDED.block_reason, updated_at = NOW()
	`, userID, until, reasonArg)
	if err != nil {
		return common.Infra("penalties set block", err)
	}
	return nil
}

// ListBlocked возвращает всех, чья блокировка ещё действует в момент now.
func (r *Repository) ListBlocked(ctx context.Context, now time.Time) ([]*Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, strikes, blocked_until, block_reason, updated_at
		FROM penalties
		WHERE blocked_until > $1
		ORDER BY blocked_until
	`, now)
	if err != nil {
		return nil, common.Infra("penalties list blocked", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.UserID, &rec.Strikes, &rec.BlockedUntil, &rec.BlockReason, &rec.UpdatedAt); err != nil {
			return nil, common.Infra("penalties list blocked scan", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("penalties list blocked rows", err)
	}
	return out, nil
}
