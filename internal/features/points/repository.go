// Package points — repository.go работает с таблицами point_accounts и point_entries.
// Каждое изменение баланса — одна транзакция БД: запись журнала и новый баланс
// либо сохраняются вместе, либо не сохраняются вовсе.
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/db/postgres"
	"serotonyl.ru/points-bot/internal/features/members"
)

var errRefTaken = errors.New("ref already used")

// Repository предоставляет методы для работы со счетами и журналом.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий баллов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Apply применяет изменение баланса.
//
// Строка счёта блокируется (FOR UPDATE), поэтому конкурентные изменения
// одного пользователя выполняются по очереди. Проверки даты (Delta.Day)
// и ключа (Delta.Ref) делаются под той же блокировкой.
func (r *Repository) Apply(ctx context.Context, d Delta, levelOf func(int64) int) (*Change, error) {
	change := &Change{}

	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		// Создаём счёт при первом обращении
		if _, err := tx.Exec(ctx, `
			INSERT INTO point_accounts (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
		`, d.UserID); err != nil {
			return fmt.Errorf("ошибка создания счёта: %w", err)
		}

		var acc Account
		err := tx.QueryRow(ctx, `
			SELECT balance, level, last_interaction
			FROM point_accounts WHERE user_id = $1 FOR UPDATE
		`, d.UserID).Scan(&acc.Balance, &acc.Level, &acc.LastInteraction)
		if err != nil {
			return fmt.Errorf("ошибка чтения счёта: %w", err)
		}
		change.OldBalance, change.NewBalance = acc.Balance, acc.Balance
		change.OldLevel, change.NewLevel = acc.Level, acc.Level

		// Бонус за эту дату уже был
		if d.Day != nil && acc.LastInteraction != nil && common.SameDate(*acc.LastInteraction, *d.Day) {
			return nil
		}

		if d.Ref != "" {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM point_entries WHERE ref = $1)`, d.Ref,
			).Scan(&exists); err != nil {
				return fmt.Errorf("ошибка проверки ключа: %w", err)
			}
			if exists {
				return nil
			}
		}

		amount := d.Amount
		if d.ResetToZero {
			amount = -acc.Balance
		}
		if amount == 0 {
			return nil
		}

		newBalance := acc.Balance + amount
		newLevel := levelOf(newBalance)

		var ref *string
		if d.Ref != "" {
			ref = &d.Ref
		}
		entry := &Entry{UserID: d.UserID, Delta: amount, Kind: d.Kind, Reason: d.Reason, Ref: ref}
		err = tx.QueryRow(ctx, `
			INSERT INTO point_entries (user_id, delta, kind, reason, ref)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, d.UserID, amount, string(d.Kind), d.Reason, ref).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return errRefTaken
			}
			return fmt.Errorf("ошибка записи в журнал: %w", err)
		}

		var day *string
		if d.Day != nil {
			s := common.FormatDate(*d.Day)
			day = &s
		}
		if _, err := tx.Exec(ctx, `
			UPDATE point_accounts
			SET balance = $2, level = $3,
			    last_interaction = COALESCE($4::date, last_interaction),
			    updated_at = NOW()
			WHERE user_id = $1
		`, d.UserID, newBalance, newLevel, day); err != nil {
			return fmt.Errorf("ошибка обновления баланса: %w", err)
		}

		change.Applied = true
		change.NewBalance = newBalance
		change.NewLevel = newLevel
		change.Entry = entry
		return nil
	})
	if errors.Is(err, errRefTaken) {
		// Тот же ключ успел записать другой счёт — считаем повтором
		return &Change{OldBalance: change.OldBalance, NewBalance: change.OldBalance,
			OldLevel: change.OldLevel, NewLevel: change.OldLevel}, nil
	}
	if err != nil {
		return nil, common.Infra("points apply", err)
	}
	return change, nil
}

// GetAccount возвращает счёт пользователя или common.ErrUserNotFound.
func (r *Repository) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `
		SELECT user_id, balance, level, last_interaction, created_at, updated_at
		FROM point_accounts WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.Balance, &a.Level, &a.LastInteraction, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.Infra("points get account", err)
	}
	return &a, nil
}

// History возвращает записи журнала пользователя, новые первыми.
func (r *Repository) History(ctx context.Context, userID int64, limit, offset int) ([]*Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, delta, kind, reason, ref, created_at
		FROM point_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, common.Infra("points history", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &kind, &e.Reason, &e.Ref, &e.CreatedAt); err != nil {
			return nil, common.Infra("points history scan", err)
		}
		e.Kind = Kind(kind)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("points history rows", err)
	}
	return out, nil
}

// SumEntries — сумма всех записей журнала пользователя.
func (r *Repository) SumEntries(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM point_entries WHERE user_id = $1`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, common.Infra("points sum", err)
	}
	return sum, nil
}

// Mismatches находит счета, баланс которых не совпадает с суммой журнала.
func (r *Repository) Mismatches(ctx context.Context) ([]Mismatch, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.user_id, a.balance, COALESCE(SUM(e.delta), 0) AS total
		FROM point_accounts a
		LEFT JOIN point_entries e ON e.user_id = a.user_id
		GROUP BY a.user_id, a.balance
		HAVING a.balance <> COALESCE(SUM(e.delta), 0)
	`)
	if err != nil {
		return nil, common.Infra("points mismatches", err)
	}
	defer rows.Close()

	var out []Mismatch
	for rows.Next() {
		var m Mismatch
		if err := rows.Scan(&m.UserID, &m.Balance, &m.Sum); err != nil {
			return nil, common.Infra("points mismatches scan", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("points mismatches rows", err)
	}
	return out, nil
}

// Top возвращает рейтинг по балансу.
func (r *Repository) Top(ctx context.Context, limit int) ([]*Ranked, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.user_id, COALESCE(m.username, ''), COALESCE(m.first_name, ''),
		       COALESCE(m.last_name, ''), a.balance, a.level
		FROM point_accounts a
		LEFT JOIN members m ON m.user_id = a.user_id
		WHERE a.balance > 0
		ORDER BY a.balance DESC, a.user_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, common.Infra("points top", err)
	}
	defer rows.Close()

	var out []*Ranked
	for rows.Next() {
		var rk Ranked
		var username, first, last string
		if err := rows.Scan(&rk.UserID, &username, &first, &last, &rk.Balance, &rk.Level); err != nil {
			return nil, common.Infra("points top scan", err)
		}
		rk.DisplayName = members.FormatName(rk.UserID, username, first, last)
		out = append(out, &rk)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("points top rows", err)
	}
	return out, nil
}
