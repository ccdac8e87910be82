// Package members — repository.go отвечает за все операции с таблицей members в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package members

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-bot/internal/common"
)

const memberColumns = `id, user_id, COALESCE(username, ''), first_name, COALESCE(last_name, ''),
	is_admin, is_scorer, is_banned, COALESCE(ban_reason, ''), joined_at, created_at, updated_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create добавляет нового участника в таблицу members.
// На конфликте по user_id обновляет только имя/username (не трогает флаги).
func (r *Repository) Create(ctx context.Context, m *Member) error {
	query := `
		INSERT INTO members (user_id, username, first_name, last_name, is_admin, is_scorer, is_banned, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		m.UserID, m.Username, m.FirstName, m.LastName,
		m.IsAdmin, m.IsScorer, m.IsBanned, time.Now().UTC(),
	)
	if err != nil {
		return common.Infra("members create", err)
	}
	return nil
}

// GetByUserID возвращает участника или common.ErrUserNotFound.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	row := r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE user_id = $1`, userID)
	return scanMember(row)
}

// GetByUsername ищет участника по username без учёта регистра.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Member, error) {
	row := r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE LOWER(username) = LOWER($1)`, username)
	return scanMember(row)
}

func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM members WHERE user_id = $1)`, userID,
	).Scan(&exists); err != nil {
		return false, common.Infra("members exists", err)
	}
	return exists, nil
}

func (r *Repository) UpdateInfo(ctx context.Context, userID int64, info UpdateInfo) error {
	query := `
		UPDATE members
		SET username = $2, first_name = $3, last_name = $4, updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := r.db.Exec(ctx, query, userID, info.Username, info.FirstName, info.LastName); err != nil {
		return common.Infra("members update info", err)
	}
	return nil
}

// SetScorer выдаёт или снимает роль оценщика.
func (r *Repository) SetScorer(ctx context.Context, userID int64, scorer bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE members SET is_scorer = $2, updated_at = NOW() WHERE user_id = $1`, userID, scorer)
	if err != nil {
		return common.Infra("members set scorer", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// SetBanned закрывает или открывает пользователю доступ к боту.
// При снятии бана причина стирается.
func (r *Repository) SetBanned(ctx context.Context, userID int64, banned bool, reason string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE members
		SET is_banned = $2,
		    ban_reason = CASE WHEN $2 THEN NULLIF($3, '') ELSE NULL END,
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, banned, reason)
	if err != nil {
		return common.Infra("members set banned", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// ListBanned возвращает забаненных.
func (r *Repository) ListBanned(ctx context.Context) ([]*Member, error) {
	return r.list(ctx, "members list banned", `
		SELECT `+memberColumns+`
		FROM members
		WHERE is_banned = TRUE
		ORDER BY updated_at DESC
	`)
}

// ListScorers возвращает всех оценщиков.
func (r *Repository) ListScorers(ctx context.Context) ([]*Member, error) {
	return r.list(ctx, "members list scorers", `
		SELECT `+memberColumns+`
		FROM members
		WHERE is_scorer = TRUE AND is_banned = FALSE
		ORDER BY first_name
	`)
}

func (r *Repository) list(ctx context.Context, op, query string) ([]*Member, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, common.Infra(op, err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra(op+" rows", err)
	}
	return out, nil
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(
		&m.ID, &m.UserID, &m.Username, &m.FirstName, &m.LastName,
		&m.IsAdmin, &m.IsScorer, &m.IsBanned, &m.BanReason,
		&m.JoinedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.Infra("members scan", err)
	}
	return &m, nil
}
