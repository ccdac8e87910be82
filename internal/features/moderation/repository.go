// Package moderation — repository.go работает с таблицей forbidden_words.
package moderation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/points-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// AddWord добавляет слово. false — слово уже было в списке.
func (r *Repository) AddWord(ctx context.Context, word string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO forbidden_words (word) VALUES ($1) ON CONFLICT (word) DO NOTHING`, word)
	if err != nil {
		return false, common.Infra("moderation add word", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveWord удаляет слово. false — слова не было.
func (r *Repository) RemoveWord(ctx context.Context, word string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM forbidden_words WHERE word = $1`, word)
	if err != nil {
		return false, common.Infra("moderation remove word", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListWords(ctx context.Context) ([]*ForbiddenWord, error) {
	rows, err := r.db.Query(ctx, `SELECT id, word, created_at FROM forbidden_words ORDER BY word`)
	if err != nil {
		return nil, common.Infra("moderation list words", err)
	}
	defer rows.Close()

	var out []*ForbiddenWord
	for rows.Next() {
		var w ForbiddenWord
		if err := rows.Scan(&w.ID, &w.Word, &w.CreatedAt); err != nil {
			return nil, common.Infra("moderation scan word", err)
		}
		out = append(out, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("moderation list words rows", err)
	}
	return out, nil
}
