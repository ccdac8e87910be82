// Package recommendations — repository.go работает с таблицами recommendations
// и recommendation_votes. Голос и решение по кворуму — одна транзакция
// с блокировкой строки рекомендации.
package recommendations

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

const recommendationColumns = `id, submitter_id, display_name, link, coins, outcome,
	decided_at, deciding_voter_id, settled_at, chat_id, message_id, created_at`

// Repository предоставляет методы для работы с рекомендациями.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий рекомендаций.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create сохраняет рекомендацию и заполняет ID и CreatedAt.
// Повтор (submitter_id, link) — common.ErrDuplicateRecommendation.
func (r *Repository) Create(ctx context.Context, rec *Recommendation) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO recommendations (submitter_id, display_name, link, coins, outcome)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, rec.SubmitterID, rec.DisplayName, rec.Link, rec.Coins, string(OutcomePending)).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return common.ErrDuplicateRecommendation
		}
		return common.Infra("recommendations create", err)
	}
	rec.Outcome = OutcomePending
	return nil
}

// Get возвращает рекомендацию или common.ErrRecommendationNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*Recommendation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+recommendationColumns+` FROM recommendations WHERE id = $1`, id)
	return scanRecommendation(row)
}

// Snapshot читает рекомендацию и подсчёт одним запросом.
func (r *Repository) Snapshot(ctx context.Context, id int64) (*Snapshot, error) {
	var (
		snap Snapshot
		rec  Recommendation
	)
	err := r.db.QueryRow(ctx, `
		SELECT r.id, r.submitter_id, r.display_name, r.link, r.coins, r.outcome,
		       r.decided_at, r.deciding_voter_id, r.settled_at, r.chat_id, r.message_id, r.created_at,
		       COUNT(v.voter_id) FILTER (WHERE v.approve),
		       COUNT(v.voter_id) FILTER (WHERE NOT v.approve)
		FROM recommendations r
		LEFT JOIN recommendation_votes v ON v.recommendation_id = r.id
		WHERE r.id = $1
		GROUP BY r.id
	`, id).Scan(
		&rec.ID, &rec.SubmitterID, &rec.DisplayName, &rec.Link, &rec.Coins, &rec.Outcome,
		&rec.DecidedAt, &rec.DecidingVoterID, &rec.SettledAt, &rec.ChatID, &rec.MessageID, &rec.CreatedAt,
		&snap.Tally.Positives, &snap.Tally.Negatives,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrRecommendationNotFound
		}
		return nil, common.Infra("recommendations snapshot", err)
	}
	snap.Recommendation = &rec
	return &snap, nil
}

// CastVote записывает голос и, если набран кворум, фиксирует итог.
//
// Порядок проверок: рекомендация существует, голосует не автор, лимит голосов
// не исчерпан, голос не повторный. Всё под FOR UPDATE на строке рекомендации,
// поэтому решение принимается ровно одним голосом.
// Голос после решения сбрасывает settled_at: новые несогласные тоже получат страйк.
func (r *Repository) CastVote(ctx context.Context, v Vote, quorum, maxVotes int, now time.Time) (*VoteOutcome, error) {
	var out VoteOutcome

	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		rec, err := scanRecommendation(tx.QueryRow(ctx,
			`SELECT `+recommendationColumns+` FROM recommendations WHERE id = $1 FOR UPDATE`, v.RecommendationID))
		if err != nil {
			return err
		}
		if rec.SubmitterID == v.VoterID {
			return common.ErrSelfVote
		}

		tally, err := countVotes(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		if tally.Total() >= maxVotes {
			return common.ErrVotingClosed
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO recommendation_votes (recommendation_id, voter_id, approve, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (recommendation_id, voter_id) DO NOTHING
		`, rec.ID, v.VoterID, v.Approve, now)
		if err != nil {
			return fmt.Errorf("ошибка записи голоса: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return common.ErrDuplicateVote
		}

		if v.Approve {
			tally.Positives++
		} else {
			tally.Negatives++
		}

		switch {
		case !rec.Decided() && tally.Total() >= quorum:
			rec.Outcome = tally.Decide()
			rec.DecidedAt = &now
			voter := v.VoterID
			rec.DecidingVoterID = &voter
			rec.SettledAt = nil
			if _, err := tx.Exec(ctx, `
				UPDATE recommendations
				SET outcome = $2, decided_at = $3, deciding_voter_id = $4, settled_at = NULL
				WHERE id = $1
			`, rec.ID, string(rec.Outcome), now, voter); err != nil {
				return fmt.Errorf("ошибка фиксации итога: %w", err)
			}
			out.DecidedNow = true
		case rec.Decided() && rec.SettledAt != nil:
			rec.SettledAt = nil
			if _, err := tx.Exec(ctx,
				`UPDATE recommendations SET settled_at = NULL WHERE id = $1`, rec.ID); err != nil {
				return fmt.Errorf("ошибка сброса settled_at: %w", err)
			}
		}

		out.Recommendation = rec
		out.Tally = tally
		return nil
	})
	if err != nil {
		var typed *common.Error
		if errors.As(err, &typed) || errors.Is(err, common.ErrInfrastructure) {
			return nil, err
		}
		return nil, common.Infra("recommendations cast vote", err)
	}
	return &out, nil
}

// Votes возвращает все голоса по рекомендации в порядке поступления.
func (r *Repository) Votes(ctx context.Context, id int64) ([]*Vote, error) {
	rows, err := r.db.Query(ctx, `
		SELECT recommendation_id, voter_id, approve, created_at
		FROM recommendation_votes
		WHERE recommendation_id = $1
		ORDER BY created_at, voter_id
	`, id)
	if err != nil {
		return nil, common.Infra("recommendations votes", err)
	}
	defer rows.Close()

	var out []*Vote
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.RecommendationID, &v.VoterID, &v.Approve, &v.CreatedAt); err != nil {
			return nil, common.Infra("recommendations votes scan", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("recommendations votes rows", err)
	}
	return out, nil
}

// MarkSettled отмечает, что последствия решения применены.
// votes — сколько голосов было учтено при расчёте. Если за это время пришёл
// новый голос, строка не меняется и рекомендация будет рассчитана ещё раз.
func (r *Repository) MarkSettled(ctx context.Context, id int64, votes int, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE recommendations SET settled_at = $3
		WHERE id = $1
		  AND outcome <> 'pending'
		  AND (SELECT COUNT(*) FROM recommendation_votes WHERE recommendation_id = $1) = $2
	`, id, votes, now)
	if err != nil {
		return common.Infra("recommendations mark settled", err)
	}
	return nil
}

// Unsettled возвращает решённые, но не рассчитанные рекомендации.
func (r *Repository) Unsettled(ctx context.Context, limit int) ([]*Recommendation, error) {
	return r.list(ctx, `
		SELECT `+recommendationColumns+` FROM recommendations
		WHERE outcome <> 'pending' AND settled_at IS NULL
		ORDER BY decided_at
		LIMIT $1
	`, limit)
}

// CreatedSince возвращает рекомендации, созданные после since.
func (r *Repository) CreatedSince(ctx context.Context, since time.Time) ([]*Recommendation, error) {
	return r.list(ctx, `
		SELECT `+recommendationColumns+` FROM recommendations
		WHERE created_at > $1
		ORDER BY created_at
	`, since)
}

// ListOpen возвращает рекомендации, по которым ещё можно голосовать, с подсчётом.
func (r *Repository) ListOpen(ctx context.Context, maxVotes, limit int) ([]*Snapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.submitter_id, r.display_name, r.link, r.coins, r.outcome,
		       r.decided_at, r.deciding_voter_id, r.settled_at, r.chat_id, r.message_id, r.created_at,
		       COUNT(v.voter_id) FILTER (WHERE v.approve),
		       COUNT(v.voter_id) FILTER (WHERE NOT v.approve)
		FROM recommendations r
		LEFT JOIN recommendation_votes v ON v.recommendation_id = r.id
		GROUP BY r.id
		HAVING COUNT(v.voter_id) < $1
		ORDER BY r.created_at DESC
		LIMIT $2
	`, maxVotes, limit)
	if err != nil {
		return nil, common.Infra("recommendations list open", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var (
			rec  Recommendation
			snap Snapshot
		)
		if err := rows.Scan(
			&rec.ID, &rec.SubmitterID, &rec.DisplayName, &rec.Link, &rec.Coins, &rec.Outcome,
			&rec.DecidedAt, &rec.DecidingVoterID, &rec.SettledAt, &rec.ChatID, &rec.MessageID, &rec.CreatedAt,
			&snap.Tally.Positives, &snap.Tally.Negatives,
		); err != nil {
			return nil, common.Infra("recommendations list open scan", err)
		}
		snap.Recommendation = &rec
		out = append(out, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("recommendations list open rows", err)
	}
	return out, nil
}

// AttachMessage запоминает, где опубликована карточка рекомендации.
func (r *Repository) AttachMessage(ctx context.Context, id, chatID int64, messageID int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE recommendations SET chat_id = $2, message_id = $3 WHERE id = $1`, id, chatID, messageID)
	if err != nil {
		return common.Infra("recommendations attach message", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrRecommendationNotFound
	}
	return nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Recommendation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, common.Infra("recommendations list", err)
	}
	defer rows.Close()

	var out []*Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Infra("recommendations list rows", err)
	}
	return out, nil
}

func countVotes(ctx context.Context, tx pgx.Tx, id int64) (Tally, error) {
	var t Tally
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE approve), COUNT(*) FILTER (WHERE NOT approve)
		FROM recommendation_votes WHERE recommendation_id = $1
	`, id).Scan(&t.Positives, &t.Negatives)
	if err != nil {
		return t, fmt.Errorf("ошибка подсчёта голосов: %w", err)
	}
	return t, nil
}

func scanRecommendation(row pgx.Row) (*Recommendation, error) {
	var rec Recommendation
	err := row.Scan(
		&rec.ID, &rec.SubmitterID, &rec.DisplayName, &rec.Link, &rec.Coins, &rec.Outcome,
		&rec.DecidedAt, &rec.DecidingVoterID, &rec.SettledAt, &rec.ChatID, &rec.MessageID, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrRecommendationNotFound
		}
		return nil, common.Infra("recommendations scan", err)
	}
	return &rec, nil
}
