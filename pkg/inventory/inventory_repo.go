package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrMoveNotFound = errors.New("stock move not found")

const timestampFormat = "2006-01-02 15:04:05"

type Repo interface {
	Store(ctx context.Context, m StockMove) (int, error)
	Get(ctx context.Context, id int) (StockMove, error)
	List(ctx context.Context) ([]StockMove, error)
	// MarkDone transitions a draft move to done, stamping the completion
	// time. Reports false when the move was not draft.
	MarkDone(ctx context.Context, id int, doneAt time.Time) (bool, error)
	// Reopen reverts a done move back to draft, clearing the completion
	// stamp. Reports false when the move was not done.
	Reopen(ctx context.Context, id int) (bool, error)
	Cancel(ctx context.Context, id int) (bool, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Store(ctx context.Context, m StockMove) (int, error) {
	query := `INSERT INTO stock_move (reference, product_id, boq_line_id, quantity, unit_cost, source_kind, destination_kind, state)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id`
	var boqLineParam interface{}
	if m.BoqLineId != 0 {
		boqLineParam = m.BoqLineId
	}
	var id int
	err := r.db.QueryRowContext(ctx, query,
		m.Reference, m.ProductId, boqLineParam, m.Quantity, m.UnitCost, m.SourceKind, m.DestinationKind, m.State).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store stock move: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

const moveColumns = `id, reference, product_id, boq_line_id, quantity, unit_cost, source_kind, destination_kind, state, done_at`

func scanMove(scan func(dest ...any) error) (StockMove, error) {
	var m StockMove
	var boqLineId sql.NullInt64
	var doneAt sql.NullString
	if err := scan(
		&m.Id,
		&m.Reference,
		&m.ProductId,
		&boqLineId,
		&m.Quantity,
		&m.UnitCost,
		&m.SourceKind,
		&m.DestinationKind,
		&m.State,
		&doneAt,
	); err != nil {
		return StockMove{}, err
	}
	m.BoqLineId = int(boqLineId.Int64)
	if doneAt.Valid {
		if ts, err := time.Parse(timestampFormat, doneAt.String); err == nil {
			m.DoneAt = ts
		}
	}
	return m, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (StockMove, error) {
	query := `SELECT ` + moveColumns + ` FROM stock_move WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	m, err := scanMove(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return StockMove{}, ErrMoveNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get stock move %d: %w", id, err)
		log.Error(err)
		return StockMove{}, err
	}
	return m, nil
}

func (r *RepoImpl) List(ctx context.Context) ([]StockMove, error) {
	query := `SELECT ` + moveColumns + ` FROM stock_move ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query stock moves: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var moves []StockMove
	for rows.Next() {
		m, err := scanMove(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("could not scan stock move: %w", err)
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over stock moves: %w", err)
	}
	return moves, nil
}

func (r *RepoImpl) MarkDone(ctx context.Context, id int, doneAt time.Time) (bool, error) {
	query := `UPDATE stock_move SET state = 'done', done_at = $1 WHERE id = $2 AND state = 'draft'`
	result, err := r.db.ExecContext(ctx, query, doneAt.Format(timestampFormat), id)
	if err != nil {
		err := fmt.Errorf("could not mark stock move %d done: %w", id, err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *RepoImpl) Reopen(ctx context.Context, id int) (bool, error) {
	query := `UPDATE stock_move SET state = 'draft', done_at = NULL WHERE id = $1 AND state = 'done'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		err := fmt.Errorf("could not reopen stock move %d: %w", id, err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *RepoImpl) Cancel(ctx context.Context, id int) (bool, error) {
	query := `UPDATE stock_move SET state = 'cancelled' WHERE id = $1 AND state = 'draft'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		err := fmt.Errorf("could not cancel stock move %d: %w", id, err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
