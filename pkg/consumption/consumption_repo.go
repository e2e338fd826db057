package consumption

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const dateFormat = "2006-01-02"

// Querier is the subset of *sql.DB and *sql.Tx the ledger needs. Writes go
// through the gatekeeper's transaction; reads may use either.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo is the append-only consumption ledger. There is deliberately no
// update or delete operation.
type Repo interface {
	Add(ctx context.Context, q Querier, e Entry) (int, error)
	NetForLine(ctx context.Context, lineId int) (qty decimal.Decimal, amount decimal.Decimal, err error)
	NetForLineIn(ctx context.Context, q Querier, lineId int) (qty decimal.Decimal, amount decimal.Decimal, err error)
	ListForLine(ctx context.Context, lineId int) ([]Entry, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Add(ctx context.Context, q Querier, e Entry) (int, error) {
	if q == nil {
		q = r.db
	}
	query := `INSERT INTO boq_consumption (boq_line_id, source_model, source_id, quantity, amount, entry_date, user_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id`
	var id int
	err := q.QueryRowContext(ctx, query,
		e.BoqLineId,
		e.SourceModel,
		e.SourceId,
		e.Quantity,
		e.Amount,
		e.Date.Format(dateFormat),
		e.UserId,
	).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not append consumption entry: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) NetForLine(ctx context.Context, lineId int) (decimal.Decimal, decimal.Decimal, error) {
	return r.NetForLineIn(ctx, r.db, lineId)
}

// NetForLineIn sums the signed ledger for one line. Entries of every source
// kind are summed uniformly.
func (r *RepoImpl) NetForLineIn(ctx context.Context, q Querier, lineId int) (decimal.Decimal, decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(amount), 0) FROM boq_consumption WHERE boq_line_id = $1`
	var qty, amount decimal.Decimal
	if err := q.QueryRowContext(ctx, query, lineId).Scan(&qty, &amount); err != nil {
		err := fmt.Errorf("could not sum consumption for line %d: %w", lineId, err)
		log.Error(err)
		return decimal.Zero, decimal.Zero, err
	}
	return qty, amount, nil
}

func (r *RepoImpl) ListForLine(ctx context.Context, lineId int) ([]Entry, error) {
	query := `SELECT id, boq_line_id, source_model, source_id, quantity, amount, entry_date, user_id
				FROM boq_consumption WHERE boq_line_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, lineId)
	if err != nil {
		err := fmt.Errorf("could not query consumption for line %d: %w", lineId, err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var dateString string
		if err := rows.Scan(&e.Id, &e.BoqLineId, &e.SourceModel, &e.SourceId, &e.Quantity, &e.Amount, &dateString, &e.UserId); err != nil {
			return nil, fmt.Errorf("could not scan consumption entry: %w", err)
		}
		date, err := time.Parse(dateFormat, dateString)
		if err != nil {
			return nil, fmt.Errorf("could not parse entry date: %w", err)
		}
		e.Date = date
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over consumption entries: %w", err)
	}
	return entries, nil
}
