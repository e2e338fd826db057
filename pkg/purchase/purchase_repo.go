package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrOrderNotFound = errors.New("purchase order not found")

type Repo interface {
	Store(ctx context.Context, o Order) (int, error)
	Get(ctx context.Context, id int) (Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateState(ctx context.Context, id int, from, to OrderState) (bool, error)
	// OrderedQuantity sums the quantities of confirmed order lines that draw
	// on the given BOQ line. This is the procurement commitment view.
	OrderedQuantity(ctx context.Context, boqLineId int) (decimal.Decimal, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Store(ctx context.Context, o Order) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var projectParam, boqParam interface{}
	if o.ProjectId != 0 {
		projectParam = o.ProjectId
	}
	if o.BoqId != 0 {
		boqParam = o.BoqId
	}
	var orderId int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO purchase_order (number, order_type, project_id, boq_id, state) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		o.Number, o.OrderType, projectParam, boqParam, o.State).Scan(&orderId)
	if err != nil {
		err := fmt.Errorf("could not store purchase order: %w", err)
		log.Error(err)
		return 0, err
	}

	for _, l := range o.Lines {
		var boqLineParam, productParam interface{}
		if l.BoqLineId != 0 {
			boqLineParam = l.BoqLineId
		}
		if l.ProductId != 0 {
			productParam = l.ProductId
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO purchase_order_line (order_id, boq_line_id, product_id, description, quantity, uom, state) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderId, boqLineParam, productParam, l.Description, l.Quantity, l.Uom, o.State); err != nil {
			err := fmt.Errorf("could not store purchase order line: %w", err)
			log.Error(err)
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit purchase order: %w", err)
	}
	return orderId, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (Order, error) {
	query := `SELECT id, number, order_type, project_id, boq_id, state, created_at FROM purchase_order WHERE id = $1`
	var o Order
	var projectId, boqId sql.NullInt64
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.Id, &o.Number, &o.OrderType, &projectId, &boqId, &o.State, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get purchase order %d: %w", id, err)
		log.Error(err)
		return Order{}, err
	}
	o.ProjectId = int(projectId.Int64)
	o.BoqId = int(boqId.Int64)
	if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		o.CreatedAt = ts
	}

	if o.Lines, err = r.listLines(ctx, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *RepoImpl) listLines(ctx context.Context, orderId int) ([]OrderLine, error) {
	query := `SELECT id, order_id, boq_line_id, product_id, description, quantity, uom
				FROM purchase_order_line WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, orderId)
	if err != nil {
		err := fmt.Errorf("could not query purchase order lines: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		var boqLineId, productId sql.NullInt64
		if err := rows.Scan(&l.Id, &l.OrderId, &boqLineId, &productId, &l.Description, &l.Quantity, &l.Uom); err != nil {
			return nil, fmt.Errorf("could not scan purchase order line: %w", err)
		}
		l.BoqLineId = int(boqLineId.Int64)
		l.ProductId = int(productId.Int64)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over purchase order lines: %w", err)
	}
	return lines, nil
}

func (r *RepoImpl) List(ctx context.Context) ([]Order, error) {
	query := `SELECT id, number, order_type, project_id, boq_id, state, created_at FROM purchase_order ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query purchase orders: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		var projectId, boqId sql.NullInt64
		var createdAt string
		if err := rows.Scan(&o.Id, &o.Number, &o.OrderType, &projectId, &boqId, &o.State, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan purchase order: %w", err)
		}
		o.ProjectId = int(projectId.Int64)
		o.BoqId = int(boqId.Int64)
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			o.CreatedAt = ts
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over purchase orders: %w", err)
	}
	return orders, nil
}

// UpdateState moves an order between states; the line states follow the
// order. The from state in the WHERE clause makes the transition atomic.
func (r *RepoImpl) UpdateState(ctx context.Context, id int, from, to OrderState) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE purchase_order SET state = $1 WHERE id = $2 AND state = $3`, to, id, from)
	if err != nil {
		err := fmt.Errorf("could not update purchase order state: %w", err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE purchase_order_line SET state = $1 WHERE order_id = $2`, to, id); err != nil {
		err := fmt.Errorf("could not update purchase order line states: %w", err)
		log.Error(err)
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("could not commit state change: %w", err)
	}
	return true, nil
}

func (r *RepoImpl) OrderedQuantity(ctx context.Context, boqLineId int) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(l.quantity), 0)
				FROM purchase_order_line l
				JOIN purchase_order o ON o.id = l.order_id
				WHERE l.boq_line_id = $1 AND o.state = 'confirmed'`
	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, boqLineId).Scan(&total); err != nil {
		err := fmt.Errorf("could not sum ordered quantity for boq line %d: %w", boqLineId, err)
		log.Error(err)
		return decimal.Zero, err
	}
	return total, nil
}
