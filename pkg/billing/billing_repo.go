package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrBillNotFound = errors.New("vendor bill not found")

const dateFormat = "2006-01-02"

type Repo interface {
	Store(ctx context.Context, b Bill) (int, error)
	Get(ctx context.Context, id int) (Bill, error)
	List(ctx context.Context) ([]Bill, error)
	UpdateState(ctx context.Context, id int, from, to BillState) (bool, error)
	// BoqLineForPurchaseLine resolves the budget line a purchase order line
	// draws on, or zero if it is unlinked.
	BoqLineForPurchaseLine(ctx context.Context, purchaseLineId int) (int, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Store(ctx context.Context, b Bill) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var billId int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO vendor_bill (number, bill_type, currency, bill_date, state) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		b.Number, b.BillType, b.Currency, b.BillDate.Format(dateFormat), b.State).Scan(&billId)
	if err != nil {
		err := fmt.Errorf("could not store vendor bill: %w", err)
		log.Error(err)
		return 0, err
	}

	for _, l := range b.Lines {
		var purchaseLineParam, boqLineParam, productParam interface{}
		if l.PurchaseLineId != 0 {
			purchaseLineParam = l.PurchaseLineId
		}
		if l.BoqLineId != 0 {
			boqLineParam = l.BoqLineId
		}
		if l.ProductId != 0 {
			productParam = l.ProductId
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vendor_bill_line (bill_id, purchase_line_id, boq_line_id, product_id, description, quantity, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			billId, purchaseLineParam, boqLineParam, productParam, l.Description, l.Quantity, l.Subtotal); err != nil {
			err := fmt.Errorf("could not store vendor bill line: %w", err)
			log.Error(err)
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit vendor bill: %w", err)
	}
	return billId, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (Bill, error) {
	query := `SELECT id, number, bill_type, currency, bill_date, state FROM vendor_bill WHERE id = $1`
	var b Bill
	var billDate string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&b.Id, &b.Number, &b.BillType, &b.Currency, &billDate, &b.State)
	if errors.Is(err, sql.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get vendor bill %d: %w", id, err)
		log.Error(err)
		return Bill{}, err
	}
	if b.BillDate, err = time.Parse(dateFormat, billDate); err != nil {
		return Bill{}, fmt.Errorf("could not parse bill date: %w", err)
	}

	if b.Lines, err = r.listLines(ctx, id); err != nil {
		return Bill{}, err
	}
	return b, nil
}

func (r *RepoImpl) listLines(ctx context.Context, billId int) ([]BillLine, error) {
	query := `SELECT id, bill_id, purchase_line_id, boq_line_id, product_id, description, quantity, subtotal
				FROM vendor_bill_line WHERE bill_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, billId)
	if err != nil {
		err := fmt.Errorf("could not query vendor bill lines: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var lines []BillLine
	for rows.Next() {
		var l BillLine
		var purchaseLineId, boqLineId, productId sql.NullInt64
		if err := rows.Scan(&l.Id, &l.BillId, &purchaseLineId, &boqLineId, &productId, &l.Description, &l.Quantity, &l.Subtotal); err != nil {
			return nil, fmt.Errorf("could not scan vendor bill line: %w", err)
		}
		l.PurchaseLineId = int(purchaseLineId.Int64)
		l.BoqLineId = int(boqLineId.Int64)
		l.ProductId = int(productId.Int64)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over vendor bill lines: %w", err)
	}
	return lines, nil
}

func (r *RepoImpl) List(ctx context.Context) ([]Bill, error) {
	query := `SELECT id, number, bill_type, currency, bill_date, state FROM vendor_bill ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query vendor bills: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var bills []Bill
	for rows.Next() {
		var b Bill
		var billDate string
		if err := rows.Scan(&b.Id, &b.Number, &b.BillType, &b.Currency, &billDate, &b.State); err != nil {
			return nil, fmt.Errorf("could not scan vendor bill: %w", err)
		}
		if b.BillDate, err = time.Parse(dateFormat, billDate); err != nil {
			return nil, fmt.Errorf("could not parse bill date: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over vendor bills: %w", err)
	}
	return bills, nil
}

func (r *RepoImpl) UpdateState(ctx context.Context, id int, from, to BillState) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE vendor_bill SET state = $1 WHERE id = $2 AND state = $3`, to, id, from)
	if err != nil {
		err := fmt.Errorf("could not update vendor bill state: %w", err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *RepoImpl) BoqLineForPurchaseLine(ctx context.Context, purchaseLineId int) (int, error) {
	query := `SELECT boq_line_id FROM purchase_order_line WHERE id = $1`
	var boqLineId sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, purchaseLineId).Scan(&boqLineId)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("purchase order line %d not found", purchaseLineId)
	} else if err != nil {
		err := fmt.Errorf("could not resolve purchase order line %d: %w", purchaseLineId, err)
		log.Error(err)
		return 0, err
	}
	return int(boqLineId.Int64), nil
}
