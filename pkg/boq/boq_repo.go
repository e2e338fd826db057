package boq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrBOQNotFound     = errors.New("boq not found")
	ErrLineNotFound    = errors.New("boq line not found")
	ErrProductNotFound = errors.New("product not found")
)

const dateFormat = "2006-01-02"

type Repo interface {
	Store(ctx context.Context, b BOQ) (int, error)
	Get(ctx context.Context, id int) (BOQ, error)
	GetFull(ctx context.Context, id int) (BOQ, error)
	List(ctx context.Context) ([]BOQ, error)
	// UpdateState moves a BOQ from one state to another. The from state is
	// part of the WHERE clause so concurrent transitions cannot both win.
	UpdateState(ctx context.Context, id int, from, to State, approvedBy int, approvalDate time.Time) (bool, error)
	HasLiveForProject(ctx context.Context, projectId, excludeBoqId int) (bool, error)
	NextVersion(ctx context.Context, projectId int) (int, error)
	CountBudgetLines(ctx context.Context, boqId int) (int, error)
	TotalBudget(ctx context.Context, boqId int) (decimal.Decimal, error)

	AddSection(ctx context.Context, s Section) (int, error)
	ListSections(ctx context.Context, boqId int) ([]Section, error)

	AddLine(ctx context.Context, l Line) (int, error)
	UpdateLine(ctx context.Context, l Line) (bool, error)
	DeleteLine(ctx context.Context, lineId int) (bool, error)
	GetLine(ctx context.Context, lineId int) (Line, error)
	// GetLineWithState loads a line together with its parent document state,
	// in one query, for gate checks.
	GetLineWithState(ctx context.Context, lineId int) (Line, State, error)
	ListLines(ctx context.Context, boqId int) ([]Line, error)
	SetLineComplete(ctx context.Context, lineId int, complete bool) error

	GetProduct(ctx context.Context, productId int) (Product, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Store(ctx context.Context, b BOQ) (int, error) {
	query := `INSERT INTO boq (name, project_id, sale_order_id, analytic_account_id, company_id, currency, version, state)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id`
	var saleOrderParam interface{}
	if b.SaleOrderId != 0 {
		saleOrderParam = b.SaleOrderId
	}
	var id int
	err := r.db.QueryRowContext(ctx, query,
		b.Name,
		b.ProjectId,
		saleOrderParam,
		b.AnalyticAccountId,
		b.CompanyId,
		b.Currency,
		b.Version,
		b.State,
	).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store boq: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

const boqColumns = `id, name, project_id, sale_order_id, analytic_account_id, company_id, currency, version, state, approval_date, approved_by`

func scanBOQ(scan func(dest ...any) error) (BOQ, error) {
	var b BOQ
	var saleOrderId, approvedBy sql.NullInt64
	var approvalDate sql.NullString
	if err := scan(
		&b.Id,
		&b.Name,
		&b.ProjectId,
		&saleOrderId,
		&b.AnalyticAccountId,
		&b.CompanyId,
		&b.Currency,
		&b.Version,
		&b.State,
		&approvalDate,
		&approvedBy,
	); err != nil {
		return BOQ{}, err
	}
	b.SaleOrderId = int(saleOrderId.Int64)
	b.ApprovedById = int(approvedBy.Int64)
	if approvalDate.Valid {
		date, err := time.Parse(dateFormat, approvalDate.String)
		if err != nil {
			return BOQ{}, fmt.Errorf("could not parse approval date: %w", err)
		}
		b.ApprovalDate = date
	}
	return b, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (BOQ, error) {
	query := `SELECT ` + boqColumns + ` FROM boq WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	b, err := scanBOQ(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return BOQ{}, ErrBOQNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get boq %d: %w", id, err)
		log.Error(err)
		return BOQ{}, err
	}
	return b, nil
}

func (r *RepoImpl) GetFull(ctx context.Context, id int) (BOQ, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return BOQ{}, err
	}
	if b.Sections, err = r.ListSections(ctx, id); err != nil {
		return BOQ{}, err
	}
	if b.Lines, err = r.ListLines(ctx, id); err != nil {
		return BOQ{}, err
	}
	if b.TotalBudget, err = r.TotalBudget(ctx, id); err != nil {
		return BOQ{}, err
	}
	return b, nil
}

func (r *RepoImpl) List(ctx context.Context) ([]BOQ, error) {
	query := `SELECT ` + boqColumns + ` FROM boq ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query boqs: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var boqs []BOQ
	for rows.Next() {
		b, err := scanBOQ(rows.Scan)
		if err != nil {
			err := fmt.Errorf("could not scan boq: %w", err)
			log.Error(err)
			return nil, err
		}
		boqs = append(boqs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over boqs: %w", err)
	}
	return boqs, nil
}

func (r *RepoImpl) UpdateState(ctx context.Context, id int, from, to State, approvedBy int, approvalDate time.Time) (bool, error) {
	var approvedByParam, approvalDateParam interface{}
	if approvedBy != 0 {
		approvedByParam = approvedBy
	}
	if !approvalDate.IsZero() {
		approvalDateParam = approvalDate.Format(dateFormat)
	}
	query := `UPDATE boq SET state = $1, approved_by = COALESCE($2, approved_by), approval_date = COALESCE($3, approval_date)
				WHERE id = $4 AND state = $5`
	result, err := r.db.ExecContext(ctx, query, to, approvedByParam, approvalDateParam, id, from)
	if err != nil {
		err := fmt.Errorf("could not update boq state: %w", err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *RepoImpl) HasLiveForProject(ctx context.Context, projectId, excludeBoqId int) (bool, error) {
	query := `SELECT COUNT(*) FROM boq WHERE project_id = $1 AND id != $2 AND state IN ('approved', 'locked')`
	var count int
	if err := r.db.QueryRowContext(ctx, query, projectId, excludeBoqId).Scan(&count); err != nil {
		err := fmt.Errorf("could not count live boqs for project %d: %w", projectId, err)
		log.Error(err)
		return false, err
	}
	return count > 0, nil
}

func (r *RepoImpl) NextVersion(ctx context.Context, projectId int) (int, error) {
	query := `SELECT MAX(version) FROM boq WHERE project_id = $1`
	var maxVersion sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, projectId).Scan(&maxVersion); err != nil {
		err := fmt.Errorf("could not find max version for project %d: %w", projectId, err)
		log.Error(err)
		return 0, err
	}
	if !maxVersion.Valid {
		return 1, nil
	}
	return int(maxVersion.Int64) + 1, nil
}

func (r *RepoImpl) CountBudgetLines(ctx context.Context, boqId int) (int, error) {
	query := `SELECT COUNT(*) FROM boq_line WHERE boq_id = $1 AND display_type = 'line'`
	var count int
	if err := r.db.QueryRowContext(ctx, query, boqId).Scan(&count); err != nil {
		err := fmt.Errorf("could not count boq lines: %w", err)
		log.Error(err)
		return 0, err
	}
	return count, nil
}

func (r *RepoImpl) TotalBudget(ctx context.Context, boqId int) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(budget_amount), 0) FROM boq_line WHERE boq_id = $1 AND display_type = 'line'`
	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, boqId).Scan(&total); err != nil {
		err := fmt.Errorf("could not sum boq budget: %w", err)
		log.Error(err)
		return decimal.Zero, err
	}
	return total, nil
}

func (r *RepoImpl) AddSection(ctx context.Context, s Section) (int, error) {
	query := `INSERT INTO boq_section (boq_id, name, sequence) VALUES ($1, $2, $3) RETURNING id`
	var id int
	if err := r.db.QueryRowContext(ctx, query, s.BoqId, s.Name, s.Sequence).Scan(&id); err != nil {
		err := fmt.Errorf("could not add boq section: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) ListSections(ctx context.Context, boqId int) ([]Section, error) {
	query := `SELECT id, boq_id, name, sequence FROM boq_section WHERE boq_id = $1 ORDER BY sequence, id`
	rows, err := r.db.QueryContext(ctx, query, boqId)
	if err != nil {
		err := fmt.Errorf("could not query boq sections: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.Id, &s.BoqId, &s.Name, &s.Sequence); err != nil {
			return nil, fmt.Errorf("could not scan boq section: %w", err)
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over sections: %w", err)
	}
	return sections, nil
}

const lineColumns = `id, boq_id, section_id, product_id, sequence, description, display_type, cost_type,
				quantity, uom, rate, budget_amount, additional_quantity, allow_over_consumption, expense_account_id, is_complete`

func scanLine(scan func(dest ...any) error) (Line, error) {
	var l Line
	var sectionId, productId sql.NullInt64
	if err := scan(
		&l.Id,
		&l.BoqId,
		&sectionId,
		&productId,
		&l.Sequence,
		&l.Description,
		&l.DisplayType,
		&l.CostType,
		&l.Quantity,
		&l.Uom,
		&l.Rate,
		&l.BudgetAmount,
		&l.AdditionalQuantity,
		&l.AllowOverConsumption,
		&l.ExpenseAccountId,
		&l.IsComplete,
	); err != nil {
		return Line{}, err
	}
	l.SectionId = int(sectionId.Int64)
	l.ProductId = int(productId.Int64)
	return l, nil
}

func (r *RepoImpl) AddLine(ctx context.Context, l Line) (int, error) {
	// The INSERT is guarded by the parent's state: once a BOQ is approved,
	// locked or closed no new budget lines may appear.
	query := `INSERT INTO boq_line (boq_id, section_id, product_id, sequence, description, display_type, cost_type,
					quantity, uom, rate, budget_amount, additional_quantity, allow_over_consumption, expense_account_id)
				SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
				WHERE (SELECT state FROM boq WHERE id = $1) IN ('draft', 'submitted')
				RETURNING id`
	var sectionParam, productParam interface{}
	if l.SectionId != 0 {
		sectionParam = l.SectionId
	}
	if l.ProductId != 0 {
		productParam = l.ProductId
	}
	var id int
	err := r.db.QueryRowContext(ctx, query,
		l.BoqId,
		sectionParam,
		productParam,
		l.Sequence,
		l.Description,
		l.DisplayType,
		l.CostType,
		l.Quantity,
		l.Uom,
		l.Rate,
		l.BudgetAmount,
		l.AdditionalQuantity,
		l.AllowOverConsumption,
		l.ExpenseAccountId,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// The state guard filtered the insert out.
		return 0, r.lockedErr(ctx, l.BoqId)
	} else if err != nil {
		err := fmt.Errorf("could not add boq line: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) UpdateLine(ctx context.Context, l Line) (bool, error) {
	query := `UPDATE boq_line SET
					section_id = $1,
					product_id = $2,
					sequence = $3,
					description = $4,
					cost_type = $5,
					quantity = $6,
					uom = $7,
					rate = $8,
					budget_amount = $9,
					additional_quantity = $10,
					allow_over_consumption = $11,
					expense_account_id = $12
				WHERE id = $13
				AND (SELECT state FROM boq WHERE id = boq_line.boq_id) IN ('draft', 'submitted')`
	var sectionParam, productParam interface{}
	if l.SectionId != 0 {
		sectionParam = l.SectionId
	}
	if l.ProductId != 0 {
		productParam = l.ProductId
	}
	result, err := r.db.ExecContext(ctx, query,
		sectionParam,
		productParam,
		l.Sequence,
		l.Description,
		l.CostType,
		l.Quantity,
		l.Uom,
		l.Rate,
		l.BudgetAmount,
		l.AdditionalQuantity,
		l.AllowOverConsumption,
		l.ExpenseAccountId,
		l.Id,
	)
	if err != nil {
		err := fmt.Errorf("could not update boq line: %w", err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		existing, err := r.GetLine(ctx, l.Id)
		if err != nil {
			return false, err
		}
		return false, r.lockedErr(ctx, existing.BoqId)
	}
	return true, nil
}

func (r *RepoImpl) DeleteLine(ctx context.Context, lineId int) (bool, error) {
	query := `DELETE FROM boq_line WHERE id = $1
				AND (SELECT state FROM boq WHERE id = boq_line.boq_id) IN ('draft', 'submitted')`
	result, err := r.db.ExecContext(ctx, query, lineId)
	if err != nil {
		err := fmt.Errorf("could not delete boq line: %w", err)
		log.Error(err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		existing, err := r.GetLine(ctx, lineId)
		if errors.Is(err, ErrLineNotFound) {
			return false, nil
		} else if err != nil {
			return false, err
		}
		return false, r.lockedErr(ctx, existing.BoqId)
	}
	return true, nil
}

// lockedErr builds the LockedDocumentError for a guarded write that matched
// zero rows because the parent document is no longer editable.
func (r *RepoImpl) lockedErr(ctx context.Context, boqId int) error {
	b, err := r.Get(ctx, boqId)
	if err != nil {
		return err
	}
	if b.State.Editable() {
		// Guard failed for another reason (row vanished between statements).
		return ErrLineNotFound
	}
	return LockedDocumentError{BoqId: boqId, State: b.State}
}

func (r *RepoImpl) GetLine(ctx context.Context, lineId int) (Line, error) {
	query := `SELECT ` + lineColumns + ` FROM boq_line WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, lineId)
	l, err := scanLine(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Line{}, ErrLineNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get boq line %d: %w", lineId, err)
		log.Error(err)
		return Line{}, err
	}
	return l, nil
}

func (r *RepoImpl) GetLineWithState(ctx context.Context, lineId int) (Line, State, error) {
	query := `SELECT l.id, l.boq_id, l.section_id, l.product_id, l.sequence, l.description, l.display_type, l.cost_type,
					l.quantity, l.uom, l.rate, l.budget_amount, l.additional_quantity, l.allow_over_consumption,
					l.expense_account_id, l.is_complete, b.state
				FROM boq_line l JOIN boq b ON b.id = l.boq_id
				WHERE l.id = $1`
	row := r.db.QueryRowContext(ctx, query, lineId)
	var l Line
	var state State
	var sectionId, productId sql.NullInt64
	err := row.Scan(
		&l.Id,
		&l.BoqId,
		&sectionId,
		&productId,
		&l.Sequence,
		&l.Description,
		&l.DisplayType,
		&l.CostType,
		&l.Quantity,
		&l.Uom,
		&l.Rate,
		&l.BudgetAmount,
		&l.AdditionalQuantity,
		&l.AllowOverConsumption,
		&l.ExpenseAccountId,
		&l.IsComplete,
		&state,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Line{}, "", ErrLineNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get boq line %d with state: %w", lineId, err)
		log.Error(err)
		return Line{}, "", err
	}
	l.SectionId = int(sectionId.Int64)
	l.ProductId = int(productId.Int64)
	return l, state, nil
}

func (r *RepoImpl) ListLines(ctx context.Context, boqId int) ([]Line, error) {
	query := `SELECT ` + lineColumns + ` FROM boq_line WHERE boq_id = $1 ORDER BY sequence, id`
	rows, err := r.db.QueryContext(ctx, query, boqId)
	if err != nil {
		err := fmt.Errorf("could not query boq lines: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		l, err := scanLine(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("could not scan boq line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over lines: %w", err)
	}
	return lines, nil
}

func (r *RepoImpl) SetLineComplete(ctx context.Context, lineId int, complete bool) error {
	query := `UPDATE boq_line SET is_complete = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, complete, lineId); err != nil {
		err := fmt.Errorf("could not update completion flag for line %d: %w", lineId, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepoImpl) GetProduct(ctx context.Context, productId int) (Product, error) {
	query := `SELECT id, name, uom, standard_price FROM product WHERE id = $1`
	var p Product
	err := r.db.QueryRowContext(ctx, query, productId).Scan(&p.Id, &p.Name, &p.Uom, &p.StandardPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get product %d: %w", productId, err)
		log.Error(err)
		return Product{}, err
	}
	return p, nil
}
