package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var ErrProjectNotFound = errors.New("project not found")

type Repo interface {
	Store(ctx context.Context, p Project) (int, error)
	Get(ctx context.Context, id int) (Project, error)
	GetAll(ctx context.Context) ([]Project, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Store(ctx context.Context, p Project) (int, error) {
	query := `INSERT INTO project (name, analytic_account_id, company_id) VALUES ($1, $2, $3) RETURNING id`
	var id int
	if err := r.db.QueryRowContext(ctx, query, p.Name, p.AnalyticAccountId, p.CompanyId).Scan(&id); err != nil {
		err := fmt.Errorf("could not store project: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (Project, error) {
	query := `SELECT id, name, analytic_account_id, company_id FROM project WHERE id = $1`
	var p Project
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.Id, &p.Name, &p.AnalyticAccountId, &p.CompanyId)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrProjectNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get project %d: %w", id, err)
		log.Error(err)
		return Project{}, err
	}
	return p, nil
}

func (r *RepoImpl) GetAll(ctx context.Context) ([]Project, error) {
	query := `SELECT id, name, analytic_account_id, company_id FROM project ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query projects: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Id, &p.Name, &p.AnalyticAccountId, &p.CompanyId); err != nil {
			return nil, fmt.Errorf("could not scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over projects: %w", err)
	}
	return projects, nil
}
