package revision

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Repo interface {
	Store(ctx context.Context, r Revision) (int, error)
	ListForBoq(ctx context.Context, boqId int) ([]Revision, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Store(ctx context.Context, rev Revision) (int, error) {
	query := `INSERT INTO boq_revision (original_boq_id, new_boq_id, reason, approved_by) VALUES ($1, $2, $3, $4) RETURNING id`
	var requestedByParam interface{}
	if rev.RequestedById != 0 {
		requestedByParam = rev.RequestedById
	}
	var id int
	if err := r.db.QueryRowContext(ctx, query, rev.OriginalBoqId, rev.NewBoqId, rev.Reason, requestedByParam).Scan(&id); err != nil {
		err := fmt.Errorf("could not store revision: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

// ListForBoq returns revisions where the given BOQ is either side of the link.
func (r *RepoImpl) ListForBoq(ctx context.Context, boqId int) ([]Revision, error) {
	query := `SELECT id, original_boq_id, new_boq_id, reason, approved_by, created_at
				FROM boq_revision WHERE original_boq_id = $1 OR new_boq_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, boqId)
	if err != nil {
		err := fmt.Errorf("could not query revisions for boq %d: %w", boqId, err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		var requestedBy sql.NullInt64
		var createdAt string
		if err := rows.Scan(&rev.Id, &rev.OriginalBoqId, &rev.NewBoqId, &rev.Reason, &requestedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan revision: %w", err)
		}
		rev.RequestedById = int(requestedBy.Int64)
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			rev.CreatedAt = ts
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over revisions: %w", err)
	}
	return revisions, nil
}
