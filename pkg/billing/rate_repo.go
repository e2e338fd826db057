package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrNoRate = errors.New("no exchange rate")

// RateRepo resolves exchange rates into the company currency.
type RateRepo interface {
	// RateAt returns the conversion factor for one unit of the given currency
	// on the given date, using the latest rate effective on or before it.
	RateAt(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error)
	Store(ctx context.Context, currency string, date time.Time, rate decimal.Decimal) error
}

type RateRepoImpl struct {
	db *sql.DB
}

func NewRateRepo(db *sql.DB) *RateRepoImpl {
	return &RateRepoImpl{db: db}
}

func (r *RateRepoImpl) RateAt(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	query := `SELECT rate FROM currency_rate WHERE currency = $1 AND rate_date <= $2 ORDER BY rate_date DESC LIMIT 1`
	var rate decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, currency, date.Format(dateFormat)).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w for %s on %s", ErrNoRate, currency, date.Format(dateFormat))
	} else if err != nil {
		err := fmt.Errorf("could not resolve rate for %s: %w", currency, err)
		log.Error(err)
		return decimal.Zero, err
	}
	return rate, nil
}

func (r *RateRepoImpl) Store(ctx context.Context, currency string, date time.Time, rate decimal.Decimal) error {
	query := `INSERT INTO currency_rate (currency, rate_date, rate) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, currency, date.Format(dateFormat), rate); err != nil {
		err := fmt.Errorf("could not store rate for %s: %w", currency, err)
		log.Error(err)
		return err
	}
	return nil
}
