package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/database"
)

// Repository handles strategy portfolio persistence
// ⭐ SSOT: strategy 스키마 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new strategy repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const portfolioColumns = `
	id, name, account_id, benchmark_code, fee_rate::float8, scope_codes,
	active_version_id, created_at, updated_at
`

func scanPortfolio(row pgx.Row) (*contracts.Portfolio, error) {
	var p contracts.Portfolio
	err := row.Scan(
		&p.ID, &p.Name, &p.AccountID, &p.BenchmarkCode, &p.FeeRate, &p.ScopeCodes,
		&p.ActiveVersionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPortfolio stores a portfolio with its first (active) version
func (r *Repository) InsertPortfolio(ctx context.Context, p *contracts.Portfolio, v *contracts.PortfolioVersion) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO strategy.portfolios (name, account_id, benchmark_code, fee_rate, scope_codes)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`, p.Name, p.AccountID, p.BenchmarkCode, p.FeeRate, p.ScopeCodes).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert portfolio: %w", err)
		}

		v.PortfolioID = p.ID
		v.VersionNo = 1
		if err := insertVersion(ctx, tx, v); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			"UPDATE strategy.portfolios SET active_version_id = $2 WHERE id = $1",
			p.ID, v.ID,
		); err != nil {
			return fmt.Errorf("failed to set active version: %w", err)
		}
		p.ActiveVersionID = &v.ID
		return nil
	})
}

// InsertVersion appends a version with version_no = max+1
func (r *Repository) InsertVersion(ctx context.Context, v *contracts.PortfolioVersion, activate bool, scope []string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, "SELECT id FROM strategy.portfolios WHERE id = $1 FOR UPDATE", v.PortfolioID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return contracts.NotFound("portfolio", v.PortfolioID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock portfolio: %w", err)
		}

		if err := tx.QueryRow(ctx,
			"SELECT COALESCE(MAX(version_no), 0) + 1 FROM strategy.versions WHERE portfolio_id = $1",
			v.PortfolioID,
		).Scan(&v.VersionNo); err != nil {
			return fmt.Errorf("failed to get next version number: %w", err)
		}

		if activate {
			if _, err := tx.Exec(ctx,
				"UPDATE strategy.versions SET is_active = FALSE WHERE portfolio_id = $1",
				v.PortfolioID,
			); err != nil {
				return fmt.Errorf("failed to deactivate versions: %w", err)
			}
		}

		v.IsActive = activate
		if err := insertVersion(ctx, tx, v); err != nil {
			return err
		}

		query := "UPDATE strategy.portfolios SET scope_codes = $2, updated_at = NOW() WHERE id = $1"
		args := []interface{}{v.PortfolioID, scope}
		if activate {
			query = "UPDATE strategy.portfolios SET scope_codes = $2, active_version_id = $3, updated_at = NOW() WHERE id = $1"
			args = append(args, v.ID)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update portfolio: %w", err)
		}
		return nil
	})
}

func insertVersion(ctx context.Context, tx pgx.Tx, v *contracts.PortfolioVersion) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO strategy.versions (portfolio_id, version_no, effective_date, note, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, v.PortfolioID, v.VersionNo, v.EffectiveDate, v.Note, v.IsActive).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}

	batch := &pgx.Batch{}
	for _, t := range v.Targets {
		batch.Queue("INSERT INTO strategy.holdings (version_id, code, weight) VALUES ($1, $2, $3)", v.ID, t.Code, t.Weight)
	}
	results := tx.SendBatch(ctx, batch)
	for range v.Targets {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert holding: %w", err)
		}
	}
	return results.Close()
}

// ActivateVersion flips the active flag to versionID
func (r *Repository) ActivateVersion(ctx context.Context, portfolioID, versionID int64) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"UPDATE strategy.versions SET is_active = FALSE WHERE portfolio_id = $1",
			portfolioID,
		); err != nil {
			return fmt.Errorf("failed to deactivate versions: %w", err)
		}

		tag, err := tx.Exec(ctx,
			"UPDATE strategy.versions SET is_active = TRUE WHERE portfolio_id = $1 AND id = $2",
			portfolioID, versionID,
		)
		if err != nil {
			return fmt.Errorf("failed to activate version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return contracts.NotFound("version", versionID)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE strategy.portfolios SET active_version_id = $2, updated_at = NOW() WHERE id = $1",
			portfolioID, versionID,
		); err != nil {
			return fmt.Errorf("failed to set active version: %w", err)
		}
		return nil
	})
}

// UpdateScope replaces scope_codes
func (r *Repository) UpdateScope(ctx context.Context, portfolioID int64, scope []string) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE strategy.portfolios SET scope_codes = $2, updated_at = NOW() WHERE id = $1",
		portfolioID, scope,
	)
	if err != nil {
		return fmt.Errorf("failed to update scope: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NotFound("portfolio", portfolioID)
	}
	return nil
}

// DeletePortfolio deletes a portfolio; versions, holdings and batches cascade
func (r *Repository) DeletePortfolio(ctx context.Context, portfolioID int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM strategy.portfolios WHERE id = $1", portfolioID)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NotFound("portfolio", portfolioID)
	}
	return nil
}

// GetPortfolio loads one portfolio
func (r *Repository) GetPortfolio(ctx context.Context, portfolioID int64) (*contracts.Portfolio, error) {
	p, err := scanPortfolio(r.pool.QueryRow(ctx,
		"SELECT "+portfolioColumns+" FROM strategy.portfolios WHERE id = $1", portfolioID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.NotFound("portfolio", portfolioID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return p, nil
}

// ListPortfolios lists portfolios newest first, optionally for one account
func (r *Repository) ListPortfolios(ctx context.Context, accountID *int64) ([]contracts.Portfolio, error) {
	query := "SELECT " + portfolioColumns + " FROM strategy.portfolios WHERE ($1::bigint IS NULL OR account_id = $1) ORDER BY id DESC"

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]contracts.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return portfolios, nil
}

// ListVersions returns every version of a portfolio with its targets
func (r *Repository) ListVersions(ctx context.Context, portfolioID int64) ([]contracts.PortfolioVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, portfolio_id, version_no, effective_date, note, is_active, created_at
		FROM strategy.versions
		WHERE portfolio_id = $1
		ORDER BY version_no DESC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	versions := make([]contracts.PortfolioVersion, 0)
	index := map[int64]int{}
	ids := make([]int64, 0)
	for rows.Next() {
		var v contracts.PortfolioVersion
		if err := rows.Scan(&v.ID, &v.PortfolioID, &v.VersionNo, &v.EffectiveDate, &v.Note, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.Targets = contracts.TargetSet{}
		index[v.ID] = len(versions)
		ids = append(ids, v.ID)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if len(ids) == 0 {
		return versions, nil
	}

	hrows, err := r.pool.Query(ctx, `
		SELECT version_id, code, weight::float8
		FROM strategy.holdings
		WHERE version_id = ANY($1)
		ORDER BY version_id, code
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer hrows.Close()

	for hrows.Next() {
		var versionID int64
		var t contracts.WeightTarget
		if err := hrows.Scan(&versionID, &t.Code, &t.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		i := index[versionID]
		versions[i].Targets = append(versions[i].Targets, t)
	}
	if err := hrows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return versions, nil
}

// AllScopeCodes returns the union of every portfolio's scope (used by nav sync)
func (r *Repository) AllScopeCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT code FROM (
			SELECT UNNEST(scope_codes) AS code FROM strategy.portfolios
			UNION
			SELECT benchmark_code FROM strategy.portfolios
		) c ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scope codes: %w", err)
	}
	defer rows.Close()

	codes := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
