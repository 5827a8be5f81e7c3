package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

type RunsRepository struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewRunsRepository(db *pgxpool.Pool, timeout time.Duration) *RunsRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RunsRepository{db: db, timeout: timeout}
}

func (r *RunsRepository) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO runs(id, state, refresh, total, created_at, updated_at)
		VALUES($1, $2, $3, $4, $5, $6)
	`, run.ID, string(run.State), run.Refresh, run.Total, run.CreatedAt.UTC(), run.UpdatedAt.UTC())
	if err != nil {
		return domain.Run{}, err
	}
	return r.get(ctx, run.ID)
}

func (r *RunsRepository) Get(ctx context.Context, id string) (domain.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.get(ctx, id)
}

func (r *RunsRepository) get(ctx context.Context, id string) (domain.Run, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `
		SELECT id, state, refresh, total, created_at, updated_at, report
		FROM runs WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, ports.ErrNotFound
	}
	return run, err
}

func (r *RunsRepository) List(ctx context.Context, limit int) ([]domain.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, state, refresh, total, created_at, updated_at, report
		FROM runs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunsRepository) Finish(ctx context.Context, id string, state domain.RunState, report domain.BatchReport) (domain.Run, error) {
	if !domain.CanTransition(domain.RunRunning, state) {
		return domain.Run{}, domain.ErrInvalidTransition
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b, err := json.Marshal(report)
	if err != nil {
		return domain.Run{}, err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE runs SET state = $1, report = $2, updated_at = $3
		WHERE id = $4 AND state = $5
	`, string(state), string(b), time.Now().UTC(), id, string(domain.RunRunning))
	if err != nil {
		return domain.Run{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.Run{}, ports.ErrNotFound
	}
	return r.get(ctx, id)
}

// MarkInterrupted clôt les runs restés "running" après un arrêt brutal du process.
func (r *RunsRepository) MarkInterrupted(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE runs SET state = $1, updated_at = $2 WHERE state = $3
	`, string(domain.RunCanceled), time.Now().UTC(), string(domain.RunRunning))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (domain.Run, error) {
	var run domain.Run
	var state string
	var report []byte
	if err := row.Scan(&run.ID, &state, &run.Refresh, &run.Total, &run.CreatedAt, &run.UpdatedAt, &report); err != nil {
		return domain.Run{}, err
	}
	run.State = domain.RunState(state)
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	if len(report) > 0 {
		var rep domain.BatchReport
		if err := json.Unmarshal(report, &rep); err == nil {
			run.Report = &rep
		}
	}
	return run, nil
}
