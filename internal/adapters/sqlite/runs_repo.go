package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

type RunsRepository struct {
	db *sql.DB
}

func NewRunsRepository(db *sql.DB) *RunsRepository {
	return &RunsRepository{db: db}
}

func (r *RunsRepository) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs(id, state, refresh, total, created_at, updated_at, report_json)
		VALUES(?, ?, ?, ?, ?, ?, '')
	`, run.ID, string(run.State), boolInt(run.Refresh), run.Total, formatTime(run.CreatedAt), formatTime(run.UpdatedAt))
	if err != nil {
		return domain.Run{}, err
	}
	return r.Get(ctx, run.ID)
}

func (r *RunsRepository) Get(ctx context.Context, id string) (domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, state, refresh, total, created_at, updated_at, report_json
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, ports.ErrNotFound
		}
		return domain.Run{}, err
	}
	return run, nil
}

func (r *RunsRepository) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, state, refresh, total, created_at, updated_at, report_json
		FROM runs ORDER BY created_at DESC LIMIT ?
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
	b, err := json.Marshal(report)
	if err != nil {
		return domain.Run{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, report_json = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(state), string(b), formatTime(time.Now()), id, string(domain.RunRunning))
	if err != nil {
		return domain.Run{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Run{}, ports.ErrNotFound
	}
	return r.Get(ctx, id)
}

// MarkInterrupted clôt les runs restés "running" après un arrêt brutal du process.
func (r *RunsRepository) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET state = ?, updated_at = ? WHERE state = ?
	`, string(domain.RunCanceled), formatTime(time.Now()), string(domain.RunRunning))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRun(s rowScanner) (domain.Run, error) {
	var run domain.Run
	var refresh int
	var createdAt, updatedAt, reportJSON string
	if err := s.Scan(&run.ID, &run.State, &refresh, &run.Total, &createdAt, &updatedAt, &reportJSON); err != nil {
		return domain.Run{}, err
	}
	run.Refresh = refresh != 0
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	if reportJSON != "" {
		var rep domain.BatchReport
		if err := json.Unmarshal([]byte(reportJSON), &rep); err == nil {
			run.Report = &rep
		}
	}
	return run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
