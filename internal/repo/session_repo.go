package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/onboarder/internal/domain"
)

// SessionRepo — хранилище run'ов в PostgreSQL (таблица onboarding_sessions).
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const selectSession = `
	SELECT id, property_id, url, domain, force_refresh, status, errors, steps,
	       step_order, cache_decision, created_at, updated_at, finished_at, version
	FROM onboarding_sessions
`

// Create сохраняет новый run.
func (r *SessionRepo) Create(ctx context.Context, run *domain.WorkflowRun) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO onboarding_sessions (
			id, property_id, url, domain, force_refresh, status, current_step,
			completed_steps, errors, steps, step_order, cache_decision,
			created_at, updated_at, finished_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.pool.Exec(ctx, query,
		run.SessionID,
		row.propertyID,
		run.URL,
		run.Domain,
		run.ForceRefresh,
		run.Status,
		row.currentStep,
		row.completedSteps,
		row.errors,
		row.steps,
		run.Order,
		row.cacheDecision,
		run.CreatedAt,
		run.UpdatedAt,
		run.FinishedAt,
		run.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: session %s", ErrAlreadyExists, run.SessionID)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get возвращает run по ID.
func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	return scanSession(r.pool.QueryRow(ctx, selectSession+` WHERE id = $1`, id))
}

// Update сохраняет run, если его версия не изменилась с момента чтения.
// При успехе увеличивает run.Version.
func (r *SessionRepo) Update(ctx context.Context, run *domain.WorkflowRun) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE onboarding_sessions
		SET property_id = $2, status = $3, current_step = $4, completed_steps = $5,
		    errors = $6, steps = $7, cache_decision = $8, updated_at = $9,
		    finished_at = $10, version = version + 1
		WHERE id = $1 AND version = $11
	`
	result, err := r.pool.Exec(ctx, query,
		run.SessionID,
		row.propertyID,
		run.Status,
		row.currentStep,
		row.completedSteps,
		row.errors,
		row.steps,
		row.cacheDecision,
		run.UpdatedAt,
		run.FinishedAt,
		run.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM onboarding_sessions WHERE id = $1)`, run.SessionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return fmt.Errorf("%w: session %s at version %d", ErrConflict, run.SessionID, run.Version)
	}

	run.Version++
	return nil
}

// LatestByProperty возвращает последний run объекта.
func (r *SessionRepo) LatestByProperty(ctx context.Context, propertyID string) (*domain.WorkflowRun, error) {
	return scanSession(r.pool.QueryRow(ctx,
		selectSession+` WHERE property_id = $1 ORDER BY created_at DESC LIMIT 1`, propertyID))
}

// ListActive возвращает незавершённые run'ы, старые первыми.
func (r *SessionRepo) ListActive(ctx context.Context, limit int) ([]*domain.WorkflowRun, error) {
	rows, err := r.pool.Query(ctx,
		selectSession+` WHERE status IN ('started', 'in_progress') ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var runs []*domain.WorkflowRun
	for rows.Next() {
		run, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// sessionRow — сериализованные колонки run'а.
type sessionRow struct {
	propertyID     *string
	currentStep    *string
	completedSteps []string
	errors         []byte
	steps          []byte
	cacheDecision  []byte
}

func toRow(run *domain.WorkflowRun) (*sessionRow, error) {
	rec := run.Record()

	errorsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return nil, fmt.Errorf("marshal errors: %w", err)
	}
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}

	row := &sessionRow{
		propertyID:     rec.PropertyID,
		currentStep:    rec.CurrentStep,
		completedSteps: rec.CompletedSteps,
		errors:         errorsJSON,
		steps:          stepsJSON,
	}
	if run.CacheDecision != nil {
		row.cacheDecision, err = json.Marshal(run.CacheDecision)
		if err != nil {
			return nil, fmt.Errorf("marshal cache decision: %w", err)
		}
	}
	return row, nil
}

// scanSession сканирует одну строку в WorkflowRun.
func scanSession(row pgx.Row) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var propertyID *string
	var errorsJSON, stepsJSON, decisionJSON []byte

	err := row.Scan(
		&run.SessionID,
		&propertyID,
		&run.URL,
		&run.Domain,
		&run.ForceRefresh,
		&run.Status,
		&errorsJSON,
		&stepsJSON,
		&run.Order,
		&decisionJSON,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.FinishedAt,
		&run.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if propertyID != nil {
		run.PropertyID = *propertyID
	}
	if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	if run.Errors == nil {
		run.Errors = []domain.StepError{}
	}
	if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if decisionJSON != nil {
		run.CacheDecision = &domain.CacheDecision{}
		if err := json.Unmarshal(decisionJSON, run.CacheDecision); err != nil {
			return nil, fmt.Errorf("unmarshal cache decision: %w", err)
		}
	}

	return &run, nil
}
