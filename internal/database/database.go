// Package database handles PostgreSQL connections and job record queries.
//
// Go Pattern: We use the `sqlx` package which extends Go's standard `database/sql`
// with convenient features like scanning rows into structs. Unlike an ORM
// (ActiveRecord, Sequelize), you write raw SQL — which gives you full control.
//
// Go's database/sql has built-in connection pooling — you create one *sql.DB
// (or *sqlx.DB) at startup and share it across your entire application.
// It's safe for concurrent use by multiple goroutines.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver — the underscore import runs its init()

	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
)

// ErrNotFound is returned when a job row does not exist.
var ErrNotFound = errors.New("job not found")

// Repository is the set of job record operations the handlers and workers
// need. Both *DB and *Memory implement it.
type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, j *models.Job) error
	MarkEdited(ctx context.Context, id string) error
	ListJobs(ctx context.Context, params models.JobListParams) ([]models.Job, int, error)
	DeleteJob(ctx context.Context, id string) error
}

// DB wraps the sqlx database connection with our application-specific methods.
// Go Pattern: Embedding (*sqlx.DB) gives us all of sqlx's methods automatically,
// plus we can add our own. This is Go's version of inheritance — composition.
type DB struct {
	*sqlx.DB
}

// New creates a new database connection with connection pooling configured.
func New(databaseURL string) (*DB, error) {
	// sqlx.Connect both opens the connection and pings the database
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	return &DB{db}, nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// CreateJob inserts a new job record. The ID is assigned by the job store
// before the row is written, so that files and rows share one identifier.
func (db *DB) CreateJob(ctx context.Context, j *models.Job) error {
	if len(j.Pages) == 0 {
		j.Pages = []byte("[]")
	}
	query := `
		INSERT INTO jobs (id, kind, status, original_name, page_count, word_count, pages, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return db.QueryRowContext(ctx, query,
		j.ID, j.Kind, j.Status, j.OriginalName,
		j.PageCount, j.WordCount, j.Pages, j.ErrorMessage,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
}

// GetJob retrieves a single job by ID.
func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	// GetContext is sqlx's convenience method — it scans directly into a struct
	// using the `db:"column_name"` tags we defined on the model.
	err := db.GetContext(ctx, &j, `SELECT * FROM jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// UpdateJob writes the mutable fields of a job back.
func (db *DB) UpdateJob(ctx context.Context, j *models.Job) error {
	if len(j.Pages) == 0 {
		j.Pages = []byte("[]")
	}
	query := `
		UPDATE jobs
		SET status = $2, page_count = $3, word_count = $4, pages = $5,
			error_message = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := db.QueryRowContext(ctx, query,
		j.ID, j.Status, j.PageCount, j.WordCount, j.Pages, j.ErrorMessage,
	).Scan(&j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// MarkEdited records that a new edited PDF has been saved for the job.
func (db *DB) MarkEdited(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, edit_count = edit_count + 1, error_message = '', updated_at = NOW()
		WHERE id = $1`, id, models.StatusEdited)
	if err != nil {
		return fmt.Errorf("failed to mark job edited: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobs returns a paginated list of jobs with optional filters.
func (db *DB) ListJobs(ctx context.Context, params models.JobListParams) ([]models.Job, int, error) {
	params = normalizeListParams(params)

	// Build WHERE clause dynamically
	var conditions []string
	var args []interface{}
	argNum := 1

	if params.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argNum))
		args = append(args, params.Kind)
		argNum++
	}
	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, params.Status)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs %s", whereClause)
	if err := db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}

	// sort_dir is validated by normalizeListParams, so it is safe to interpolate
	offset := (params.Page - 1) * params.PerPage
	selectQuery := fmt.Sprintf(
		"SELECT * FROM jobs %s ORDER BY created_at %s LIMIT $%d OFFSET $%d",
		whereClause, params.SortDir, argNum, argNum+1,
	)
	args = append(args, params.PerPage, offset)

	var jobs []models.Job
	if err := db.SelectContext(ctx, &jobs, selectQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list query failed: %w", err)
	}
	return jobs, total, nil
}

// DeleteJob removes a job record by ID.
func (db *DB) DeleteJob(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizeListParams applies defaults and bounds to list parameters.
func normalizeListParams(p models.JobListParams) models.JobListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 || p.PerPage > 100 {
		p.PerPage = 20
	}
	p.SortDir = strings.ToLower(p.SortDir)
	if p.SortDir != "asc" && p.SortDir != "desc" {
		p.SortDir = "desc"
	}
	return p
}
