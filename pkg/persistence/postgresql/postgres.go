// Package postgresql stores the execution history in PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/persistence"
	"github.com/dukex/gridfn/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// History implements persistence.History.
type History struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewHistory connects to databaseURL and runs the migrations.
func NewHistory(ctx context.Context, logger *slog.Logger, databaseURL string) (*History, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgres_history")

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &History{db: database, logger: logger}, nil
}

func (h *History) Save(ctx context.Context, record models.ExecutionRecord) error {
	if record.ID == "" {
		return persistence.NewRecordError("Save", "", persistence.ErrInvalidRecord)
	}

	filterJSON, err := json.Marshal(record.Filter)
	if err != nil {
		return fmt.Errorf("failed to marshal filter: %w", err)
	}

	excludedJSON, err := json.Marshal(record.ExcludedMembers)
	if err != nil {
		return fmt.Errorf("failed to marshal excluded members: %w", err)
	}

	query := `
		INSERT INTO function_executions (
			id, connection_id, region_name, function_id, topology, has_result,
			is_re_execute, filter, excluded_members, status, failure_kind,
			error_message, chunks, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			failure_kind = EXCLUDED.failure_kind,
			error_message = EXCLUDED.error_message,
			chunks = EXCLUDED.chunks,
			completed_at = EXCLUDED.completed_at
	`

	_, err = h.db.ExecContext(ctx, query,
		record.ID,
		record.ConnectionID,
		record.RegionName,
		record.FunctionID,
		record.Topology,
		record.HasResult,
		record.IsReExecute,
		filterJSON,
		excludedJSON,
		string(record.Status),
		record.FailureKind,
		record.Error,
		record.Chunks,
		record.StartedAt,
		record.CompletedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Save", record.ID, err)
	}

	return nil
}

const selectColumns = `
	SELECT id, connection_id, region_name, function_id, topology, has_result,
		is_re_execute, filter, excluded_members, status, failure_kind,
		error_message, chunks, started_at, completed_at
	FROM function_executions
`

func (h *History) Recent(ctx context.Context, limit int) ([]models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := h.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, persistence.NewRecordError("Recent", "", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	records := make([]models.ExecutionRecord, 0, limit)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, persistence.NewRecordError("Recent", "", err)
		}

		records = append(records, *record)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewRecordError("Recent", "", err)
	}

	return records, nil
}

func (h *History) ByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	row := h.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRecordError("ByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewRecordError("ByID", id, err)
	}

	return record, nil
}

func (h *History) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx, `DELETE FROM function_executions WHERE completed_at < $1`, before)
	if err != nil {
		return 0, persistence.NewRecordError("Prune", "", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewRecordError("Prune", "", err)
	}

	h.logger.InfoContext(ctx, "Pruned execution history", "before", before, "deleted", n)

	return n, nil
}

func (h *History) HealthCheck(ctx context.Context) error {
	err := h.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

func (h *History) Close(context.Context) error {
	err := h.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.ExecutionRecord, error) {
	var (
		record       models.ExecutionRecord
		status       string
		topology     sql.NullString
		failureKind  sql.NullString
		errorMessage sql.NullString
		filterJSON   []byte
		excludedJSON []byte
	)

	err := s.Scan(
		&record.ID,
		&record.ConnectionID,
		&record.RegionName,
		&record.FunctionID,
		&topology,
		&record.HasResult,
		&record.IsReExecute,
		&filterJSON,
		&excludedJSON,
		&status,
		&failureKind,
		&errorMessage,
		&record.Chunks,
		&record.StartedAt,
		&record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.ExecutionStatus(status)
	record.Topology = topology.String
	record.FailureKind = failureKind.String
	record.Error = errorMessage.String

	if len(filterJSON) > 0 {
		err = json.Unmarshal(filterJSON, &record.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal filter: %w", err)
		}
	}

	if len(excludedJSON) > 0 {
		err = json.Unmarshal(excludedJSON, &record.ExcludedMembers)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal excluded members: %w", err)
		}
	}

	return &record, nil
}
