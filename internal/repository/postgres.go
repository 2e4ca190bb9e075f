// Package repository содержит журнал запусков синхронизации в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound возвращается, если запуск с указанным идентификатором не найден.
var ErrRunNotFound = errors.New("sync run not found")

// RunStatus описывает состояние запуска синхронизации в журнале.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// SyncRun описывает одну запись журнала запусков.
type SyncRun struct {
	ID         string
	QuoteID    string
	Status     RunStatus
	Error      *string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// PostgresRepository предоставляет доступ к журналу запусков в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Повторяем только сериализационные сбои, дедлоки и сетевые ошибки.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateRun фиксирует начало запуска синхронизации.
func (r *PostgresRepository) CreateRun(ctx context.Context, id, quoteID string) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO sync_runs (id, quote_id, status) VALUES ($1, $2, $3)`,
			id, quoteID, string(RunStatusRunning),
		)
		if err != nil {
			return fmt.Errorf("insert sync run: %w", err)
		}
		return nil
	})
}

// FinishRun фиксирует итог запуска: статус и сообщение об ошибке, если она была.
func (r *PostgresRepository) FinishRun(ctx context.Context, id string, status RunStatus, errMessage string) error {
	var errValue *string
	if errMessage != "" {
		errValue = &errMessage
	}

	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE sync_runs SET status = $2, error = $3, finished_at = now() WHERE id = $1`,
			id, string(status), errValue,
		)
		if err != nil {
			return fmt.Errorf("update sync run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRunNotFound
		}
		return nil
	})
}

// RecentRuns возвращает последние запуски синхронизации, новые первыми.
func (r *PostgresRepository) RecentRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quote_id, status, error, started_at, finished_at
		 FROM sync_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select sync runs: %w", err)
	}
	defer rows.Close()

	var res []SyncRun
	for rows.Next() {
		var run SyncRun
		var status string
		if err := rows.Scan(&run.ID, &run.QuoteID, &status, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		run.Status = RunStatus(status)
		res = append(res, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
