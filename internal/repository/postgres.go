package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/sponsorpay-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит журнал трекинга в PostgreSQL.
// Инкременты счётчика открытий выполняются одним UPDATE, поэтому
// параллельные открытия одного письма не теряются.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт репозиторий и инициализирует схему БД через миграции.
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

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Ретраи имеют смысл для Serialization Failure и Deadlock;
			// переподключением занимается сам pgxpool.
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
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateRecord добавляет новую запись трекинга.
func (r *PostgresRepository) CreateRecord(ctx context.Context, rec model.TrackingRecord) error {
	clicks, err := json.Marshal(rec.Clicks)
	if err != nil {
		return fmt.Errorf("marshal clicks: %w", err)
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO tracking_records (id, recipient, campaign, sent_at, opened, opened_at, open_count, click_count, clicks)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.TrackingID, rec.Recipient, rec.Campaign, rec.SentAt,
			rec.Opened, rec.OpenedAt, rec.OpenCount, rec.ClickCount, clicks,
		)
		if err != nil {
			return fmt.Errorf("insert tracking record: %w", err)
		}
		return nil
	})
}

// GetRecord возвращает запись по идентификатору или nil, если её нет.
func (r *PostgresRepository) GetRecord(ctx context.Context, trackingID string) (*model.TrackingRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, recipient, campaign, sent_at, opened, opened_at, open_count, click_count, clicks
		 FROM tracking_records
		 WHERE id = $1`,
		trackingID,
	)

	rec, err := scanTrackingRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tracking record: %w", err)
	}

	return rec, nil
}

// RecordOpen фиксирует открытие письма одним атомарным UPDATE.
// Отметка первого открытия выставляется ровно один раз через COALESCE.
// Неизвестный идентификатор — no-op.
func (r *PostgresRepository) RecordOpen(ctx context.Context, trackingID string, openedAt time.Time) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE tracking_records
			 SET opened = TRUE,
			     opened_at = COALESCE(opened_at, $2),
			     open_count = open_count + 1
			 WHERE id = $1`,
			trackingID, openedAt,
		)
		if err != nil {
			return fmt.Errorf("record open: %w", err)
		}
		return nil
	})
}

// ListRecords возвращает весь журнал трекинга.
func (r *PostgresRepository) ListRecords(ctx context.Context) (map[string]model.TrackingRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, recipient, campaign, sent_at, opened, opened_at, open_count, click_count, clicks
		 FROM tracking_records
		 ORDER BY sent_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select tracking records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]model.TrackingRecord)
	for rows.Next() {
		rec, err := scanTrackingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracking record: %w", err)
		}
		records[rec.TrackingID] = *rec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

func scanTrackingRecord(row pgx.Row) (*model.TrackingRecord, error) {
	var (
		rec    model.TrackingRecord
		clicks []byte
	)
	if err := row.Scan(
		&rec.TrackingID, &rec.Recipient, &rec.Campaign, &rec.SentAt,
		&rec.Opened, &rec.OpenedAt, &rec.OpenCount, &rec.ClickCount, &clicks,
	); err != nil {
		return nil, err
	}

	if len(clicks) > 0 {
		if err := json.Unmarshal(clicks, &rec.Clicks); err != nil {
			return nil, fmt.Errorf("unmarshal clicks: %w", err)
		}
	}
	if rec.Clicks == nil {
		rec.Clicks = []model.ClickEvent{}
	}

	return &rec, nil
}
