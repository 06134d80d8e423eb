package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yard-monitor/tracking/internal/config"
	"yard-monitor/tracking/internal/domain"
)

// PostgresStore is the durable archive of movements and notified alerts.
// It mirrors the in-memory authoritative log; readers that need deep
// history query it directly.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var movementColumns = []string{
	"id",
	"vehicle_id",
	"kind",
	"from_zone",
	"to_zone",
	"recorded_at",
	"source",
	"sensor_code",
	"confidence",
	"plate_read",
	"note",
}

func (s *PostgresStore) BatchInsertMovements(ctx context.Context, movements []domain.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(movements))
	for i, m := range movements {
		rows[i] = []interface{}{
			m.ID,
			m.VehicleID,
			string(m.Kind),
			nullable(m.FromZone),
			nullable(m.ToZone),
			m.RecordedAt,
			string(m.Source),
			nullable(m.SensorCode),
			m.Confidence,
			nullable(m.PlateRead),
			nullable(m.Note),
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"vehicle_movements"},
		movementColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(movements), err)
	}

	return nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a domain.Alert) error {
	query := `
		INSERT INTO vehicle_alerts
			(id, kind, vehicle_id, plate, title, message, severity, sensor_code, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		a.ID,
		string(a.Kind),
		nullable(a.VehicleID),
		nullable(a.Plate),
		a.Title,
		a.Message,
		string(a.Severity),
		nullable(a.SensorCode),
		a.CreatedAt,
	)
	return err
}

// nullable maps the domain's empty-string convention onto SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
