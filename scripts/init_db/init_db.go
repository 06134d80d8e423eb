package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "yard_user"),
		dbGetEnv("DB_PASSWORD", "yard_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "yard_monitor"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_movements_table(ctx, conn)
	step2_alerts_table(ctx, conn)
	step3_indexes(ctx, conn)
	step4_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — vehicle_movements table
// ─────────────────────────────────────────────────────────────
func step1_movements_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: vehicle_movements table ─────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicle_movements (

			-- Movement IDs are generated by the tracker (UUID v4)
			id           TEXT             PRIMARY KEY,

			vehicle_id   TEXT             NOT NULL,

			-- Must exactly match domain.MovementKind constants:
			-- entry | exit | zone_change | detection
			kind         TEXT             NOT NULL,

			-- NULL from_zone = vehicle was off premises
			-- NULL to_zone   = vehicle left the facility
			from_zone    TEXT,
			to_zone      TEXT,

			recorded_at  TIMESTAMPTZ      NOT NULL,

			-- Server receipt time — separate from the event timestamp
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			-- Must exactly match domain.EventSource constants:
			-- manual | camera
			source       TEXT             NOT NULL,

			-- Camera-only columns, NULL for manual events
			sensor_code  TEXT,
			confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
			plate_read   TEXT,

			note         TEXT,

			CONSTRAINT chk_movement_kind CHECK (
				kind IN ('entry', 'exit', 'zone_change', 'detection')
			),
			CONSTRAINT chk_movement_source CHECK (
				source IN ('manual', 'camera')
			)
		);
	`, "vehicle_movements table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2 — vehicle_alerts table
// ─────────────────────────────────────────────────────────────
func step2_alerts_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: vehicle_alerts table ────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicle_alerts (

			-- Alert IDs are generated by the rule engine (UUID v4)
			id           TEXT         PRIMARY KEY,

			-- Must exactly match domain.AlertKind constants:
			-- inactivity | possible_delivery_ready |
			-- unregistered_entry | unauthorized_exit | custom
			kind         TEXT         NOT NULL,

			-- NULL vehicle_id = plate-keyed alert (unregistered plate)
			vehicle_id   TEXT,
			plate        TEXT,

			title        TEXT         NOT NULL,
			message      TEXT         NOT NULL,

			-- Must exactly match domain.AlertSeverity constants:
			-- low | medium | high | critical
			severity     TEXT         NOT NULL,

			sensor_code  TEXT,

			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_alert_kind CHECK (
				kind IN ('inactivity', 'possible_delivery_ready',
				         'unregistered_entry', 'unauthorized_exit', 'custom')
			),
			CONSTRAINT chk_alert_severity CHECK (
				severity IN ('low', 'medium', 'high', 'critical')
			)
		);
	`, "vehicle_alerts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — Indexes
// ─────────────────────────────────────────────────────────────
func step3_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_movements_vehicle_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_movements_vehicle_time
				  ON vehicle_movements (vehicle_id, recorded_at DESC);`,
			why: "query: movement history for one vehicle",
		},
		{
			name: "idx_movements_kind_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_movements_kind_time
				  ON vehicle_movements (kind, recorded_at DESC);`,
			why: "query: today's entries/exits",
		},
		{
			name: "idx_movements_plate",
			sql: `CREATE INDEX IF NOT EXISTS idx_movements_plate
				  ON vehicle_movements (plate_read)
				  WHERE plate_read IS NOT NULL;`,
			why: "query: raw detections by plate (partial index)",
		},
		{
			name: "idx_alerts_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_vehicle
				  ON vehicle_alerts (vehicle_id, created_at DESC);`,
			why: "query: alerts for one vehicle",
		},
		{
			name: "idx_alerts_kind",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_kind
				  ON vehicle_alerts (kind, created_at DESC);`,
			why: "query: alerts by rule kind",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 4 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step4_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: Verification ────────────────────────")

	tables := []string{"vehicle_movements", "vehicle_alerts"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var indexCount int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('vehicle_movements', 'vehicle_alerts')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
