package db

import (
	"database/sql"
	"log"
	"strings"
)

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
	Down        func(*sql.DB) error
}

// GetDataMigrations return all data migrations
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Constrain worker_id presence to the task status",
			Up:          addTaskWorkerCheck,
			Down:        dropTaskWorkerCheck,
		},
		{
			Version:     "data_002",
			Description: "One TASK_PAYMENT ledger transaction per task",
			Up:          addSinglePaymentIndex,
			Down:        dropSinglePaymentIndex,
		},
		{
			Version:     "data_003",
			Description: "One ledger transaction per on-chain signature",
			Up:          addUniqueSignatureIndex,
			Down:        dropUniqueSignatureIndex,
		},
	}
}

func addTaskWorkerCheck(db *sql.DB) error {
	log.Println("🔄 Adding tasks worker/status check constraint...")
	_, err := db.Exec(`
		ALTER TABLE tasks
		ADD CONSTRAINT tasks_worker_matches_status
		CHECK ((worker_id IS NULL) = (status = 'AVAILABLE'))
	`)
	return err
}

func dropTaskWorkerCheck(db *sql.DB) error {
	_, err := db.Exec(`ALTER TABLE tasks DROP CONSTRAINT IF EXISTS tasks_worker_matches_status`)
	return err
}

func addSinglePaymentIndex(db *sql.DB) error {
	log.Println("🔄 Adding unique task payment index...")
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ledger_transactions_one_payment_per_task
		ON ledger_transactions (task_id)
		WHERE type = 'TASK_PAYMENT'
	`)
	return err
}

func dropSinglePaymentIndex(db *sql.DB) error {
	_, err := db.Exec(`DROP INDEX IF EXISTS ledger_transactions_one_payment_per_task`)
	return err
}

func addUniqueSignatureIndex(db *sql.DB) error {
	log.Println("🔄 Adding unique ledger signature index...")
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ledger_transactions_unique_signature
		ON ledger_transactions (signature)
		WHERE signature <> 'manual_approval'
	`)
	return err
}

func dropUniqueSignatureIndex(db *sql.DB) error {
	_, err := db.Exec(`DROP INDEX IF EXISTS ledger_transactions_unique_signature`)
	return err
}

// RunDataMigrations apply pending data migrations, recording each in schema_migrations_log
func RunDataMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations_log (
			id SERIAL PRIMARY KEY,
			version VARCHAR(50) NOT NULL UNIQUE,
			description TEXT,
			executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			status VARCHAR(20) DEFAULT 'completed'
		)
	`); err != nil {
		return err
	}

	for _, migration := range GetDataMigrations() {
		var count int
		if err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1",
			migration.Version,
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			log.Printf("📋 Data migration %s already applied", migration.Version)
			continue
		}

		log.Printf("🚀 Applying data migration %s: %s", migration.Version, migration.Description)
		if err := migration.Up(db); err != nil {
			// constraint left over from a run that failed before logging
			if !strings.Contains(err.Error(), "already exists") {
				log.Printf("❌ Data migration %s failed: %v", migration.Version, err)
				return err
			}
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return err
		}
		log.Printf("✅ Data migration %s applied", migration.Version)
	}
	return nil
}
