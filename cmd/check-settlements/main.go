package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"datalabel-backend/internal/config"

	_ "github.com/lib/pq"
)

// Read-only audit of payment bookkeeping: open custody transfers, tasks whose
// worker does not match their status, and tasks paid more or less than once.
func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	fmt.Println("🔍 Checking settlement consistency...")
	fmt.Println(strings.Repeat("=", 60))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("database.driver is %q, nothing to check", cfg.Database.Driver)
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n\n", dbName)

	problems := 0

	// open custody transfers are expected while a payout confirms
	rows, err := sqlDB.Query(`
		SELECT task_id, signature, amount, last_valid_block_height, created_at
		FROM settlement_attempts
		ORDER BY created_at
	`)
	if err != nil {
		log.Fatalf("Failed to query settlement attempts: %v", err)
	}
	open := 0
	for rows.Next() {
		var taskID, signature, createdAt string
		var amount int64
		var lastValid uint64
		if err := rows.Scan(&taskID, &signature, &amount, &lastValid, &createdAt); err != nil {
			log.Fatalf("Failed to scan settlement attempt: %v", err)
		}
		open++
		fmt.Printf("⏳ open transfer task=%s sig=%s amount=%d valid_until=%d since=%s\n",
			taskID, signature, amount, lastValid, createdAt)
	}
	rows.Close()
	fmt.Printf("📋 Open custody transfers: %d\n\n", open)

	problems += report(sqlDB, "Tasks whose worker does not match their status", `
		SELECT id FROM tasks
		WHERE (worker_id IS NULL) <> (status = 'AVAILABLE')
	`)
	problems += report(sqlDB, "Completed tasks without a payment", `
		SELECT t.id FROM tasks t
		LEFT JOIN ledger_transactions l ON l.task_id = t.id AND l.type = 'TASK_PAYMENT'
		WHERE t.status = 'COMPLETED' AND l.id IS NULL
	`)
	problems += report(sqlDB, "Tasks paid more than once", `
		SELECT task_id FROM ledger_transactions
		WHERE type = 'TASK_PAYMENT'
		GROUP BY task_id HAVING COUNT(*) > 1
	`)
	problems += report(sqlDB, "Payments for tasks that are not completed", `
		SELECT l.task_id FROM ledger_transactions l
		JOIN tasks t ON t.id = l.task_id
		WHERE l.type = 'TASK_PAYMENT' AND t.status <> 'COMPLETED'
	`)

	fmt.Println(strings.Repeat("=", 60))
	if problems > 0 {
		fmt.Printf("❌ %d inconsistent record(s) found\n", problems)
		os.Exit(1)
	}
	fmt.Println("✅ Settlement bookkeeping is consistent")
}

func report(db *sql.DB, title, query string) int {
	rows, err := db.Query(query)
	if err != nil {
		log.Fatalf("Failed to run check %q: %v", title, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.Fatalf("Failed to scan check %q: %v", title, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		fmt.Printf("✅ %s: none\n", title)
		return 0
	}
	fmt.Printf("❌ %s: %d\n", title, len(ids))
	for _, id := range ids {
		fmt.Printf("   - %s\n", id)
	}
	return len(ids)
}
