package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Analytics runs aggregate performance queries over completed strategies on
// a dedicated raw connection pool, keeping heavy reads off the ORM path.
type Analytics struct {
	conn *sql.DB
}

// NewAnalytics opens the analytics connection pool.
func NewAnalytics(host, port, user, password, dbname string) (*Analytics, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pool sized for periodic aggregate reads, not the trading hot path.
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(2 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Analytics database connection established")
	return &Analytics{conn: conn}, nil
}

// Close closes the analytics pool.
func (a *Analytics) Close() error {
	if a.conn != nil {
		log.Println("📡 Closing analytics database connection...")
		return a.conn.Close()
	}
	return nil
}

// PatternPerformance is the aggregate outcome of one pattern.
type PatternPerformance struct {
	PatternName      string
	Completed        int
	Wins             int
	WinRate          float64
	AvgProfitPercent float64
}

// PatternPerformanceSince aggregates win rate and average P&L per pattern
// for strategies completed after the cutoff.
func (a *Analytics) PatternPerformanceSince(ctx context.Context, since time.Time) ([]PatternPerformance, error) {
	rows, err := a.conn.QueryContext(ctx, `
		SELECT
			strategy_name,
			COUNT(*) AS completed,
			COUNT(*) FILTER (WHERE profit_loss > 0) AS wins,
			COALESCE(AVG(profit_loss_percent), 0) AS avg_profit_percent
		FROM strategy_histories
		WHERE completion_time >= $1
		GROUP BY strategy_name
		ORDER BY completed DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern performance: %w", err)
	}
	defer rows.Close()

	var out []PatternPerformance
	for rows.Next() {
		var p PatternPerformance
		if err := rows.Scan(&p.PatternName, &p.Completed, &p.Wins, &p.AvgProfitPercent); err != nil {
			return nil, fmt.Errorf("failed to scan pattern performance row: %w", err)
		}
		if p.Completed > 0 {
			p.WinRate = float64(p.Wins) / float64(p.Completed)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CompletionBreakdownSince counts completions by type (target/stop/sell)
// after the cutoff.
func (a *Analytics) CompletionBreakdownSince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := a.conn.QueryContext(ctx, `
		SELECT completion_type, COUNT(*)
		FROM strategy_histories
		WHERE completion_time >= $1
		GROUP BY completion_type
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion breakdown: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var completionType string
		var count int
		if err := rows.Scan(&completionType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan completion breakdown row: %w", err)
		}
		out[completionType] = count
	}
	return out, rows.Err()
}
