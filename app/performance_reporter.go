package app

import (
	"context"
	"log"
	"time"

	"moomoo-strategy-bot/database"
)

// PerformanceReporter periodically logs aggregate pattern performance
type PerformanceReporter struct {
	analytics *database.Analytics
	interval  time.Duration
	window    time.Duration
}

// NewPerformanceReporter creates a new performance reporter
func NewPerformanceReporter(analytics *database.Analytics) *PerformanceReporter {
	return &PerformanceReporter{
		analytics: analytics,
		interval:  15 * time.Minute,
		window:    24 * time.Hour,
	}
}

// Run begins the reporting loop
func (pr *PerformanceReporter) Run(ctx context.Context) {
	log.Println("🔄 Performance Reporter started")

	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()

	// Initial run
	pr.report(ctx)

	for {
		select {
		case <-ticker.C:
			pr.report(ctx)
		case <-ctx.Done():
			log.Println("🔄 Performance Reporter stopped")
			return
		}
	}
}

// report logs win rate per pattern and the completion breakdown for the
// trailing window.
func (pr *PerformanceReporter) report(ctx context.Context) {
	since := time.Now().Add(-pr.window)

	perf, err := pr.analytics.PatternPerformanceSince(ctx, since)
	if err != nil {
		log.Printf("⚠️ Failed to query pattern performance: %v", err)
		return
	}
	for _, p := range perf {
		log.Printf("📈 %s: %d completed, %.0f%% win rate, avg P&L %.2f%%",
			p.PatternName, p.Completed, p.WinRate*100, p.AvgProfitPercent)
	}

	breakdown, err := pr.analytics.CompletionBreakdownSince(ctx, since)
	if err != nil {
		log.Printf("⚠️ Failed to query completion breakdown: %v", err)
		return
	}
	if len(breakdown) > 0 {
		log.Printf("📊 Completions last 24h: target=%d stop=%d sell=%d",
			breakdown["target"], breakdown["stop"], breakdown["sell"])
	}
}
