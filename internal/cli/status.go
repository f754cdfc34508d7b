package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/brahim-guaali/error-boundary/internal/core/config"
	"github.com/brahim-guaali/error-boundary/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent error reports",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Reporters.Database.URL == "" {
		slog.Error("No database configured; status requires the postgres reporter")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Reporters.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT source, severity, classification, fault, captured_at
		FROM error_reports
		ORDER BY captured_at DESC
		LIMIT 20
	`)
	if err != nil {
		slog.Error("Failed to query error reports", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSEVERITY\tCLASS\tFAULT\tCAPTURED AT")
	for rows.Next() {
		var source, severity, class, fault string
		var capturedAt time.Time
		if err := rows.Scan(&source, &severity, &class, &fault, &capturedAt); err != nil {
			slog.Error("Failed to scan row", "error", err)
			os.Exit(1)
		}
		if len(fault) > 60 {
			fault = fault[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", source, severity, class, fault, capturedAt.Format(time.RFC3339))
	}
	_ = w.Flush()

	if err := rows.Err(); err != nil {
		slog.Error("Row iteration failed", "error", err)
		os.Exit(1)
	}
}
