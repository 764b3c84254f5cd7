package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/kirillm/signal-desk/internal/config"
	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/storage"
	"github.com/kirillm/signal-desk/pkg/utils"
)

func openStorage(cmd string) (*storage.Storage, *logrus.Entry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := utils.NewLogger(cfg.Bot.LogLevel, cfg.Bot.LogFormat)
	log := logger.WithField("cmd", cmd)

	st, err := storage.Open(cfg.Database, logrus.NewEntry(logger))
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return nil, nil, err
	}
	return st, log, nil
}

// initDBAction создает таблицы. Повторный запуск безопасен.
func initDBAction(_ *cli.Context) error {
	st, log, err := openStorage("initdb")
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.CountOperations(context.Background())
	if err != nil {
		return fmt.Errorf("failed to count operations: %w", err)
	}

	log.WithField("operations", n).Info("Database initialized")
	return nil
}

func debugDBAction(c *cli.Context) error {
	st, _, err := openStorage("debugdb")
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	out := c.App.Writer

	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	printStats(out, stats)

	if id := c.String("operation"); id != "" {
		updates, err := st.GetOperationUpdates(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load updates: %w", err)
		}
		printUpdates(out, id, updates)
		return nil
	}

	ops, err := st.GetAllOperations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load operations: %w", err)
	}
	printOperations(out, ops, c.Int("limit"))
	return nil
}

func printStats(w io.Writer, stats *domain.DatabaseStats) {
	fmt.Fprintf(w, "Driver:      %s\n", stats.Driver)
	fmt.Fprintf(w, "Operations:  %d\n", stats.TotalOperations)
	fmt.Fprintf(w, "Updates:     %d\n", stats.TotalUpdates)
	if stats.LastPurgeAt != "" {
		fmt.Fprintf(w, "Last purge:  %s\n", stats.LastPurgeAt)
	}

	statuses := make([]string, 0, len(stats.ByStatus))
	for s := range stats.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-8s %d\n", s, stats.ByStatus[domain.Status(s)])
	}
	fmt.Fprintln(w)
}

func printOperations(w io.Writer, ops []domain.Operation, limit int) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations")
		return
	}
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tASSET\tSIDE\tENTRY\tSTATUS\tCREATED BY\tCREATED AT")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			op.OperationID, op.Asset, op.OrderType, op.EntryPrice.String(), op.Status,
			op.CreatedBy, op.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func printUpdates(w io.Writer, operationID string, updates []domain.OperationUpdate) {
	if len(updates) == 0 {
		fmt.Fprintf(w, "No updates for %s\n", operationID)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tOLD\tNEW\tBY\tAT\tNOTES")
	for _, u := range updates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.UpdateType, u.OldValue, u.NewValue, u.UpdatedBy, u.UpdatedAt.Format("2006-01-02 15:04"), u.Notes)
	}
	tw.Flush()
}
