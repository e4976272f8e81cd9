package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/backdrop/config"
	"github.com/jmcleod/backdrop/internal/util"
	"github.com/jmcleod/backdrop/ledger"
)

var (
	ledgerJSONOutput bool
	ledgerTopN       int
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Usage ledger reports",
	Long: `Commands for reading the usage ledger directly from storage. With the
bbolt backend the server must be stopped first since it holds the file lock.`,
}

var ledgerSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print aggregate usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(ctx context.Context, store *ledger.Store) error {
			all, err := store.ReadAll(ctx)
			if err != nil {
				return err
			}
			summary := ledger.Summarize(all, store.Clock().Now())
			if ledgerJSONOutput {
				return printJSON(cmd.OutOrStdout(), summary)
			}
			printHumanSummary(cmd.OutOrStdout(), summary)
			return nil
		})
	},
}

var ledgerTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Print the most active users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ledgerTopN < 1 {
			return errors.New("--n must be at least 1")
		}
		return withLedger(cmd, func(ctx context.Context, store *ledger.Store) error {
			all, err := store.ReadAll(ctx)
			if err != nil {
				return err
			}
			top := ledger.Top(all, ledgerTopN)
			if ledgerJSONOutput {
				return printJSON(cmd.OutOrStdout(), toUserRows(top))
			}
			printHumanUsers(cmd.OutOrStdout(), top)
			return nil
		})
	},
}

var ledgerUserCmd = &cobra.Command{
	Use:   "user [user-id]",
	Short: "Print one user's statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := util.Normalize(args[0])
		return withLedger(cmd, func(ctx context.Context, store *ledger.Store) error {
			rec, err := store.Read(ctx, userID)
			if err != nil {
				return err
			}
			stats := ledger.UserStats(rec, store.Clock().Now())
			if ledgerJSONOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			printHumanStats(cmd.OutOrStdout(), userID, stats)
			return nil
		})
	},
}

// withLedger opens the configured ledger read-only and runs fn against it.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, store *ledger.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.DataDir = dataDir
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := openRepository(ctx, cfg.Storage, true)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(ctx, ledger.NewStore(repo, ledger.WithLogger(cfg.Log.NewLogger())))
}

// userRow is the JSON shape of one user in the top listing.
type userRow struct {
	UserID         string     `json:"user_id"`
	TotalProcessed int64      `json:"total_processed"`
	FirstUse       time.Time  `json:"first_use"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
}

func toUserRows(users []ledger.UserUsage) []userRow {
	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		row := userRow{
			UserID:         u.UserID,
			TotalProcessed: u.TotalProcessed,
			FirstUse:       u.FirstUse,
		}
		if last, ok := u.LastActivity(); ok {
			row.LastActivity = &last
		}
		rows = append(rows, row)
	}
	return rows
}

func printHumanSummary(w io.Writer, s ledger.Summary) {
	fmt.Fprintf(w, "Total users:      %d\n", s.TotalUsers)
	fmt.Fprintf(w, "Total processed:  %d\n", s.TotalProcessed)
	fmt.Fprintf(w, "Active today:     %d\n", s.ActiveToday)
	fmt.Fprintf(w, "Weekly processed: %d\n", s.WeeklyProcessed)
}

func printHumanUsers(w io.Writer, users []ledger.UserUsage) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No usage recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tPROCESSED\tFIRST USE\tLAST ACTIVITY")
	for i, u := range users {
		last := "-"
		if t, ok := u.LastActivity(); ok {
			last = t.UTC().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			i+1, u.UserID, u.TotalProcessed, u.FirstUse.UTC().Format(time.DateOnly), last)
	}
	tw.Flush()
}

func printHumanStats(w io.Writer, userID string, s ledger.Stats) {
	fmt.Fprintf(w, "User:            %s\n", userID)
	fmt.Fprintf(w, "Total processed: %d\n", s.TotalProcessed)
	fmt.Fprintf(w, "Days used:       %d\n", s.DaysUsed)
	fmt.Fprintf(w, "First use:       %s\n", s.FirstUse.UTC().Format(time.DateOnly))
	if !s.LastActivity.IsZero() {
		fmt.Fprintf(w, "Last activity:   %s\n", s.LastActivity.UTC().Format(time.DateTime))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerSummaryCmd, ledgerTopCmd, ledgerUserCmd)
	ledgerCmd.PersistentFlags().BoolVar(&ledgerJSONOutput, "json", false, "Output results as JSON")
	ledgerCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	ledgerTopCmd.Flags().IntVar(&ledgerTopN, "n", 10, "Number of users to list")
}
