package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/avaropoint/rdcp/internal/store"
)

func historyCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent connections recorded by a server database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := db.ListConnections(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("no connections recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tDURATION\tUSER\tCLIENT\tPEER\tOUTCOME")
			for _, rec := range recs {
				duration := "live"
				if rec.EndedAt != nil {
					duration = rec.EndedAt.Sub(rec.StartedAt).Round(time.Second).String()
				}
				outcome := rec.Outcome
				if outcome == "" {
					outcome = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
					duration, rec.Username, rec.ClientName, rec.PeerAddr, outcome)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "rdcp.db", "SQLite database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	return cmd
}
