package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avaropoint/rdcp/internal/store"
)

func userCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage credentials in a server database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "rdcp.db", "SQLite database path")

	add := &cobra.Command{
		Use:   "add <username> <password>",
		Short: "Add or replace a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.UpsertCredential(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("stored credentials for %q\n", args[0])
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <username>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.DeleteCredential(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("removed %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}
