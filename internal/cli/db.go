package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/promptflow/internal/repo"
)

// NewDBCmd создаёт команды обслуживания базы данных.
// В отличие от остальных команд работает с PostgreSQL напрямую.
func NewDBCmd(dsnFn func() string, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Create tables and indexes if they do not exist",
			RunE: func(cmd *cobra.Command, args []string) error {
				pool, err := repo.NewPool(cmd.Context(), dsnFn())
				if err != nil {
					return err
				}
				defer pool.Close()

				if err := repo.Migrate(cmd.Context(), pool); err != nil {
					return err
				}
				outputFn().Success("Schema is up to date")
				return nil
			},
		},
		newDBCleanCmd(dsnFn, outputFn),
	)

	return cmd
}

func newDBCleanCmd(dsnFn func() string, outputFn func() *Output) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete all requests, steps, results and schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to truncate without --yes")
			}

			pool, err := repo.NewPool(cmd.Context(), dsnFn())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repo.NewCleaner(pool).Truncate(cmd.Context()); err != nil {
				return fmt.Errorf("truncate: %w", err)
			}
			outputFn().Success("All tables truncated")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm destructive cleanup")

	return cmd
}
