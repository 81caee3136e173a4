package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the nightshift database",
	Long: sym.DB + ` db — Manage the run history database

Examples:
  nightshift db migrate           # Apply pending migrations`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// opening applies the migrations
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(cmd.Context(), "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return errors.Wrap(err, "failed to list applied migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return errors.Wrap(err, "failed to scan migration version")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to list applied migrations")
	}

	pterm.Success.Printfln("%s is at migration %s (%d applied)", cfg.Database.Path, last(versions), len(versions))
	return nil
}

func last(versions []string) string {
	if len(versions) == 0 {
		return "none"
	}
	return versions[len(versions)-1]
}
