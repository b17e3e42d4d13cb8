package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/gridvar/core/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect recorded change events",
	Long:  `List runs and query the change events recorded by 'gridvar run --audit'.`,
}

var auditRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runAuditRuns,
}

var auditEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query change events",
	Long:  `Query change events, optionally narrowed to one run, one variant or one entity.`,
	Args:  cobra.NoArgs,
	RunE:  runAuditEvents,
}

var (
	auditDBPath   string
	auditRun      string
	auditVariant  string
	auditUntagged bool
	auditEntity   string
	auditFormat   string
	auditLimit    int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditRunsCmd)
	auditCmd.AddCommand(auditEventsCmd)

	auditCmd.PersistentFlags().StringVar(&auditDBPath, "db", "", "Path to the audit database (default from config)")
	auditCmd.PersistentFlags().StringVarP(&auditFormat, "format", "f", "table", "Output format (table,json,csv)")

	auditEventsCmd.Flags().StringVar(&auditRun, "run", "", "Filter by run ID")
	auditEventsCmd.Flags().StringVar(&auditVariant, "variant", "", "Filter by variant ID")
	auditEventsCmd.Flags().BoolVar(&auditUntagged, "untagged", false, "Only events not tied to a variant")
	auditEventsCmd.Flags().StringVar(&auditEntity, "entity", "", "Filter by entity ID")
	auditEventsCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to return, most recent kept")
}

func runAuditRuns(cmd *cobra.Command, args []string) error {
	reader, err := openAuditReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	runs, err := reader.Runs(cmd.Context())
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return audit.FormatRuns(runs, audit.ParseOutputFormat(auditFormat), cmd.OutOrStdout())
}

func runAuditEvents(cmd *cobra.Command, args []string) error {
	if auditUntagged && auditVariant != "" {
		return fmt.Errorf("--untagged and --variant are exclusive")
	}

	reader, err := openAuditReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	records, err := reader.Events(cmd.Context(), audit.Filter{
		RunID:     auditRun,
		VariantID: auditVariant,
		Untagged:  auditUntagged,
		EntityID:  auditEntity,
		Limit:     auditLimit,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return audit.FormatRecords(records, audit.ParseOutputFormat(auditFormat), cmd.OutOrStdout())
}

func openAuditReader() (*audit.Reader, error) {
	path, err := getAuditDBPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no audit database at %s (record one with 'gridvar run --audit')", path)
	}
	return audit.OpenReader(path)
}

func getAuditDBPath() (string, error) {
	if auditDBPath != "" {
		return auditDBPath, nil
	}
	mgr, dirs, err := loadConfig()
	if err != nil {
		return "", err
	}
	if path := mgr.Get().Audit.Path; path != "" {
		return path, nil
	}
	return dirs.AuditDB(), nil
}
