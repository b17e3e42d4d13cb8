package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/gridvar/core/config"
	"github.com/adalundhe/gridvar/core/storage"
)

var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "gridvar",
	Short: "gridvar - multi-variant network state",
	Long: `gridvar keeps several variants of a network's operating state side by side,
replays scenarios against them, and tracks what changed in each variant.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", ".", "Directory holding the .gridvar/ project config")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the user directories and loads the layered
// configuration.
func loadConfig() (*config.Manager, *storage.Dirs, error) {
	dirs, err := storage.ResolveDirs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve directories: %w", err)
	}

	mgr := config.NewManager(dirs, config.WithProjectRoot(projectRoot))
	if err := mgr.Load(); err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return mgr, dirs, nil
}

// auditPath picks the audit database: the flag value, then the configured
// path, then the default under the data directory. It returns "" when audit
// is off.
func auditPath(flag string, cfg *config.Config, dirs *storage.Dirs) string {
	switch {
	case flag != "":
		return flag
	case !cfg.Audit.Enabled:
		return ""
	case cfg.Audit.Path != "":
		return cfg.Audit.Path
	default:
		return dirs.AuditDB()
	}
}
