// Package commands provides the tandem CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tandemcode/tandem/internal/config"
	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/server"
	"github.com/tandemcode/tandem/pkg/types"
)

var (
	logLevel string
	workDir  string
)

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Tandem - AI coding agent",
	Long: `Tandem is an AI coding agent. Run 'tandem serve' to start the HTTP
server, or 'tandem run' for a one-shot chat turn from the terminal.`,
	Version: server.Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "directory", "C", "", "working directory (defaults to the project root)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("tandem %s\n", server.Version))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup resolves the workspace root, loads configuration and
// initializes logging. It returns the root, the config and the logging
// cleanup function.
func setup(pretty bool) (string, *types.Config, func(), error) {
	root := workDir
	if root == "" {
		root = config.FindRoot(".")
	}

	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logCfg := logging.Config{Pretty: pretty}
	if cfg.Log != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Dir = cfg.Log.Dir
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	cleanup, err := logging.Init(logCfg)
	if err != nil {
		return "", nil, nil, err
	}

	return root, cfg, cleanup, nil
}
