// Package commands defines the tex2docx command line interface.
package commands

import (
	"github.com/spf13/cobra"

	"tex2docx/internal/logger"
)

var (
	cfgFile string
	verbose bool
	noColor bool
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "tex2docx",
	Short: "Convert LaTeX documents to Word with figures and tables preserved",
	Long: `tex2docx converts LaTeX manuscripts into Word documents. Complex figure
and table environments are first compiled to images with XeLaTeX, then
Pandoc converts the rewritten document, so subfigures, TikZ drawings and
booktabs tables survive the trip.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := logger.DefaultConfig()
		if logFile != "" {
			cfg.LogFilePath = logFile
		}
		if verbose {
			cfg.Level = logger.LevelDebug
			cfg.EnableConsole = true
		}
		return logger.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default tex2docx.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file (default tex2docx.log)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
