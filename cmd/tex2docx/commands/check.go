package commands

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"tex2docx/cmd/tex2docx/ui"
	"tex2docx/internal/compiler"
	"tex2docx/internal/converter"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the external toolchain is available",
	Long: `Check that the external tools the converter depends on are
installed and reachable on PATH.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ui.Init(noColor, verbose)
	ui.Section("Toolchain")

	tools := []struct {
		name     string
		required bool
		hint     string
	}{
		{compiler.EngineName, true, "install a TeX distribution (TeX Live or MiKTeX)"},
		{converter.PandocName, true, "install it from https://pandoc.org"},
		{converter.CrossrefName, false, "figure and table numbering will be degraded"},
	}

	missing := 0
	for _, tool := range tools {
		path, err := exec.LookPath(tool.name)
		if err == nil {
			ui.Success("%s (%s)", tool.name, path)
			continue
		}
		if tool.required {
			ui.Error("%s not found, %s", tool.name, tool.hint)
			missing++
		} else {
			ui.Warning("%s not found, %s", tool.name, tool.hint)
		}
	}

	ui.Newline()
	if missing > 0 {
		return fmt.Errorf("%d required tool(s) missing", missing)
	}
	ui.Success("toolchain is ready")
	return nil
}
