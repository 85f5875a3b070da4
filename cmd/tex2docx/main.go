// tex2docx converts LaTeX documents to Word documents, rasterizing
// figure and table environments so they survive the conversion intact.
package main

import (
	"os"

	"tex2docx/cmd/tex2docx/commands"
	"tex2docx/cmd/tex2docx/ui"
	"tex2docx/internal/logger"
)

func main() {
	err := commands.Execute()
	// Not deferred, os.Exit would skip it
	logger.Close()
	if err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}
