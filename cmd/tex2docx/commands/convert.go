package commands

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"tex2docx/cmd/tex2docx/ui"
	"tex2docx/internal/config"
	"tex2docx/internal/files"
	"tex2docx/internal/pipeline"
	"tex2docx/internal/types"
)

var (
	convertInput          string
	convertOutput         string
	convertBibFile        string
	convertCSLFile        string
	convertReferenceDoc   string
	convertLuaFilter      string
	convertFigureTemplate string
	convertFixTable       bool
	convertDebug          bool
	convertConcurrency    int
	convertTimeout        time.Duration
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a LaTeX document to a Word document",
	Long: `Convert a LaTeX document to a Word document. Figure and table
environments are compiled to images with XeLaTeX before the Pandoc
conversion, and every cross-reference is retargeted at the new images.`,
	RunE: runConvert,
}

func init() {
	flags := convertCmd.Flags()
	flags.StringVarP(&convertInput, "input", "i", "", "path to the input LaTeX file (required)")
	flags.StringVarP(&convertOutput, "output", "o", "", "path to the output Word document (default {input stem}.docx)")
	flags.StringVar(&convertBibFile, "bibfile", "", "path to the BibTeX file (default first .bib next to the input)")
	flags.StringVar(&convertCSLFile, "cslfile", "", "path to the CSL citation style (default bundled IEEE style)")
	flags.StringVar(&convertReferenceDoc, "reference-doc", "", "path to a reference Word document for styling")
	flags.StringVar(&convertLuaFilter, "lua-filter", "", "path to a custom Pandoc Lua filter")
	flags.StringVar(&convertFigureTemplate, "figure-template", "", "path to a custom figure environment template")
	flags.BoolVar(&convertFixTable, "fix-table", true, "rasterize table environments as images")
	flags.BoolVar(&convertDebug, "debug", false, "keep temporary files and save the run report")
	flags.IntVar(&convertConcurrency, "concurrency", 0, "parallel XeLaTeX workers (default 4)")
	flags.DurationVar(&convertTimeout, "timeout", 0, "per-subfile compile timeout (default 5m)")
	_ = convertCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ui.Init(noColor, verbose)

	manager := config.NewManager(cfgFile)
	if err := manager.Load(); err != nil {
		return err
	}
	cfg := manager.GetConfig()
	if err := applyConvertFlags(cmd, cfg); err != nil {
		return err
	}
	if err := manager.Resolve(); err != nil {
		return err
	}

	ui.Section("tex2docx")
	ui.KeyValue("Input", cfg.InputTexFile)
	ui.KeyValue("Output", cfg.OutputDocxFile)
	if cfg.BibFile != "" {
		ui.KeyValue("Bibliography", cfg.BibFile)
	}
	ui.Newline()

	progress := newConvertProgress()
	flow, err := pipeline.New(cfg, pipeline.Options{
		Progress: progress.update,
		Stage:    progress.stage,
	})
	if err != nil {
		progress.done()
		return err
	}

	report, err := flow.Run(context.Background())
	progress.done()
	if err != nil {
		if files.Exists(cfg.TempDir) {
			ui.Info("temporary files kept in %s for inspection", cfg.TempDir)
		}
		return err
	}

	printSummary(report)
	return nil
}

// applyConvertFlags layers explicitly-set CLI flags over the file
// configuration
func applyConvertFlags(cmd *cobra.Command, cfg *types.Config) error {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputTexFile = convertInput
	}
	if flags.Changed("output") {
		cfg.OutputDocxFile = convertOutput
	}
	if flags.Changed("bibfile") {
		cfg.BibFile = convertBibFile
	}
	if flags.Changed("cslfile") {
		cfg.CSLFile = convertCSLFile
	}
	if flags.Changed("reference-doc") {
		cfg.ReferenceDocFile = convertReferenceDoc
	}
	if flags.Changed("lua-filter") {
		cfg.LuaFilterFile = convertLuaFilter
	}
	if flags.Changed("fix-table") {
		cfg.FixTable = convertFixTable
	}
	if flags.Changed("debug") {
		cfg.Debug = convertDebug
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = convertConcurrency
	}
	if flags.Changed("timeout") {
		cfg.CompileTimeout = types.Duration(convertTimeout)
	}
	if flags.Changed("figure-template") {
		content, err := files.ReadTextFile(convertFigureTemplate)
		if err != nil {
			return types.NewAppError(types.ErrConfig,
				"could not read figure template file", err)
		}
		cfg.FigureTemplate = content
	}
	return nil
}

// convertProgress renders a spinner between pipeline stages and a
// progress bar while the compilation pool runs. Pool workers report
// concurrently, so updates are serialized.
type convertProgress struct {
	mu      sync.Mutex
	spinner *ui.Spinner
	bar     *ui.ProgressBar
}

func newConvertProgress() *convertProgress {
	s := ui.NewSpinner("starting conversion...")
	s.Start()
	return &convertProgress{spinner: s}
}

// stage is called by the pipeline as each stage begins
func (p *convertProgress) stage(description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
		p.spinner.Start()
	}
	p.spinner.UpdateMessage(description + "...")
}

// update is called by the compilation pool after each finished subfile
func (p *convertProgress) update(completed, total int, filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.spinner.Stop()
		p.bar = ui.NewProgressBar(total, "compiling subfiles")
	}
	p.bar.Set(completed)
}

func (p *convertProgress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
	p.spinner.Stop()
}

// printSummary renders the final run report
func printSummary(report *types.ConversionReport) {
	ui.Newline()
	ui.Success("conversion completed in %s", ui.FormatDuration(report.Duration))
	ui.Newline()

	ui.Table([]string{"Metric", "Value"}, [][]string{
		{"Figures", strconv.Itoa(report.FigureCount)},
		{"Tables", strconv.Itoa(report.TableCount)},
		{"Compiled subfiles", strconv.Itoa(report.Compiled)},
		{"Failed subfiles", strconv.Itoa(len(report.Failed))},
		{"Output", report.OutputDocx},
	})

	if len(report.Failed) > 0 {
		ui.Newline()
		ui.Warning("environments left in LaTeX form: %s", strings.Join(report.Failed, ", "))
	}
}
