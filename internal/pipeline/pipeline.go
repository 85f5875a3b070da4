// Package pipeline orchestrates the conversion stages, turning one
// LaTeX document into a Word document.
package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"tex2docx/internal/compiler"
	"tex2docx/internal/converter"
	"tex2docx/internal/files"
	"tex2docx/internal/logger"
	"tex2docx/internal/modifier"
	"tex2docx/internal/parser"
	"tex2docx/internal/results"
	"tex2docx/internal/subfile"
	"tex2docx/internal/types"
	"tex2docx/internal/validator"
)

// StageCallback is notified with a short description as each pipeline
// stage begins. The CLI uses it to drive its spinner.
type StageCallback func(description string)

// Options overrides external collaborators. Tests substitute fake TeX
// and Pandoc toolchains through the runners.
type Options struct {
	CompileRunner compiler.CommandRunner
	ConvertRunner converter.CommandRunner
	Progress      compiler.ProgressCallback
	Stage         StageCallback
}

// Flow runs the conversion stages in order over one document
type Flow struct {
	config    *types.Config
	recorder  *results.Recorder
	parser    *parser.Parser
	modifier  *modifier.Modifier
	compiler  *compiler.Compiler
	converter *converter.Converter
	validator *validator.Validator
	progress  compiler.ProgressCallback
	stageCb   StageCallback

	// Toolchain probes only make sense for the real runners
	checkEngine bool
	checkPandoc bool
}

// New wires the conversion stages for one run. An invalid figure
// template override is rejected here, before any file is touched.
func New(cfg *types.Config, opts Options) (*Flow, error) {
	recorder := results.NewRecorder()

	mod, err := modifier.New(cfg, recorder)
	if err != nil {
		return nil, err
	}

	comp := compiler.New(cfg, recorder)
	if opts.CompileRunner != nil {
		comp = compiler.NewWithRunner(cfg, recorder, opts.CompileRunner)
	}
	conv := converter.New(cfg)
	if opts.ConvertRunner != nil {
		conv = converter.NewWithRunner(cfg, opts.ConvertRunner)
	}

	return &Flow{
		config:      cfg,
		recorder:    recorder,
		parser:      parser.New(cfg),
		modifier:    mod,
		compiler:    comp,
		converter:   conv,
		validator:   validator.New(),
		progress:    opts.Progress,
		stageCb:     opts.Stage,
		checkEngine: opts.CompileRunner == nil,
		checkPandoc: opts.ConvertRunner == nil,
	}, nil
}

// stage announces the beginning of a pipeline stage
func (f *Flow) stage(description string) {
	if f.stageCb != nil {
		f.stageCb(description)
	}
}

// Run executes the full conversion and returns the run report. On
// failure the temporary directory and the modified TeX file are left in
// place for inspection; a successful run removes them unless debug mode
// keeps them.
func (f *Flow) Run(ctx context.Context) (report *types.ConversionReport, err error) {
	start := time.Now()
	cfg := f.config

	logger.Info("starting conversion",
		logger.String("input", cfg.InputTexFile),
		logger.String("output", cfg.OutputDocxFile))

	f.stage("parsing LaTeX content")
	doc, err := f.parser.Parse()
	if err != nil {
		return nil, err
	}
	logger.Debug("document analyzed", parser.Summary(doc)...)

	// Probe the external toolchain before any artifact is written
	if f.checkEngine {
		if err := compiler.CheckToolchain(); err != nil {
			return nil, err
		}
	}
	if f.checkPandoc {
		if err := f.converter.CheckDependencies(); err != nil {
			return nil, err
		}
	}

	if err = files.PrepareDir(cfg.TempDir); err != nil {
		return nil, types.NewAppError(types.ErrInternal,
			"could not prepare temporary directory", err)
	}
	defer func() { f.finish(err) }()

	f.stage("generating subfiles")
	gen := subfile.New(cfg, doc)
	figures := gen.Generate(doc.Figures)

	tables := make(map[int]string)
	if cfg.FixTable {
		tables = gen.Generate(doc.Tables)
	} else if len(doc.Tables) > 0 {
		logger.Info("table rasterization disabled, tables pass through unchanged",
			logger.Int("tables", len(doc.Tables)))
	}

	f.stage("compiling subfiles")
	failed := f.compiler.CompileAll(ctx, subfileList(cfg, figures, tables), f.progress)

	f.stage("rewriting document")
	modified := f.modifier.Apply(doc.CleanText, doc, figures, tables)
	if err = f.modifier.WriteModified(modified); err != nil {
		return nil, err
	}

	if check := f.validator.Validate(modified); !check.Valid {
		logger.Warn("modified document failed validation, Pandoc may reject it",
			logger.Int("issues", len(check.Issues)))
	}

	f.stage("converting with Pandoc")
	if err = f.converter.Convert(ctx); err != nil {
		return nil, err
	}

	f.stage("verifying output")
	if err = f.converter.VerifyOutput(cfg.OutputDocxFile); err != nil {
		return nil, err
	}

	report = &types.ConversionReport{
		InputFile:   cfg.InputTexFile,
		OutputTex:   cfg.OutputTexFile,
		OutputDocx:  cfg.OutputDocxFile,
		FigureCount: len(doc.Figures),
		TableCount:  len(doc.Tables),
		Compiled:    f.recorder.SucceededCount(),
		Failed:      failed,
		Duration:    time.Since(start),
	}

	if cfg.Debug {
		reportPath := filepath.Join(cfg.TempDir, results.ReportFileName)
		if saveErr := results.SaveReport(reportPath, report); saveErr != nil {
			logger.Warn("could not save run report",
				logger.String("path", reportPath), logger.Err(saveErr))
		}
	}

	logger.Info("conversion completed",
		logger.String("output", cfg.OutputDocxFile),
		logger.Int("compiled", report.Compiled),
		logger.Int("failed", len(report.Failed)),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// subfileList flattens the filename tables into a deterministic
// compilation order, figures before tables, each by block index
func subfileList(cfg *types.Config, figures, tables map[int]string) []types.Subfile {
	subs := make([]types.Subfile, 0, len(figures)+len(tables))
	for index, filename := range figures {
		subs = append(subs, types.Subfile{
			Index:    index,
			Kind:     types.KindFigure,
			Filename: filename,
			Path:     filepath.Join(cfg.TempDir, filename),
		})
	}
	for index, filename := range tables {
		subs = append(subs, types.Subfile{
			Index:    index,
			Kind:     types.KindTable,
			Filename: filename,
			Path:     filepath.Join(cfg.TempDir, filename),
		})
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Kind != subs[j].Kind {
			return subs[i].Kind == types.KindFigure
		}
		return subs[i].Index < subs[j].Index
	})
	return subs
}

// finish disposes of the run's intermediate artifacts. A failed run
// keeps them for inspection, as does debug mode.
func (f *Flow) finish(runErr error) {
	cfg := f.config
	if runErr != nil {
		logger.Info("keeping temporary files for inspection",
			logger.String("temp_dir", cfg.TempDir),
			logger.String("modified_texfile", cfg.OutputTexFile))
		return
	}
	if cfg.Debug {
		logger.Info("debug mode enabled, keeping temporary files",
			logger.String("temp_dir", cfg.TempDir),
			logger.String("modified_texfile", cfg.OutputTexFile))
		return
	}
	if err := files.RemoveDir(cfg.TempDir); err != nil {
		logger.Warn("could not remove temporary directory",
			logger.String("temp_dir", cfg.TempDir), logger.Err(err))
	}
	if err := files.RemoveFile(cfg.OutputTexFile); err != nil {
		logger.Warn("could not remove modified TeX file",
			logger.String("path", cfg.OutputTexFile), logger.Err(err))
	}
	logger.Debug("removed temporary files")
}
