// Package compiler runs the XeLaTeX engine over generated subfiles and
// collects the rendered PNG artifacts.
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"tex2docx/internal/files"
	"tex2docx/internal/logger"
	"tex2docx/internal/results"
	"tex2docx/internal/types"
)

// EngineName is the TeX engine invoked for every subfile.
const EngineName = "xelatex"

// engineArgs are passed before the subfile name on every invocation.
// -shell-escape is required for the standalone convert hook that renders
// the PDF page to PNG with pdftocairo.
var engineArgs = []string{"-shell-escape", "-synctex=1", "-interaction=nonstopmode"}

// CommandRunner executes an external command in a working directory and
// returns its stdout and stderr. Tests substitute a fake toolchain.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (stdout string, stderr string, err error)
}

// execRunner runs commands through os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// ProgressCallback is called after each subfile finishes compiling
type ProgressCallback func(completed, total int, filename string)

// Compiler compiles subfiles concurrently inside the temporary directory
type Compiler struct {
	config   *types.Config
	runner   CommandRunner
	recorder *results.Recorder
	pdfConf  *model.Configuration
}

// New creates a Compiler backed by the real XeLaTeX toolchain.
func New(cfg *types.Config, recorder *results.Recorder) *Compiler {
	return NewWithRunner(cfg, recorder, execRunner{})
}

// NewWithRunner creates a Compiler with a custom command runner.
func NewWithRunner(cfg *types.Config, recorder *results.Recorder, runner CommandRunner) *Compiler {
	return &Compiler{
		config:   cfg,
		runner:   runner,
		recorder: recorder,
		pdfConf:  model.NewDefaultConfiguration(),
	}
}

// CheckToolchain verifies that the TeX engine is available on PATH.
func CheckToolchain() error {
	if _, err := exec.LookPath(EngineName); err != nil {
		return types.NewAppError(types.ErrMissingTool,
			fmt.Sprintf("%s not found in PATH, install a TeX distribution (TeX Live or MiKTeX)", EngineName), err)
	}
	return nil
}

// CompileAll compiles every subfile across a bounded worker pool and records
// each outcome. A single subfile failing never aborts the others. It returns
// the names of the subfiles that failed.
func (c *Compiler) CompileAll(ctx context.Context, subfiles []types.Subfile, progress ProgressCallback) []string {
	total := len(subfiles)
	if total == 0 {
		logger.Info("no subfiles to compile")
		return nil
	}

	workers := c.config.Concurrency
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}

	logger.Info("compiling subfiles",
		logger.Int("count", total),
		logger.Int("workers", workers),
		logger.Duration("timeout", c.config.CompileTimeout.Std()))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var completed int
	var mu sync.Mutex

	for _, sf := range subfiles {
		wg.Add(1)
		go func(sf types.Subfile) {
			defer wg.Done()

			// Acquire semaphore
			sem <- struct{}{}
			defer func() { <-sem }()

			result := c.compileOne(ctx, sf)
			c.recorder.Record(result)

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()

			if progress != nil {
				progress(done, total, sf.Filename)
			}
		}(sf)
	}

	wg.Wait()

	failed := c.recorder.FailedNames()
	if len(failed) > 0 {
		logger.Warn("some subfiles failed to compile",
			logger.Int("failed", len(failed)),
			logger.Int("succeeded", c.recorder.SucceededCount()),
			logger.Any("files", failed))
	} else {
		logger.Info("all subfiles compiled", logger.Int("count", total))
	}
	return failed
}

// compileOne runs one engine invocation confined to the temporary directory
// and persists stdout/stderr sidecars regardless of outcome.
func (c *Compiler) compileOne(ctx context.Context, sf types.Subfile) types.CompileResult {
	start := time.Now()
	stem := sf.Stem()

	logger.Debug("compiling subfile", logger.String("filename", sf.Filename))

	jobCtx, cancel := context.WithTimeout(ctx, c.config.CompileTimeout.Std())
	defer cancel()

	args := append(append([]string{}, engineArgs...), sf.Filename)
	stdout, stderr, runErr := c.runner.Run(jobCtx, c.config.TempDir, EngineName, args...)

	result := types.CompileResult{
		Filename: sf.Filename,
		Log:      combineOutput(stdout, stderr),
		Duration: time.Since(start),
	}

	c.writeSidecars(stem, stdout, stderr)

	if jobCtx.Err() == context.DeadlineExceeded {
		result.ErrorMsg = fmt.Sprintf("compilation timed out after %s", c.config.CompileTimeout.Std())
		logger.Error("subfile compilation timed out", jobCtx.Err(),
			logger.String("filename", sf.Filename),
			logger.Duration("timeout", c.config.CompileTimeout.Std()))
		return result
	}

	if runErr != nil {
		result.ErrorMsg = fmt.Sprintf("engine exited with error: %v", runErr)
		logger.Error("subfile compilation failed", runErr,
			logger.String("filename", sf.Filename),
			logger.Duration("duration", result.Duration))
		return result
	}

	pngPath, ok := c.canonicalizePNG(stem)
	if !ok {
		result.ErrorMsg = "engine succeeded but no PNG was produced"
		result.PDFPath = c.diagnosePDF(stem)
		logger.Error("no PNG produced for subfile", nil,
			logger.String("filename", sf.Filename))
		return result
	}

	result.Success = true
	result.PNGPath = pngPath
	if pdfPath := filepath.Join(c.config.TempDir, stem+".pdf"); files.Exists(pdfPath) {
		result.PDFPath = pdfPath
	}

	logger.Debug("subfile compiled",
		logger.String("filename", sf.Filename),
		logger.Duration("duration", result.Duration))
	return result
}

// writeSidecars persists engine output next to the subfile for diagnosis.
func (c *Compiler) writeSidecars(stem string, stdout, stderr string) {
	outPath := filepath.Join(c.config.TempDir, stem+".out")
	if err := files.WriteTextFile(outPath, stdout); err != nil {
		logger.Warn("failed to write stdout sidecar", logger.String("path", outPath), logger.Err(err))
	}
	errPath := filepath.Join(c.config.TempDir, stem+".err")
	if err := files.WriteTextFile(errPath, stderr); err != nil {
		logger.Warn("failed to write stderr sidecar", logger.String("path", errPath), logger.Err(err))
	}
}

// canonicalizePNG ensures the rendered image is named exactly {stem}.png.
// The convert hook sometimes emits page-numbered variants such as
// {stem}-1.png; the first candidate is renamed to the canonical name.
func (c *Compiler) canonicalizePNG(stem string) (string, bool) {
	canonical := filepath.Join(c.config.TempDir, stem+".png")
	if files.Exists(canonical) {
		return canonical, true
	}

	candidates := c.pngCandidates(stem)
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) > 1 {
		logger.Warn("multiple PNG candidates for subfile, using the first",
			logger.String("stem", stem),
			logger.Any("candidates", candidates))
	}

	first := filepath.Join(c.config.TempDir, candidates[0])
	if err := os.Rename(first, canonical); err != nil {
		logger.Error("failed to rename PNG to canonical name", err,
			logger.String("from", first),
			logger.String("to", canonical))
		return "", false
	}

	logger.Debug("renamed PNG to canonical name",
		logger.String("from", candidates[0]),
		logger.String("to", stem+".png"))
	return canonical, true
}

// pngCandidates lists PNG files in the temp directory whose name starts with
// stem, in lexical order.
func (c *Compiler) pngCandidates(stem string) []string {
	entries, err := os.ReadDir(c.config.TempDir)
	if err != nil {
		logger.Warn("failed to list temp directory", logger.Err(err))
		return nil
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, stem) && strings.EqualFold(filepath.Ext(name), ".png") {
			candidates = append(candidates, name)
		}
	}
	return candidates
}

// diagnosePDF checks whether the engine at least rendered a PDF when no PNG
// appeared. A valid PDF without a PNG means the convert hook did not run,
// usually because -shell-escape was blocked or pdftocairo is missing.
func (c *Compiler) diagnosePDF(stem string) string {
	pdfPath := filepath.Join(c.config.TempDir, stem+".pdf")
	if !files.Exists(pdfPath) {
		return ""
	}

	if err := api.ValidateFile(pdfPath, c.pdfConf); err != nil {
		logger.Warn("subfile produced an invalid PDF",
			logger.String("path", pdfPath),
			logger.Err(err))
		return pdfPath
	}

	pages, err := api.PageCountFile(pdfPath)
	if err != nil {
		pages = 0
	}
	logger.Warn("subfile rendered a PDF but no PNG, check that pdftocairo is installed and -shell-escape is allowed",
		logger.String("path", pdfPath),
		logger.Int("pages", pages))
	return pdfPath
}

// combineOutput joins stdout and stderr into a single log string
func combineOutput(stdout, stderr string) string {
	var parts []string
	if stdout != "" {
		parts = append(parts, stdout)
	}
	if stderr != "" {
		parts = append(parts, stderr)
	}
	return strings.Join(parts, "\n")
}
