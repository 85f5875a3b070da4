// Package converter drives Pandoc over the modified TeX document to
// produce the final Word document, and verifies the produced archive.
package converter

import (
	"archive/zip"
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"tex2docx/internal/files"
	"tex2docx/internal/logger"
	"tex2docx/internal/types"
)

// PandocName is the converter binary invoked for the final stage.
const PandocName = "pandoc"

// CrossrefName is the Pandoc filter that numbers figures, tables and
// equations in the Word output.
const CrossrefName = "pandoc-crossref"

// documentPart is the archive member every well-formed docx carries.
const documentPart = "word/document.xml"

// Bundled fallbacks for the Pandoc run. They are materialized into the
// temporary directory when the configuration does not name its own
// filter or citation style.
var (
	//go:embed assets/resolve_equation_labels.lua
	luaFilterAsset string

	//go:embed assets/ieee.csl
	cslAsset string
)

const (
	luaFilterName = "resolve_equation_labels.lua"
	cslName       = "ieee.csl"
)

// CommandRunner executes an external command in a working directory and
// returns its stdout and stderr. Tests substitute a fake Pandoc.
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

// Converter assembles and runs the Pandoc invocation.
type Converter struct {
	config      *types.Config
	runner      CommandRunner
	hasCrossref bool
}

// New creates a Converter backed by the real Pandoc toolchain.
func New(cfg *types.Config) *Converter {
	return NewWithRunner(cfg, execRunner{})
}

// NewWithRunner creates a Converter with a custom command runner.
func NewWithRunner(cfg *types.Config, runner CommandRunner) *Converter {
	return &Converter{
		config:      cfg,
		runner:      runner,
		hasCrossref: true,
	}
}

// CheckDependencies verifies the Pandoc toolchain. A missing pandoc
// binary is fatal. A missing crossref filter only degrades reference
// numbering, so the filter is dropped with a warning instead of
// aborting the run.
func (c *Converter) CheckDependencies() error {
	if _, err := exec.LookPath(PandocName); err != nil {
		return types.NewAppError(types.ErrMissingTool,
			fmt.Sprintf("%s not found in PATH, install it from https://pandoc.org", PandocName), err)
	}
	if _, err := exec.LookPath(CrossrefName); err != nil {
		c.hasCrossref = false
		logger.Warn("pandoc-crossref not found, figure and table numbering will be degraded",
			logger.String("filter", CrossrefName))
	}
	return nil
}

// Convert runs Pandoc over the modified TeX file and writes the Word
// document. Pandoc runs inside the TeX file's directory so relative
// resource paths in the document resolve.
func (c *Converter) Convert(ctx context.Context) error {
	cfg := c.config

	luaFilter := cfg.LuaFilterFile
	if luaFilter == "" {
		path, err := c.materializeAsset(luaFilterName, luaFilterAsset)
		if err != nil {
			return err
		}
		luaFilter = path
	}

	args := []string{
		filepath.Base(cfg.OutputTexFile),
		"-o", cfg.OutputDocxFile,
		"--lua-filter", luaFilter,
	}
	if c.hasCrossref {
		args = append(args, "--filter", CrossrefName)
	}
	if cfg.ReferenceDocFile != "" {
		args = append(args, "--reference-doc", cfg.ReferenceDocFile)
	}
	args = append(args,
		"--number-sections",
		"-M", "autoEqnLabels",
		"-M", "tableEqns",
		"-t", "docx+native_numbering")

	if cfg.BibFile != "" {
		csl := cfg.CSLFile
		if csl == "" {
			path, err := c.materializeAsset(cslName, cslAsset)
			if err != nil {
				return err
			}
			csl = path
		}
		args = append(args,
			"-M", "reference-section-title=References",
			"--citeproc",
			"--bibliography", cfg.BibFile,
			"--csl", csl)
	}

	dir := filepath.Dir(cfg.OutputTexFile)
	logger.Info("converting to Word",
		logger.String("input", cfg.OutputTexFile),
		logger.String("output", cfg.OutputDocxFile))
	logger.Debug("pandoc invocation",
		logger.String("dir", dir),
		logger.String("args", strings.Join(args, " ")))

	stdout, stderr, err := c.runner.Run(ctx, dir, PandocName, args...)
	if err != nil {
		output := combineOutput(stdout, stderr)
		logger.Error("pandoc conversion failed", err, logger.String("output", output))
		return types.NewAppErrorWithDetails(types.ErrConversion,
			"pandoc conversion failed", output, err)
	}
	if stderr != "" {
		logger.Warn("pandoc reported warnings", logger.String("stderr", stderr))
	}

	logger.Info("conversion finished", logger.String("output", cfg.OutputDocxFile))
	return nil
}

// VerifyOutput checks that the produced file is a plausible Word
// document: present, non-empty and a ZIP archive carrying the main
// document part.
func (c *Converter) VerifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrConversion,
			"output document was not produced", path, err)
	}
	if info.Size() == 0 {
		return types.NewAppErrorWithDetails(types.ErrConversion,
			"output document is empty", path, nil)
	}

	archive, err := zip.OpenReader(path)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrConversion,
			"output document is not a valid Word archive", path, err)
	}
	defer archive.Close()

	for _, f := range archive.File {
		if f.Name == documentPart {
			logger.Info("output document verified",
				logger.String("path", path),
				logger.Int64("size_bytes", info.Size()))
			return nil
		}
	}
	return types.NewAppErrorWithDetails(types.ErrConversion,
		"output document is missing its main part", path, nil)
}

// materializeAsset writes a bundled file into the temporary directory
// and returns its path. A file already present there is reused.
func (c *Converter) materializeAsset(name, content string) (string, error) {
	path := filepath.Join(c.config.TempDir, name)
	if files.Exists(path) {
		return path, nil
	}
	if err := files.WriteTextFile(path, content); err != nil {
		return "", types.NewAppError(types.ErrConversion,
			fmt.Sprintf("failed to write bundled %s", name), err)
	}
	logger.Debug("materialized bundled asset", logger.String("path", path))
	return path, nil
}

// combineOutput joins the non-empty command streams for diagnostics
func combineOutput(stdout, stderr string) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}
