package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tex2docx/internal/types"
)

// runnerFunc adapts a function into the command runner interfaces.
type runnerFunc func(ctx context.Context, dir string, name string, args ...string) (string, string, error)

func (f runnerFunc) Run(ctx context.Context, dir string, name string, args ...string) (string, string, error) {
	return f(ctx, dir, name, args...)
}

func testConfig(t *testing.T, input string) *types.Config {
	t.Helper()
	work := t.TempDir()
	inputPath := filepath.Join(work, "paper.tex")
	if err := os.WriteFile(inputPath, []byte(input), 0644); err != nil {
		t.Fatalf("failed to write input file: %v", err)
	}
	return &types.Config{
		InputTexFile:   inputPath,
		OutputDocxFile: filepath.Join(work, "paper.docx"),
		OutputTexFile:  filepath.Join(work, "paper_modified.tex"),
		TempDir:        filepath.Join(work, "temp_subtexfile_dir"),
		FixTable:       true,
		Concurrency:    2,
		CompileTimeout: types.Duration(time.Minute),
	}
}

// texCompiler fakes the TeX engine, rendering a PNG per subfile except
// for the named failures.
func texCompiler(t *testing.T, failing ...string) runnerFunc {
	t.Helper()
	failSet := make(map[string]bool, len(failing))
	for _, name := range failing {
		failSet[name] = true
	}
	return func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		texName := args[len(args)-1]
		if failSet[texName] {
			return "", "! LaTeX Error: engineered failure", errors.New("exit status 1")
		}
		stem := strings.TrimSuffix(texName, ".tex")
		if err := os.WriteFile(filepath.Join(dir, stem+".png"), []byte("png"), 0644); err != nil {
			t.Errorf("failed to write png for %s: %v", texName, err)
		}
		return "engine output", "", nil
	}
}

// docxConverter fakes Pandoc, writing a minimal Word archive at the
// requested output path.
func docxConverter(t *testing.T) runnerFunc {
	t.Helper()
	return func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		var output string
		for i, arg := range args {
			if arg == "-o" && i+1 < len(args) {
				output = args[i+1]
			}
		}
		if output == "" {
			return "", "no output flag", errors.New("exit status 2")
		}
		f, err := os.Create(output)
		if err != nil {
			return "", err.Error(), err
		}
		defer f.Close()
		w := zip.NewWriter(f)
		part, err := w.Create("word/document.xml")
		if err != nil {
			return "", err.Error(), err
		}
		if _, err := part.Write([]byte("<w:document/>")); err != nil {
			return "", err.Error(), err
		}
		if err := w.Close(); err != nil {
			return "", err.Error(), err
		}
		return "", "", nil
	}
}

func newFlow(t *testing.T, cfg *types.Config, compile, convert runnerFunc) *Flow {
	t.Helper()
	flow, err := New(cfg, Options{CompileRunner: compile, ConvertRunner: convert})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	return flow
}

const minimalFigureDoc = `\documentclass{article}
\usepackage{graphicx}
\begin{document}
See Figure~\ref{fig:example} for details.
\begin{figure}
\centering
\includegraphics[width=0.5\textwidth]{example.png}
\caption{Example figure}
\label{fig:example}
\end{figure}
\end{document}
`

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)
	cfg.Debug = true

	flow := newFlow(t, cfg, texCompiler(t), docxConverter(t))
	report, err := flow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.FigureCount != 1 || report.TableCount != 0 {
		t.Errorf("expected 1 figure and 0 tables, got %d and %d",
			report.FigureCount, report.TableCount)
	}
	if report.Compiled != 1 || len(report.Failed) != 0 {
		t.Errorf("expected 1 compiled and none failed, got %d and %v",
			report.Compiled, report.Failed)
	}

	info, err := os.Stat(cfg.OutputDocxFile)
	if err != nil {
		t.Fatalf("output document missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("output document is empty")
	}

	modified, err := os.ReadFile(cfg.OutputTexFile)
	if err != nil {
		t.Fatalf("modified TeX file missing: %v", err)
	}
	content := string(modified)
	if !strings.Contains(content, `\label{multifig:multifig_example}`) {
		t.Error("modified document is missing the rebuilt label")
	}
	if !strings.Contains(content, `Figure~\ref{multifig:multifig_example}`) {
		t.Error("in-text reference was not retargeted")
	}
	if strings.Contains(content, "fig:example") {
		t.Error("modified document still mentions the original label")
	}
}

func TestRun_DebugKeepsArtifactsAndReport(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)
	cfg.Debug = true

	flow := newFlow(t, cfg, texCompiler(t), docxConverter(t))
	if _, err := flow.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(cfg.TempDir); err != nil {
		t.Errorf("debug mode should keep the temp directory: %v", err)
	}
	if _, err := os.Stat(cfg.OutputTexFile); err != nil {
		t.Errorf("debug mode should keep the modified TeX file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.TempDir, "conversion_report.json")); err != nil {
		t.Errorf("debug mode should save the run report: %v", err)
	}
}

func TestRun_CleanupOnSuccess(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)

	flow := newFlow(t, cfg, texCompiler(t), docxConverter(t))
	if _, err := flow.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(cfg.TempDir); !os.IsNotExist(err) {
		t.Error("temp directory should be removed after a successful run")
	}
	if _, err := os.Stat(cfg.OutputTexFile); !os.IsNotExist(err) {
		t.Error("modified TeX file should be removed after a successful run")
	}
	if _, err := os.Stat(cfg.OutputDocxFile); err != nil {
		t.Errorf("output document should survive cleanup: %v", err)
	}
}

func TestRun_KeepsArtifactsOnFailure(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)

	failingConvert := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		return "", "pandoc: something broke", errors.New("exit status 64")
	})

	flow := newFlow(t, cfg, texCompiler(t), failingConvert)
	_, err := flow.Run(context.Background())
	if err == nil {
		t.Fatal("expected the conversion failure to propagate")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrConversion {
		t.Errorf("expected a conversion error, got %v", err)
	}

	if _, err := os.Stat(cfg.TempDir); err != nil {
		t.Errorf("failed run should keep the temp directory: %v", err)
	}
	if _, err := os.Stat(cfg.OutputTexFile); err != nil {
		t.Errorf("failed run should keep the modified TeX file: %v", err)
	}
}

func TestRun_FailedSubfileLeavesOriginal(t *testing.T) {
	doc := `\documentclass{article}
\begin{document}
\begin{figure}
\includegraphics{a.png}
\caption{Alpha}
\label{fig:alpha}
\end{figure}
\begin{figure}
\includegraphics{b.png}
\caption{Broken}
\label{fig:broken}
\end{figure}
\begin{figure}
\includegraphics{c.png}
\caption{Beta}
\label{fig:beta}
\end{figure}
\end{document}
`
	cfg := testConfig(t, doc)
	cfg.Debug = true

	flow := newFlow(t, cfg, texCompiler(t, "multifig_broken.tex"), docxConverter(t))
	report, err := flow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Compiled != 2 {
		t.Errorf("expected 2 compiled subfiles, got %d", report.Compiled)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "multifig_broken.tex" {
		t.Errorf("expected multifig_broken.tex to fail, got %v", report.Failed)
	}

	modified, err := os.ReadFile(cfg.OutputTexFile)
	if err != nil {
		t.Fatalf("modified TeX file missing: %v", err)
	}
	content := string(modified)
	if !strings.Contains(content, `\label{multifig:multifig_alpha}`) ||
		!strings.Contains(content, `\label{multifig:multifig_beta}`) {
		t.Error("compiled figures were not replaced")
	}
	if !strings.Contains(content, `\label{fig:broken}`) {
		t.Error("the failed figure should keep its original form")
	}
}

func TestRun_FixTableDisabled(t *testing.T) {
	doc := `\documentclass{article}
\begin{document}
\begin{table}
\caption{Numbers}
\label{tab:numbers}
\begin{tabular}{cc} 1 & 2 \\ \end{tabular}
\end{table}
\end{document}
`
	cfg := testConfig(t, doc)
	cfg.Debug = true
	cfg.FixTable = false

	var compileCalls int
	compile := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		compileCalls++
		return "", "", nil
	})

	flow := newFlow(t, cfg, compile, docxConverter(t))
	report, err := flow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if compileCalls != 0 {
		t.Errorf("no subfile should compile with table fixing disabled, got %d calls", compileCalls)
	}
	if report.TableCount != 1 || report.Compiled != 0 {
		t.Errorf("expected the table to be counted but not compiled, got %+v", report)
	}

	modified, err := os.ReadFile(cfg.OutputTexFile)
	if err != nil {
		t.Fatalf("modified TeX file missing: %v", err)
	}
	if !strings.Contains(string(modified), `\label{tab:numbers}`) {
		t.Error("table should pass through unchanged")
	}
}

func TestRun_MissingInput(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)
	if err := os.Remove(cfg.InputTexFile); err != nil {
		t.Fatalf("failed to remove input: %v", err)
	}

	flow := newFlow(t, cfg, texCompiler(t), docxConverter(t))
	if _, err := flow.Run(context.Background()); err == nil {
		t.Fatal("expected an error for a missing input file")
	}
	if _, err := os.Stat(cfg.TempDir); !os.IsNotExist(err) {
		t.Error("temp directory should not be created when parsing fails")
	}
}

func TestNew_InvalidFigureTemplate(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)
	cfg.FigureTemplate = `\begin{figure}{{.Unclosed`

	if _, err := New(cfg, Options{}); err == nil {
		t.Fatal("expected an invalid template to fail pipeline construction")
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)

	var calls []string
	progress := func(completed, total int, filename string) {
		calls = append(calls, filename)
		if completed < 1 || completed > total {
			t.Errorf("completed %d out of range for total %d", completed, total)
		}
	}

	flow, err := New(cfg, Options{
		CompileRunner: texCompiler(t),
		ConvertRunner: docxConverter(t),
		Progress:      progress,
	})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	if _, err := flow.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(calls) != 1 || calls[0] != "multifig_example.tex" {
		t.Errorf("expected one progress call for multifig_example.tex, got %v", calls)
	}
}

func TestRun_StageCallbackOrder(t *testing.T) {
	cfg := testConfig(t, minimalFigureDoc)

	var stages []string
	flow, err := New(cfg, Options{
		CompileRunner: texCompiler(t),
		ConvertRunner: docxConverter(t),
		Stage:         func(description string) { stages = append(stages, description) },
	})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	if _, err := flow.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"parsing LaTeX content",
		"generating subfiles",
		"compiling subfiles",
		"rewriting document",
		"converting with Pandoc",
		"verifying output",
	}
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d: expected %q, got %q", i, want[i], stages[i])
		}
	}
}
