package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tex2docx/internal/results"
	"tex2docx/internal/types"
)

// runnerFunc adapts a function into a CommandRunner for tests.
type runnerFunc func(ctx context.Context, dir string, name string, args ...string) (string, string, error)

func (f runnerFunc) Run(ctx context.Context, dir string, name string, args ...string) (string, string, error) {
	return f(ctx, dir, name, args...)
}

func testConfig(t *testing.T) *types.Config {
	t.Helper()
	tempDir := filepath.Join(t.TempDir(), "temp_subtexfile_dir")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	return &types.Config{
		TempDir:        tempDir,
		Concurrency:    4,
		CompileTimeout: types.Duration(time.Minute),
	}
}

func writePNG(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("png"), 0644); err != nil {
		t.Fatalf("failed to write png %s: %v", name, err)
	}
}

func subfile(kind types.BlockKind, index int, filename string) types.Subfile {
	return types.Subfile{Index: index, Kind: kind, Filename: filename}
}

func TestCompileAll_Success(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		stem := strings.TrimSuffix(args[len(args)-1], ".tex")
		writePNG(t, dir, stem+".png")
		return "engine output", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	failed := c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_setup.tex"),
		subfile(types.KindTable, 1, "tab_results.tex"),
	}, nil)

	if len(failed) != 0 {
		t.Fatalf("expected no failures, got %v", failed)
	}
	if recorder.Len() != 2 {
		t.Fatalf("expected 2 recorded results, got %d", recorder.Len())
	}
	for _, filename := range []string{"multifig_setup.tex", "tab_results.tex"} {
		result, ok := recorder.Get(filename)
		if !ok {
			t.Fatalf("no result recorded for %s", filename)
		}
		if !result.Success {
			t.Errorf("expected %s to succeed, error: %s", filename, result.ErrorMsg)
		}
		stem := strings.TrimSuffix(filename, ".tex")
		wantPNG := filepath.Join(cfg.TempDir, stem+".png")
		if result.PNGPath != wantPNG {
			t.Errorf("expected PNG path %s, got %s", wantPNG, result.PNGPath)
		}
	}
}

func TestCompileAll_EngineInvocation(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	var mu sync.Mutex
	var gotDir, gotName string
	var gotArgs []string

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		mu.Lock()
		gotDir, gotName, gotArgs = dir, name, args
		mu.Unlock()
		writePNG(t, dir, "multifig_x.png")
		return "", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_x.tex"),
	}, nil)

	if gotName != "xelatex" {
		t.Errorf("expected engine xelatex, got %s", gotName)
	}
	if gotDir != cfg.TempDir {
		t.Errorf("expected working directory %s, got %s", cfg.TempDir, gotDir)
	}
	want := []string{"-shell-escape", "-synctex=1", "-interaction=nonstopmode", "multifig_x.tex"}
	if len(gotArgs) != len(want) {
		t.Fatalf("expected args %v, got %v", want, gotArgs)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], gotArgs[i])
		}
	}
}

func TestCompileAll_FailureIsolation(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		texName := args[len(args)-1]
		if texName == "tab_broken.tex" {
			return "", "! LaTeX Error: something broke", errors.New("exit status 1")
		}
		writePNG(t, dir, strings.TrimSuffix(texName, ".tex")+".png")
		return "ok", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	failed := c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_a.tex"),
		subfile(types.KindTable, 1, "tab_broken.tex"),
		subfile(types.KindFigure, 2, "multifig_b.tex"),
	}, nil)

	if len(failed) != 1 || failed[0] != "tab_broken.tex" {
		t.Fatalf("expected failure list [tab_broken.tex], got %v", failed)
	}
	if recorder.SucceededCount() != 2 {
		t.Errorf("expected 2 successes, got %d", recorder.SucceededCount())
	}

	broken, _ := recorder.Get("tab_broken.tex")
	if broken.Success {
		t.Error("expected tab_broken.tex to fail")
	}
	if !strings.Contains(broken.Log, "! LaTeX Error") {
		t.Errorf("expected captured engine log, got %q", broken.Log)
	}
}

func TestCompileAll_ProgressCallback(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		stem := strings.TrimSuffix(args[len(args)-1], ".tex")
		writePNG(t, dir, stem+".png")
		return "", "", nil
	})

	var mu sync.Mutex
	var calls int
	var lastCompleted, lastTotal int

	c := NewWithRunner(cfg, recorder, runner)
	c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_a.tex"),
		subfile(types.KindFigure, 1, "multifig_b.tex"),
		subfile(types.KindTable, 2, "tab_c.tex"),
	}, func(completed, total int, filename string) {
		mu.Lock()
		calls++
		if completed > lastCompleted {
			lastCompleted = completed
		}
		lastTotal = total
		mu.Unlock()
	})

	if calls != 3 {
		t.Errorf("expected 3 progress calls, got %d", calls)
	}
	if lastCompleted != 3 || lastTotal != 3 {
		t.Errorf("expected final progress 3/3, got %d/%d", lastCompleted, lastTotal)
	}
}

func TestCompileAll_Empty(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()
	c := NewWithRunner(cfg, recorder, runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		t.Fatal("runner must not be called for an empty subfile list")
		return "", "", nil
	}))

	failed := c.CompileAll(context.Background(), nil, nil)
	if failed != nil {
		t.Errorf("expected nil failure list, got %v", failed)
	}
	if recorder.Len() != 0 {
		t.Errorf("expected no recorded results, got %d", recorder.Len())
	}
}

func TestCompileOne_SidecarsWrittenOnFailure(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		return "partial stdout", "! Undefined control sequence", errors.New("exit status 1")
	})

	c := NewWithRunner(cfg, recorder, runner)
	c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_bad.tex"),
	}, nil)

	out, err := os.ReadFile(filepath.Join(cfg.TempDir, "multifig_bad.out"))
	if err != nil {
		t.Fatalf("stdout sidecar not written: %v", err)
	}
	if string(out) != "partial stdout" {
		t.Errorf("unexpected stdout sidecar content: %q", out)
	}

	errOut, err := os.ReadFile(filepath.Join(cfg.TempDir, "multifig_bad.err"))
	if err != nil {
		t.Fatalf("stderr sidecar not written: %v", err)
	}
	if string(errOut) != "! Undefined control sequence" {
		t.Errorf("unexpected stderr sidecar content: %q", errOut)
	}
}

func TestCompileOne_SidecarsWrittenOnSuccess(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		writePNG(t, dir, "multifig_ok.png")
		return "all good", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_ok.tex"),
	}, nil)

	out, err := os.ReadFile(filepath.Join(cfg.TempDir, "multifig_ok.out"))
	if err != nil {
		t.Fatalf("stdout sidecar not written: %v", err)
	}
	if string(out) != "all good" {
		t.Errorf("unexpected stdout sidecar content: %q", out)
	}
	if _, err := os.Stat(filepath.Join(cfg.TempDir, "multifig_ok.err")); err != nil {
		t.Errorf("stderr sidecar not written: %v", err)
	}
}

func TestCompileOne_NoPNGIsFailure(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		return "finished without images", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	failed := c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_nopng.tex"),
	}, nil)

	if len(failed) != 1 {
		t.Fatalf("expected one failure, got %v", failed)
	}
	result, _ := recorder.Get("multifig_nopng.tex")
	if result.Success {
		t.Error("expected failure when no PNG is produced")
	}
	if !strings.Contains(result.ErrorMsg, "no PNG") {
		t.Errorf("expected error message about missing PNG, got %q", result.ErrorMsg)
	}
}

func TestCompileOne_RenamesVariantPNG(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		writePNG(t, dir, "multifig_v-1.png")
		return "", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_v.tex"),
	}, nil)

	result, _ := recorder.Get("multifig_v.tex")
	if !result.Success {
		t.Fatalf("expected success, error: %s", result.ErrorMsg)
	}

	canonical := filepath.Join(cfg.TempDir, "multifig_v.png")
	if _, err := os.Stat(canonical); err != nil {
		t.Errorf("expected canonical PNG at %s: %v", canonical, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.TempDir, "multifig_v-1.png")); !os.IsNotExist(err) {
		t.Error("expected variant PNG to be renamed away")
	}
	if result.PNGPath != canonical {
		t.Errorf("expected PNG path %s, got %s", canonical, result.PNGPath)
	}
}

func TestCompileOne_MultipleVariantsUsesFirst(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		writePNG(t, dir, "tab_m-1.png")
		writePNG(t, dir, "tab_m-2.png")
		return "", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindTable, 0, "tab_m.tex"),
	}, nil)

	result, _ := recorder.Get("tab_m.tex")
	if !result.Success {
		t.Fatalf("expected success, error: %s", result.ErrorMsg)
	}
	if _, err := os.Stat(filepath.Join(cfg.TempDir, "tab_m.png")); err != nil {
		t.Errorf("expected canonical PNG: %v", err)
	}
	// The first candidate in lexical order was renamed, the second remains.
	if _, err := os.Stat(filepath.Join(cfg.TempDir, "tab_m-2.png")); err != nil {
		t.Errorf("expected second variant to remain: %v", err)
	}
}

func TestCompileOne_ExactPNGPreferredOverVariants(t *testing.T) {
	cfg := testConfig(t)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		writePNG(t, dir, "multifig_e.png")
		writePNG(t, dir, "multifig_e-1.png")
		return "", "", nil
	})

	c := NewWithRunner(cfg, recorder, runner)
	c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_e.tex"),
	}, nil)

	result, _ := recorder.Get("multifig_e.tex")
	if !result.Success {
		t.Fatalf("expected success, error: %s", result.ErrorMsg)
	}
	// No rename happens when the canonical name already exists.
	if _, err := os.Stat(filepath.Join(cfg.TempDir, "multifig_e-1.png")); err != nil {
		t.Errorf("expected variant to be left untouched: %v", err)
	}
}

func TestCompileOne_Timeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.CompileTimeout = types.Duration(20 * time.Millisecond)
	recorder := results.NewRecorder()

	runner := runnerFunc(func(ctx context.Context, dir, name string, args ...string) (string, string, error) {
		<-ctx.Done()
		return "", "", ctx.Err()
	})

	c := NewWithRunner(cfg, recorder, runner)
	failed := c.CompileAll(context.Background(), []types.Subfile{
		subfile(types.KindFigure, 0, "multifig_slow.tex"),
	}, nil)

	if len(failed) != 1 {
		t.Fatalf("expected one failure, got %v", failed)
	}
	result, _ := recorder.Get("multifig_slow.tex")
	if !strings.Contains(result.ErrorMsg, "timed out") {
		t.Errorf("expected timeout error message, got %q", result.ErrorMsg)
	}
}

func TestCheckToolchain_Missing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	err := CheckToolchain()
	if err == nil {
		t.Skip("xelatex resolvable without PATH, skipping")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrMissingTool {
		t.Errorf("expected code %s, got %s", types.ErrMissingTool, appErr.Code)
	}
}
