package latex

import (
	"strings"
	"testing"
)

func TestSubfileTemplateFull(t *testing.T) {
	out, err := RenderTemplate(SubfileTemplate, SubfileData{
		FigurePackages: "\\usepackage{caption}\n\\usepackage{subfig}",
		CJKPackage:     "\\usepackage{xeCJK}",
		GraphicsPath:   "../figures",
		Content:        "\\begin{figure}\nX\n\\end{figure}",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	for _, want := range []string{
		"\\documentclass[preview,convert,convert={outext=.png,command=\\unexpanded{pdftocairo -r 500 -png \\infile}}]{standalone}",
		"\\usepackage{graphicx}\n\\usepackage{caption}\n\\usepackage{subfig}\n\\usepackage{booktabs}",
		"\\usepackage{siunitx}\n\\usepackage{xeCJK}\n\\graphicspath{{../figures}}",
		"\\begin{document}\n\\thispagestyle{empty}\n\\begin{figure}\nX\n\\end{figure}\n\\end{document}",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestSubfileTemplateMinimal(t *testing.T) {
	out, err := RenderTemplate(SubfileTemplate, SubfileData{
		GraphicsPath: ".",
		Content:      "body",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	// Optional package lines must vanish without leaving blank lines
	if !strings.Contains(out, "\\usepackage{graphicx}\n\\usepackage{booktabs}") {
		t.Errorf("figure package line not removed cleanly:\n%s", out)
	}
	if !strings.Contains(out, "\\usepackage{siunitx}\n\\graphicspath{{.}}") {
		t.Errorf("CJK package line not removed cleanly:\n%s", out)
	}
	if strings.Contains(out, "xeCJK") || strings.Contains(out, "subfig") {
		t.Errorf("unexpected package in minimal output:\n%s", out)
	}
}

func TestFigureEnvTemplate(t *testing.T) {
	out, err := RenderTemplate(FigureEnvTemplate, FloatEnvData{
		Image:   "multifig_flow.png",
		Caption: "Flow of data",
		Label:   "multifig:flow",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	expected := `
\begin{figure}[htbp]
    \centering
    \includegraphics[width=\linewidth]{multifig_flow.png}
    \caption{Flow of data}
    \label{multifig:flow}
\end{figure}
`
	if out != expected {
		t.Errorf("unexpected figure environment:\ngot:  %q\nwant: %q", out, expected)
	}
}

func TestTableEnvTemplate(t *testing.T) {
	out, err := RenderTemplate(TableEnvTemplate, FloatEnvData{
		Image:   "tab_results.png",
		Caption: "Results",
		Label:   "tab:results",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	expected := `
\begin{table}[htbp]
    \centering
    \caption{Results}
    \label{tab:results}
    \begin{tabular}{l}
    \includegraphics[width=\linewidth]{tab_results.png}
    \end{tabular}
\end{table}
`
	if out != expected {
		t.Errorf("unexpected table environment:\ngot:  %q\nwant: %q", out, expected)
	}
}

func TestParseFloatEnvTemplate(t *testing.T) {
	tmpl, err := ParseFloatEnvTemplate("custom", "\\begin{figure}\n\\includegraphics{<<.Image>>}\n\\label{<<.Label>>}\n\\end{figure}\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	out, err := RenderTemplate(tmpl, FloatEnvData{Image: "x.png", Label: "multifig:x"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(out, "\\includegraphics{x.png}") || !strings.Contains(out, "\\label{multifig:x}") {
		t.Errorf("unexpected custom render: %q", out)
	}

	if _, err := ParseFloatEnvTemplate("bad", "<<.Image"); err == nil {
		t.Error("expected parse error for unterminated action")
	}
}
