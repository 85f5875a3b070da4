package latex

import (
	"strings"
	"text/template"
)

// Templates use << >> delimiters because LaTeX text is full of braces.
const (
	// TemplateDelimLeft is the opening template delimiter
	TemplateDelimLeft = "<<"
	// TemplateDelimRight is the closing template delimiter
	TemplateDelimRight = ">>"
)

// SubfileData fills SubfileTemplate
type SubfileData struct {
	// FigurePackages holds \usepackage lines for the subfigure package
	// in use, empty when the document uses none
	FigurePackages string
	// CJKPackage holds the CJK font package line, empty when unneeded
	CJKPackage string
	// GraphicsPath is the image search path, relative to the subfile
	GraphicsPath string
	// Content is the float environment body to render
	Content string
}

// FloatEnvData fills FigureEnvTemplate and TableEnvTemplate
type FloatEnvData struct {
	Image   string
	Caption string
	Label   string
}

// subfileText wraps one float environment in a standalone document
// that rasterizes itself to PNG through shell escape on compilation
const subfileText = `
\documentclass[preview,convert,convert={outext=.png,command=\unexpanded{pdftocairo -r 500 -png \infile}}]{standalone}
\usepackage{graphicx}
<<- if .FigurePackages>>
<<.FigurePackages>>
<<- end>>
\usepackage{booktabs}
\usepackage{multirow}
\usepackage{makecell}
\usepackage{setspace}
\usepackage{siunitx}
<<- if .CJKPackage>>
<<.CJKPackage>>
<<- end>>
\graphicspath{{<<.GraphicsPath>>}}
\begin{document}
\thispagestyle{empty}
<<.Content>>
\end{document}
`

const figureEnvText = `
\begin{figure}[htbp]
    \centering
    \includegraphics[width=\linewidth]{<<.Image>>}
    \caption{<<.Caption>>}
    \label{<<.Label>>}
\end{figure}
`

const tableEnvText = `
\begin{table}[htbp]
    \centering
    \caption{<<.Caption>>}
    \label{<<.Label>>}
    \begin{tabular}{l}
    \includegraphics[width=\linewidth]{<<.Image>>}
    \end{tabular}
\end{table}
`

var (
	// SubfileTemplate renders a standalone compilable document around
	// one float environment
	SubfileTemplate = mustParse("subfile", subfileText)
	// FigureEnvTemplate renders the single-image figure environment
	// that replaces an original figure block
	FigureEnvTemplate = mustParse("figure-env", figureEnvText)
	// TableEnvTemplate renders the single-image table environment that
	// replaces an original table block
	TableEnvTemplate = mustParse("table-env", tableEnvText)
)

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).
		Delims(TemplateDelimLeft, TemplateDelimRight).
		Parse(text))
}

// ParseFloatEnvTemplate parses a user-supplied float environment
// template. It must use the << >> delimiters and may reference
// .Image, .Caption and .Label.
func ParseFloatEnvTemplate(name, text string) (*template.Template, error) {
	return template.New(name).
		Delims(TemplateDelimLeft, TemplateDelimRight).
		Parse(text)
}

// RenderTemplate executes tmpl with data and returns the output
func RenderTemplate(tmpl *template.Template, data interface{}) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
