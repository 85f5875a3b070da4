// Package latex provides pattern matching and text processing primitives
// for LaTeX source. It locates float environments, labels, references and
// preamble commands, and handles the brace-balanced arguments that plain
// regular expressions cannot match.
package latex

import "regexp"

// Patterns for locating LaTeX structures. The (?s) flag lets environments
// and graphics commands span multiple lines.
var (
	// IncludePattern matches \include{file} commands
	IncludePattern = regexp.MustCompile(`\\include\{(.+?)\}`)
	// FigurePattern matches unstarred figure environments
	FigurePattern = regexp.MustCompile(`(?s)\\begin\{figure\}.*?\\end\{figure\}`)
	// TablePattern matches unstarred table environments
	TablePattern = regexp.MustCompile(`(?s)\\begin\{table\}.*?\\end\{table\}`)
	// LabelPattern matches \label{name} commands
	LabelPattern = regexp.MustCompile(`\\label\{(.*?)\}`)
	// RefPattern matches \ref{name} commands
	RefPattern = regexp.MustCompile(`\\ref\{(.*?)\}`)
	// GraphicsPathPattern matches \graphicspath{{dir}} declarations
	GraphicsPathPattern = regexp.MustCompile(`(?s)\\graphicspath\{\{(.+?)\}\}`)
	// IncludeGraphicsPattern matches \includegraphics commands up to the
	// closing brace of their argument
	IncludeGraphicsPattern = regexp.MustCompile(`(?s)\\includegraphics.*?\}`)
	// SubfigPackagePattern matches \usepackage{subfig}
	SubfigPackagePattern = regexp.MustCompile(`\\usepackage\{subfig\}`)
	// SubfigurePackagePattern matches \usepackage{subfigure}
	SubfigurePackagePattern = regexp.MustCompile(`\\usepackage\{subfigure\}`)
	// SubfigEnvPattern matches use of the subfig package's environments
	SubfigEnvPattern = regexp.MustCompile(`\\begin\{subfig\}|\\subfloat`)
	// SubfigureEnvPattern matches use of the subfigure package's environments
	SubfigureEnvPattern = regexp.MustCompile(`\\begin\{subfigure\}|\\subfigure`)
	// ContinuedFloatPattern matches \ContinuedFloat commands
	ContinuedFloatPattern = regexp.MustCompile(`\\ContinuedFloat`)
	// PreamblePattern matches \documentclass and \usepackage declarations,
	// including trailing whitespace. Used to find where the preamble ends.
	PreamblePattern = regexp.MustCompile(`(?s)\\documentclass.*?\}\s*|\\usepackage.*?\}\s*`)

	// invalidFilenameChars are characters not allowed in generated filenames
	invalidFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

	// brokenRefPattern matches a \ref command whose backslash was separated
	// from "ref{" by a line break
	brokenRefPattern = regexp.MustCompile(`\\[\r\n]+ef\{`)
	// brokenLabelPattern matches a \label command split the same way
	brokenLabelPattern = regexp.MustCompile(`\\[\r\n]+label\{`)
)
