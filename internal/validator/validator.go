// Package validator performs structural checks on documents before they
// are handed to the external converter. Replacing float environments and
// retargeting references can damage a document; the checks here surface
// that damage early with line numbers instead of an opaque Pandoc error.
package validator

import (
	"fmt"
	"strings"

	"tex2docx/internal/latex"
	"tex2docx/internal/logger"
)

// Issue is one structural problem found in a document
type Issue struct {
	Severity string // "error" or "warning"
	Line     int
	Message  string
	Details  string
}

// Result aggregates the issues found during validation
type Result struct {
	Valid  bool
	Issues []Issue
}

// Validator checks a LaTeX document for structural damage. Findings are
// logged and reported, never fatal: a degraded document still converts.
type Validator struct{}

// New creates a Validator
func New() *Validator {
	return &Validator{}
}

// Validate runs all structural checks over content and logs the findings.
func (v *Validator) Validate(content string) *Result {
	result := &Result{Valid: true}

	v.checkBraceBalance(content, result)
	v.checkEnvironmentBalance(content, result)
	v.checkDocumentStructure(content, result)
	v.checkDanglingReferences(content, result)

	if len(result.Issues) == 0 {
		logger.Debug("document passed structural checks")
		return result
	}

	logger.Warn("document has structural issues",
		logger.Int("count", len(result.Issues)),
		logger.Bool("valid", result.Valid))
	for _, issue := range result.Issues {
		logger.Warn(issue.Message,
			logger.String("severity", issue.Severity),
			logger.Int("line", issue.Line),
			logger.String("details", issue.Details))
	}
	return result
}

// checkBraceBalance counts brace depth across the document, ignoring
// escaped braces, comments and verbatim blocks.
func (v *Validator) checkBraceBalance(content string, result *Result) {
	depth := 0
	line := 1
	inComment := false
	inVerbatim := false
	lastChar := ' '

	for pos, char := range content {
		if char == '\n' {
			line++
			inComment = false
			lastChar = char
			continue
		}

		if char == '\\' && !inComment {
			if !inVerbatim && strings.HasPrefix(content[pos:], "\\begin{verbatim}") {
				inVerbatim = true
			} else if inVerbatim && strings.HasPrefix(content[pos:], "\\end{verbatim}") {
				inVerbatim = false
			}
		}

		if char == '%' && lastChar != '\\' && !inVerbatim {
			inComment = true
		}
		if inComment || inVerbatim {
			lastChar = char
			continue
		}

		if char == '{' && lastChar != '\\' {
			depth++
		} else if char == '}' && lastChar != '\\' {
			depth--
			if depth < 0 {
				result.Valid = false
				result.Issues = append(result.Issues, Issue{
					Severity: "error",
					Line:     line,
					Message:  "extra closing brace",
					Details:  "found '}' without matching '{'",
				})
				// Reset to prevent cascading errors
				depth = 0
			}
		}

		lastChar = char
	}

	if depth != 0 {
		result.Valid = false
		result.Issues = append(result.Issues, Issue{
			Severity: "error",
			Message:  "unbalanced braces",
			Details:  fmt.Sprintf("%d unclosed opening braces", depth),
		})
	}
}

// checkEnvironmentBalance matches every \begin{env} against its \end{env}
// with a stack, reporting mismatches and unclosed environments.
func (v *Validator) checkEnvironmentBalance(content string, result *Result) {
	var stack []string

	for lineNum, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%") {
			continue
		}

		pos := 0
		for {
			beginIdx := strings.Index(line[pos:], "\\begin{")
			endIdx := strings.Index(line[pos:], "\\end{")
			if beginIdx == -1 && endIdx == -1 {
				break
			}

			if beginIdx != -1 && (endIdx == -1 || beginIdx < endIdx) {
				start := pos + beginIdx + len("\\begin{")
				close := strings.Index(line[start:], "}")
				if close == -1 {
					break
				}
				stack = append(stack, line[start:start+close])
				pos = start + close
				continue
			}

			start := pos + endIdx + len("\\end{")
			close := strings.Index(line[start:], "}")
			if close == -1 {
				break
			}
			name := line[start : start+close]

			if len(stack) == 0 {
				result.Issues = append(result.Issues, Issue{
					Severity: "warning",
					Line:     lineNum + 1,
					Message:  fmt.Sprintf("\\end{%s} without matching \\begin{%s}", name, name),
					Details:  truncate(line, 60),
				})
			} else {
				if last := stack[len(stack)-1]; last != name {
					result.Issues = append(result.Issues, Issue{
						Severity: "warning",
						Line:     lineNum + 1,
						Message:  fmt.Sprintf("environment mismatch: expected \\end{%s}, found \\end{%s}", last, name),
						Details:  truncate(line, 60),
					})
				}
				stack = stack[:len(stack)-1]
			}
			pos = start + close
		}
	}

	if len(stack) > 0 {
		result.Issues = append(result.Issues, Issue{
			Severity: "warning",
			Message:  "unclosed environments",
			Details:  fmt.Sprintf("missing \\end{} for: %s", strings.Join(stack, ", ")),
		})
	}
}

// checkDocumentStructure verifies the documentclass/document skeleton and
// that nothing but comments follows \end{document}.
func (v *Validator) checkDocumentStructure(content string, result *Result) {
	if !strings.Contains(content, "\\documentclass") {
		result.Valid = false
		result.Issues = append(result.Issues, Issue{
			Severity: "error",
			Message:  "missing \\documentclass",
		})
	}
	if !strings.Contains(content, "\\begin{document}") {
		result.Valid = false
		result.Issues = append(result.Issues, Issue{
			Severity: "error",
			Message:  "missing \\begin{document}",
		})
	}
	if !strings.Contains(content, "\\end{document}") {
		result.Valid = false
		result.Issues = append(result.Issues, Issue{
			Severity: "error",
			Message:  "missing \\end{document}",
		})
		return
	}

	endIdx := strings.LastIndex(content, "\\end{document}")
	after := content[endIdx+len("\\end{document}"):]
	for _, line := range strings.Split(after, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "%") {
			result.Valid = false
			result.Issues = append(result.Issues, Issue{
				Severity: "error",
				Message:  "content after \\end{document}",
				Details:  truncate(strings.TrimSpace(after), 50),
			})
			break
		}
	}
}

// checkDanglingReferences reports every \ref whose target label does not
// exist in the document. After reference retargeting a dangling \ref is
// usually an old label the rewrite missed.
func (v *Validator) checkDanglingReferences(content string, result *Result) {
	labels := make(map[string]bool)
	for _, m := range latex.LabelPattern.FindAllStringSubmatch(content, -1) {
		labels[m[1]] = true
	}

	seen := make(map[string]bool)
	for _, m := range latex.RefPattern.FindAllStringSubmatch(content, -1) {
		target := m[1]
		if labels[target] || seen[target] {
			continue
		}
		seen[target] = true
		result.Issues = append(result.Issues, Issue{
			Severity: "warning",
			Message:  fmt.Sprintf("reference to undefined label %q", target),
			Details:  "the target label does not appear in the document",
		})
	}
}

// FormatIssues renders issues one per line for console output
func FormatIssues(issues []Issue) string {
	if len(issues) == 0 {
		return "no issues found"
	}

	var sb strings.Builder
	for i, issue := range issues {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if issue.Line > 0 {
			fmt.Fprintf(&sb, "[%s] line %d: %s", issue.Severity, issue.Line, issue.Message)
		} else {
			fmt.Fprintf(&sb, "[%s] %s", issue.Severity, issue.Message)
		}
		if issue.Details != "" {
			fmt.Fprintf(&sb, " (%s)", issue.Details)
		}
	}
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
