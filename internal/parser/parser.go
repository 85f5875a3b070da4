// Package parser reads LaTeX sources and extracts the document
// structure the conversion pipeline operates on.
package parser

import (
	"path/filepath"
	"regexp"
	"strings"

	"tex2docx/internal/files"
	"tex2docx/internal/latex"
	"tex2docx/internal/logger"
	"tex2docx/internal/types"
)

// maxIncludePasses bounds include resolution so an include cycle
// cannot loop forever
const maxIncludePasses = 16

// Parser reads and analyzes a LaTeX document
type Parser struct {
	config *types.Config
}

// New creates a Parser for the configured input file
func New(config *types.Config) *Parser {
	return &Parser{config: config}
}

// Parse runs preprocessing and structure analysis in one step
func (p *Parser) Parse() (*types.Document, error) {
	clean, err := p.ReadAndPreprocess()
	if err != nil {
		return nil, err
	}
	return p.AnalyzeStructure(clean), nil
}

// ReadAndPreprocess reads the input file, strips comments and resolves
// \include directives to a fixed point. Missing or unreadable include
// files degrade to inert comment markers instead of failing the run.
func (p *Parser) ReadAndPreprocess() (string, error) {
	raw, err := files.ReadTextFile(p.config.InputTexFile)
	if err != nil {
		logger.Error("failed to read input file", err,
			logger.String("path", p.config.InputTexFile))
		return "", types.NewAppError(types.ErrParse, "could not read input file", err)
	}
	logger.Info("read input file", logger.String("file", filepath.Base(p.config.InputTexFile)))

	clean := latex.RemoveComments(raw)
	clean = p.processIncludes(clean)
	return clean, nil
}

// processIncludes substitutes \include directives with the target
// file's comment-stripped content, iterating so includes-of-includes
// resolve too. Each pass replaces one occurrence per distinct
// directive; the loop stops when a pass makes no substitution.
func (p *Parser) processIncludes(content string) string {
	parent := filepath.Dir(p.config.InputTexFile)

	for pass := 0; pass < maxIncludePasses; pass++ {
		matches := latex.IncludePattern.FindAllStringSubmatch(content, -1)
		if len(matches) == 0 {
			return content
		}

		madeReplacement := false
		processed := make(map[string]bool)

		for _, m := range matches {
			directive := m[0]
			if processed[directive] {
				continue
			}

			includeFile := includeFilename(m[1])
			includePath := filepath.Join(parent, includeFile)

			if files.Exists(includePath) {
				content = strings.Replace(content, directive, p.readIncludeFile(includePath), 1)
				madeReplacement = true
			} else {
				logger.Warn("include file not found", logger.String("path", includePath))
				content = strings.Replace(content, directive,
					"% Include file not found: "+includeFile+" %", 1)
			}
			processed[directive] = true
		}

		if !madeReplacement {
			return content
		}
	}

	logger.Warn("include resolution stopped early, possible include cycle",
		logger.Int("passes", maxIncludePasses))
	return content
}

// includeFilename appends .tex unless the name already carries it
func includeFilename(name string) string {
	if !strings.HasSuffix(strings.ToLower(name), ".tex") {
		return name + ".tex"
	}
	return name
}

// readIncludeFile reads and comment-strips an include file, degrading
// to an inert marker when the file cannot be read
func (p *Parser) readIncludeFile(path string) string {
	content, err := files.ReadTextFile(path)
	if err != nil {
		logger.Warn("could not read include file",
			logger.String("path", path), logger.Err(err))
		return "% Error including " + filepath.Base(path) + " %"
	}
	logger.Debug("included file content", logger.String("file", filepath.Base(path)))
	return latex.RemoveComments(content)
}

// AnalyzeStructure scans the clean text for float environments and
// document-level metadata. Block spans are byte offsets into the clean
// text so later replacement does not depend on substring search.
func (p *Parser) AnalyzeStructure(cleanContent string) *types.Document {
	doc := &types.Document{CleanText: cleanContent}

	doc.Figures = findBlocks(cleanContent, latex.FigurePattern, types.KindFigure)
	doc.Tables = findBlocks(cleanContent, latex.TablePattern, types.KindTable)
	logger.Info("analyzed document structure",
		logger.Int("figures", len(doc.Figures)),
		logger.Int("tables", len(doc.Tables)))

	doc.FigurePackage = latex.DetectFigurePackage(cleanContent)
	if doc.FigurePackage != types.FigPkgNone {
		logger.Debug("detected figure package",
			logger.String("package", string(doc.FigurePackage)))
	}

	doc.GraphicsPath = p.resolveGraphicsPath(cleanContent)
	logger.Debug("determined graphics path", logger.String("graphicspath", doc.GraphicsPath))

	// CJK fonts are only needed when a float body carries CJK text
	var blockText strings.Builder
	for _, b := range doc.Figures {
		blockText.WriteString(b.Text)
	}
	for _, b := range doc.Tables {
		blockText.WriteString(b.Text)
	}
	doc.ContainsChinese = latex.ContainsChinese(blockText.String())
	if doc.ContainsChinese {
		logger.Debug("detected CJK characters in float environments")
	}

	return doc
}

// findBlocks locates every match of pattern together with its byte span
func findBlocks(content string, pattern *regexp.Regexp, kind types.BlockKind) []types.EnvironmentBlock {
	spans := pattern.FindAllStringIndex(content, -1)
	blocks := make([]types.EnvironmentBlock, 0, len(spans))
	for i, span := range spans {
		blocks = append(blocks, types.EnvironmentBlock{
			Index: i,
			Kind:  kind,
			Text:  content[span[0]:span[1]],
			Start: span[0],
			End:   span[1],
		})
	}
	return blocks
}

// resolveGraphicsPath resolves the declared graphics path against the
// input file's directory, defaulting to that directory when the
// document declares none
func (p *Parser) resolveGraphicsPath(content string) string {
	parent := filepath.Dir(p.config.InputTexFile)
	declared, ok := latex.ExtractGraphicsPath(content)
	if !ok {
		return parent
	}
	if filepath.IsAbs(declared) {
		return filepath.Clean(declared)
	}
	return filepath.Join(parent, declared)
}

// Summary returns the analysis results in loggable form
func Summary(doc *types.Document) []logger.Field {
	return []logger.Field{
		logger.Int("num_figures", len(doc.Figures)),
		logger.Int("num_tables", len(doc.Tables)),
		logger.String("figure_package", string(doc.FigurePackage)),
		logger.Bool("contains_chinese", doc.ContainsChinese),
		logger.String("graphicspath", doc.GraphicsPath),
	}
}
