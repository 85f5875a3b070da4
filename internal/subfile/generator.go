// Package subfile synthesizes standalone LaTeX documents for float
// environments so each one can be compiled and rasterized on its own.
package subfile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tex2docx/internal/files"
	"tex2docx/internal/latex"
	"tex2docx/internal/logger"
	"tex2docx/internal/types"
)

// Label prefixes stripped when a label seeds a subfile name
var (
	figurePrefixes = []string{"fig:", "fig-", "fig_"}
	tablePrefixes  = []string{"tab:", "tab-", "tab_"}
)

// Generator writes standalone subfiles for float environments
type Generator struct {
	config *types.Config
	doc    *types.Document
}

// New creates a Generator for one analyzed document
func New(config *types.Config, doc *types.Document) *Generator {
	return &Generator{config: config, doc: doc}
}

// Generate writes one standalone .tex file per block into the temp
// directory and returns the filename table indexed by block ordinal.
// A block whose subfile cannot be written is dropped from the table so
// later stages leave it untouched.
func (g *Generator) Generate(blocks []types.EnvironmentBlock) map[int]string {
	table := make(map[int]string)
	if len(blocks) == 0 {
		return table
	}

	created := make(map[string]bool)
	graphicsRel := g.relativeGraphicsPath()

	for i, block := range blocks {
		filename := g.deriveFilename(block, i, created)
		table[block.Index] = filename
		created[filename] = true

		if err := g.writeSubfile(block, filename, graphicsRel); err != nil {
			logger.Error("failed to write subfile", err, logger.String("filename", filename))
			delete(table, block.Index)
		}
	}
	return table
}

// relativeGraphicsPath computes the image search path as seen from the
// temp directory, falling back to the absolute path when no relative
// form exists (different volumes)
func (g *Generator) relativeGraphicsPath() string {
	rel, err := filepath.Rel(g.config.TempDir, g.doc.GraphicsPath)
	if err != nil {
		logger.Warn("graphics path not reachable relatively, using absolute path",
			logger.String("graphicspath", g.doc.GraphicsPath))
		return filepath.ToSlash(g.doc.GraphicsPath)
	}
	return filepath.ToSlash(rel)
}

// deriveFilename derives a unique subfile name from the block's last
// label, or from the running counter when it carries none
func (g *Generator) deriveFilename(block types.EnvironmentBlock, counter int, created map[string]bool) string {
	prefix := block.Kind.Prefix()

	var baseName string
	labels := latex.FindAll(latex.LabelPattern, block.Text)
	if len(labels) > 0 {
		baseName = stripLabelPrefix(labels[len(labels)-1], block.Kind)
	} else {
		baseName = fmt.Sprintf("%s%d", prefix, counter)
	}

	stem := prefix + "_" + latex.SanitizeFilename(baseName)
	filename := stem + ".tex"
	for created[filename] {
		filename = stem + "_" + uuid.NewString()[:4] + ".tex"
	}
	return filename
}

// stripLabelPrefix removes at most one recognized label prefix for the
// block kind
func stripLabelPrefix(label string, kind types.BlockKind) string {
	prefixes := figurePrefixes
	if kind == types.KindTable {
		prefixes = tablePrefixes
	}
	for _, p := range prefixes {
		if strings.HasPrefix(label, p) {
			return label[len(p):]
		}
	}
	return label
}

// writeSubfile renders the standalone wrapper around the block body
// and writes it into the temp directory
func (g *Generator) writeSubfile(block types.EnvironmentBlock, filename, graphicsRel string) error {
	// The synthetic document must not render the caption itself, the
	// caption text is reused later in the rewritten main document
	content := latex.CommentOutCaptions(block.Text)
	content = latex.RemoveContinuedFloat(content)

	rendered, err := latex.RenderTemplate(latex.SubfileTemplate, latex.SubfileData{
		FigurePackages: figurePackageLines(g.doc.FigurePackage),
		CJKPackage:     cjkPackageLine(g.doc.ContainsChinese),
		GraphicsPath:   graphicsRel,
		Content:        content,
	})
	if err != nil {
		return err
	}

	path := filepath.Join(g.config.TempDir, filename)
	if err := files.WriteTextFile(path, rendered); err != nil {
		return err
	}
	logger.Info("created subfile", logger.String("filename", filename))
	return nil
}

// figurePackageLines maps the detected subfigure package to the
// preamble lines the standalone document needs
func figurePackageLines(pkg types.FigurePackage) string {
	switch pkg {
	case types.FigPkgSubfig:
		return "\\usepackage{caption}\n\\usepackage{subfig}"
	case types.FigPkgSubfigure:
		return "\\usepackage{subfigure}"
	default:
		return ""
	}
}

func cjkPackageLine(containsChinese bool) string {
	if containsChinese {
		return "\\usepackage{xeCJK}"
	}
	return ""
}
