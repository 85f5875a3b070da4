// Package modifier rewrites the parsed document, swapping each compiled
// float environment for a single-image form and retargeting every
// cross-reference at the new labels.
package modifier

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"tex2docx/internal/files"
	"tex2docx/internal/latex"
	"tex2docx/internal/logger"
	"tex2docx/internal/results"
	"tex2docx/internal/types"
)

// Modifier builds the modified document that Pandoc consumes
type Modifier struct {
	config     *types.Config
	recorder   *results.Recorder
	figureTmpl *template.Template
	tableTmpl  *template.Template
}

// New creates a Modifier. A custom figure template from the configuration
// replaces the built-in one; a template that fails to parse is a
// configuration error.
func New(cfg *types.Config, recorder *results.Recorder) (*Modifier, error) {
	figureTmpl := latex.FigureEnvTemplate
	if cfg.FigureTemplate != "" {
		custom, err := latex.ParseFloatEnvTemplate("custom-figure-env", cfg.FigureTemplate)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig,
				"invalid custom figure template", err.Error(), err)
		}
		figureTmpl = custom
		logger.Info("using custom figure template")
	}

	return &Modifier{
		config:     cfg,
		recorder:   recorder,
		figureTmpl: figureTmpl,
		tableTmpl:  latex.TableEnvTemplate,
	}, nil
}

// replacement binds an environment block to its rendered single-image form
type replacement struct {
	block    types.EnvironmentBlock
	filename string
	newEnv   string
	newLabel string
}

// Apply returns content with every successfully compiled block replaced by
// its single-image environment, references retargeted, the graphics path
// redirected at the temp directory, and split commands repaired. Blocks
// without a compiled subfile stay in their original form.
func (m *Modifier) Apply(content string, doc *types.Document, figures, tables map[int]string) string {
	plans := m.planReplacements(doc, figures, tables)

	modified, applied := m.replaceBlocks(content, plans)
	for _, p := range applied {
		modified = m.retargetReferences(modified, p)
	}

	modified = m.rewriteGraphicsPath(modified)

	modified, repaired := latex.RepairSplitCommands(modified)
	if repaired > 0 {
		logger.Debug("repaired split ref and label commands", logger.Int("count", repaired))
	}

	logger.Info("modified document content",
		logger.Int("replaced", len(applied)),
		logger.Int("planned", len(plans)))
	return modified
}

// WriteModified writes the modified document to the configured output path.
func (m *Modifier) WriteModified(content string) error {
	if err := files.WriteTextFile(m.config.OutputTexFile, content); err != nil {
		return types.NewAppError(types.ErrModify, "failed to write modified tex file", err)
	}
	logger.Info("created modified tex file", logger.String("path", m.config.OutputTexFile))
	return nil
}

// planReplacements renders the new environment for every block that has a
// compiled subfile, ordered by position in the document.
func (m *Modifier) planReplacements(doc *types.Document, figures, tables map[int]string) []replacement {
	plans := m.appendPlans(nil, doc.Figures, figures, m.figureTmpl)
	if m.config.FixTable {
		plans = m.appendPlans(plans, doc.Tables, tables, m.tableTmpl)
	} else if len(doc.Tables) > 0 {
		logger.Debug("table replacement disabled, leaving table environments unchanged",
			logger.Int("count", len(doc.Tables)))
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].block.Start < plans[j].block.Start
	})
	return plans
}

func (m *Modifier) appendPlans(plans []replacement, blocks []types.EnvironmentBlock, table map[int]string, tmpl *template.Template) []replacement {
	for _, block := range blocks {
		filename, ok := table[block.Index]
		if !ok {
			logger.Warn("no subfile for environment, leaving it unchanged",
				logger.String("kind", string(block.Kind)),
				logger.Int("index", block.Index))
			continue
		}
		if result, recorded := m.recorder.Get(filename); !recorded || !result.Success {
			logger.Warn("subfile did not compile, leaving environment unchanged",
				logger.String("kind", string(block.Kind)),
				logger.Int("index", block.Index),
				logger.String("filename", filename))
			continue
		}

		stem := strings.TrimSuffix(filename, ".tex")
		newLabel := block.Kind.Prefix() + ":" + latex.SanitizeFilename(stem)
		data := latex.FloatEnvData{
			Image:   stem + ".png",
			Caption: latex.LastCaption(block.Text),
			Label:   newLabel,
		}

		newEnv, err := latex.RenderTemplate(tmpl, data)
		if err != nil {
			logger.Warn("failed to render replacement environment, leaving it unchanged",
				logger.String("filename", filename),
				logger.Err(err))
			continue
		}

		logger.Debug("rendered replacement environment",
			logger.String("kind", string(block.Kind)),
			logger.Int("index", block.Index),
			logger.String("label", newLabel),
			logger.String("image", data.Image))

		plans = append(plans, replacement{
			block:    block,
			filename: filename,
			newEnv:   newEnv,
			newLabel: newLabel,
		})
	}
	return plans
}

// replaceBlocks splices each planned environment into content by the byte
// span recorded at parse time. A span starting inside an earlier
// replacement is skipped, which happens when one float is nested in
// another. Identical block texts are unambiguous here because every block
// carries its own span.
func (m *Modifier) replaceBlocks(content string, plans []replacement) (string, []replacement) {
	var sb strings.Builder
	sb.Grow(len(content))

	applied := make([]replacement, 0, len(plans))
	pos := 0
	for _, p := range plans {
		if p.block.Start < pos {
			logger.Warn("environment overlaps an earlier replacement, skipping",
				logger.String("kind", string(p.block.Kind)),
				logger.Int("index", p.block.Index))
			continue
		}
		if p.block.End > len(content) || content[p.block.Start:p.block.End] != p.block.Text {
			logger.Warn("environment text not found at its span, skipping",
				logger.String("kind", string(p.block.Kind)),
				logger.Int("index", p.block.Index))
			continue
		}

		sb.WriteString(content[pos:p.block.Start])
		sb.WriteString(p.newEnv)
		pos = p.block.End
		applied = append(applied, p)
	}
	sb.WriteString(content[pos:])

	return sb.String(), applied
}

// retargetReferences rewrites every reference to the block's labels. A
// label that follows an \includegraphics with no caption in between names
// that subfigure slot and becomes a lettered reference such as
// \ref{multifig:x}(a); the letter position tracks the \includegraphics
// ordinal. Every other label in the block is retargeted at the plain new
// label.
func (m *Modifier) retargetReferences(content string, p replacement) string {
	consumed := make(map[string]bool)

	images := latex.IncludeGraphicsPattern.FindAllStringIndex(p.block.Text, -1)
	for i, img := range images {
		end := len(p.block.Text)
		if i+1 < len(images) {
			end = images[i+1][0]
		}
		window := p.block.Text[img[1]:end]

		loc := latex.LabelPattern.FindStringSubmatchIndex(window)
		if loc == nil {
			continue
		}
		if latex.HasCaption(window[:loc[0]]) {
			// The caption closes the subfigure, so this label names the
			// whole block
			continue
		}

		subLabel := window[loc[2]:loc[3]]
		letter := string(rune('a' + i))
		content = rewriteRefs(content, subLabel, "\\ref{"+p.newLabel+"}("+letter+")")
		consumed[subLabel] = true

		logger.Debug("retargeted subfigure reference",
			logger.String("from", subLabel),
			logger.String("to", p.newLabel+"("+letter+")"))
	}

	for _, match := range latex.LabelPattern.FindAllStringSubmatch(p.block.Text, -1) {
		label := match[1]
		if consumed[label] {
			continue
		}
		content = rewriteRefs(content, label, "\\ref{"+p.newLabel+"}")
		consumed[label] = true

		logger.Debug("retargeted block reference",
			logger.String("from", label),
			logger.String("to", p.newLabel))
	}

	return content
}

// rewriteRefs replaces every \ref{oldLabel} in content with the literal
// newRef text.
func rewriteRefs(content, oldLabel, newRef string) string {
	pattern := regexp.MustCompile(`\\ref\{` + regexp.QuoteMeta(oldLabel) + `\}`)
	return pattern.ReplaceAllLiteralString(content, newRef)
}

// rewriteGraphicsPath removes every \graphicspath declaration and inserts
// a single one pointing at the temp subfile directory, placed right after
// the last preamble line, or at the document start when none exists.
func (m *Modifier) rewriteGraphicsPath(content string) string {
	content = latex.GraphicsPathPattern.ReplaceAllString(content, "")

	decl := "\\graphicspath{{" + filepath.Base(m.config.TempDir) + "/}}"

	locs := latex.PreamblePattern.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		logger.Debug("no preamble line found, inserting graphicspath at document start")
		return decl + "\n" + content
	}

	end := locs[len(locs)-1][1]
	logger.Debug("inserted graphicspath after preamble", logger.String("declaration", decl))
	return content[:end] + decl + "\n" + content[end:]
}
