package latex

import (
	"regexp"
	"strings"

	"tex2docx/internal/types"
)

// FindAll returns the first capture group of every match of re in content,
// or the whole match when the pattern has no capture group
func FindAll(re *regexp.Regexp, content string) []string {
	matches := re.FindAllStringSubmatch(content, -1)
	if matches == nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out
}

// FindFirst returns the first match of re in content
func FindFirst(re *regexp.Regexp, content string) (string, bool) {
	all := FindAll(re, content)
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}

// FindLast returns the last match of re in content
func FindLast(re *regexp.Regexp, content string) (string, bool) {
	all := FindAll(re, content)
	if len(all) == 0 {
		return "", false
	}
	return all[len(all)-1], true
}

// DetectFigurePackage determines which subfigure package the document uses.
// Loading the package declaration counts, and so does using its commands,
// since some documents load subfig via a custom style file.
func DetectFigurePackage(content string) types.FigurePackage {
	if SubfigPackagePattern.MatchString(content) || SubfigEnvPattern.MatchString(content) {
		return types.FigPkgSubfig
	}
	if SubfigurePackagePattern.MatchString(content) || SubfigureEnvPattern.MatchString(content) {
		return types.FigPkgSubfigure
	}
	return types.FigPkgNone
}

// ExtractGraphicsPath returns the directory of the last \graphicspath
// declaration in content. When the declaration lists several directories,
// the first one is used.
func ExtractGraphicsPath(content string) (string, bool) {
	path, ok := FindLast(GraphicsPathPattern, content)
	if !ok {
		return "", false
	}
	if i := strings.Index(path, "}{"); i >= 0 {
		path = path[:i]
	}
	return path, true
}
