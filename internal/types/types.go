// Package types defines core data types and enums for the tex2docx converter.
package types

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use values like
// "90s" or "5m" instead of nanosecond integers
type Duration time.Duration

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML parses a duration string such as "5m" or "300s"
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config 转换配置
type Config struct {
	// Required paths
	InputTexFile   string `yaml:"input_texfile" json:"input_texfile"`
	OutputDocxFile string `yaml:"output_docxfile" json:"output_docxfile"`

	// Optional companion files
	BibFile          string `yaml:"bibfile,omitempty" json:"bibfile,omitempty"`
	CSLFile          string `yaml:"cslfile,omitempty" json:"cslfile,omitempty"`
	ReferenceDocFile string `yaml:"reference_docfile,omitempty" json:"reference_docfile,omitempty"`
	LuaFilterFile    string `yaml:"lua_filterfile,omitempty" json:"lua_filterfile,omitempty"`

	// Conversion options
	Debug    bool `yaml:"debug" json:"debug"`
	FixTable bool `yaml:"fix_table" json:"fix_table"`

	// Template override for the figure environment written into the
	// modified document
	FigureTemplate string `yaml:"figure_template,omitempty" json:"figure_template,omitempty"`

	// Compilation options
	Concurrency    int      `yaml:"concurrency" json:"concurrency"`
	CompileTimeout Duration `yaml:"compile_timeout" json:"compile_timeout"`

	// Derived paths, filled in by config.Manager.Resolve
	OutputTexFile string `yaml:"-" json:"-"`
	TempDir       string `yaml:"-" json:"-"`
}

// BlockKind 浮动环境类型
type BlockKind string

const (
	// KindFigure is a figure environment
	KindFigure BlockKind = "figure"
	// KindTable is a table environment
	KindTable BlockKind = "table"
)

// Prefix returns the prefix used for subfile names and rebuilt labels.
// Figures use "multifig" because a single rendered image may replace a
// whole group of subfigures.
func (k BlockKind) Prefix() string {
	if k == KindTable {
		return "tab"
	}
	return "multifig"
}

// FigurePackage 子图宏包类型
type FigurePackage string

const (
	// FigPkgNone indicates the document uses no subfigure package
	FigPkgNone FigurePackage = ""
	// FigPkgSubfig indicates the document uses the subfig package
	FigPkgSubfig FigurePackage = "subfig"
	// FigPkgSubfigure indicates the document uses the legacy subfigure package
	FigPkgSubfigure FigurePackage = "subfigure"
)

// EnvironmentBlock is one float environment located in the resolved document.
// Start and End are byte offsets into the clean text (End exclusive), so the
// block can be replaced in place even when an identical block appears twice.
type EnvironmentBlock struct {
	Index int       `json:"index"`
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text"`
	Start int       `json:"start"`
	End   int       `json:"end"`
}

// Document 解析后的文档
type Document struct {
	CleanText       string             `json:"clean_text"`
	Figures         []EnvironmentBlock `json:"figures"`
	Tables          []EnvironmentBlock `json:"tables"`
	GraphicsPath    string             `json:"graphicspath"`
	FigurePackage   FigurePackage      `json:"figure_package"`
	ContainsChinese bool               `json:"contains_chinese"`
}

// Subfile is one standalone TeX file generated for an environment block
type Subfile struct {
	Index    int       `json:"index"`
	Kind     BlockKind `json:"kind"`
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
}

// Stem returns the filename without the .tex extension
func (s Subfile) Stem() string {
	const ext = ".tex"
	if len(s.Filename) > len(ext) && s.Filename[len(s.Filename)-len(ext):] == ext {
		return s.Filename[:len(s.Filename)-len(ext)]
	}
	return s.Filename
}

// CompileResult 编译结果
type CompileResult struct {
	Filename string        `json:"filename"`
	Success  bool          `json:"success"`
	PDFPath  string        `json:"pdf_path,omitempty"`
	PNGPath  string        `json:"png_path,omitempty"`
	Log      string        `json:"log"`
	ErrorMsg string        `json:"error_msg,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ConversionReport 转换结果汇总
type ConversionReport struct {
	InputFile   string        `json:"input_file"`
	OutputTex   string        `json:"output_tex"`
	OutputDocx  string        `json:"output_docx"`
	FigureCount int           `json:"figure_count"`
	TableCount  int           `json:"table_count"`
	Compiled    int           `json:"compiled"`
	Failed      []string      `json:"failed,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrParse        ErrorCode = "PARSE_ERROR"
	ErrCompile      ErrorCode = "COMPILE_ERROR"
	ErrMissingTool  ErrorCode = "MISSING_TOOL"
	ErrModify       ErrorCode = "MODIFY_ERROR"
	ErrConversion   ErrorCode = "CONVERSION_ERROR"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}
