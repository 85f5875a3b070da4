// Package config provides configuration management for the tex2docx converter.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tex2docx/internal/files"
	"tex2docx/internal/logger"
	"tex2docx/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "tex2docx.yaml"
	// EnvDebug toggles debug mode when set to a truthy value
	EnvDebug = "TEX2DOCX_DEBUG"
	// EnvConcurrency overrides the compile worker cap
	EnvConcurrency = "TEX2DOCX_CONCURRENCY"
	// EnvCompileTimeout overrides the per-file compile timeout, e.g. "5m"
	EnvCompileTimeout = "TEX2DOCX_COMPILE_TIMEOUT"
	// DefaultConcurrency is the default upper bound on parallel xelatex runs
	DefaultConcurrency = 4
	// DefaultCompileTimeout is the default per-file compile timeout
	DefaultCompileTimeout = 5 * time.Minute
	// TempDirName is the working directory created next to the input file
	TempDirName = "temp_subtexfile_dir"
	// ModifiedSuffix is appended to the input stem for the modified TeX file
	ModifiedSuffix = "_modified"
)

// Manager loads, validates and resolves conversion configuration
type Manager struct {
	configPath string
	config     *types.Config
}

// NewManager creates a Manager reading from the specified config path.
// If configPath is empty, it uses DefaultConfigFileName in the current
// directory.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = DefaultConfigFileName
	}
	return &Manager{
		configPath: configPath,
		config:     defaultConfig(),
	}
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	return &types.Config{
		FixTable:       true,
		Concurrency:    DefaultConcurrency,
		CompileTimeout: types.Duration(DefaultCompileTimeout),
	}
}

// Load loads configuration from the config file and layers .env plus
// environment overrides on top. A missing config file is not an error,
// defaults are used.
func (m *Manager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = defaultConfig()
		} else {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
	} else {
		config := defaultConfig()
		if err := yaml.Unmarshal(data, config); err != nil {
			// Invalid YAML, use defaults
			logger.Warn("invalid config file format, using defaults",
				logger.String("path", m.configPath), logger.Err(err))
			m.config = defaultConfig()
		} else {
			logger.Info("configuration loaded", logger.String("path", m.configPath))
			m.config = config
		}
	}

	m.applyEnvOverrides()
	return nil
}

// applyEnvOverrides layers .env values and process environment
// variables over the file configuration
func (m *Manager) applyEnvOverrides() {
	// A .env next to the working directory is optional
	_ = godotenv.Load()

	if v := os.Getenv(EnvDebug); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			m.config.Debug = debug
		}
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m.config.Concurrency = n
		}
	}
	if v := os.Getenv(EnvCompileTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			m.config.CompileTimeout = types.Duration(d)
		}
	}
}

// Save writes the current configuration to the config file
func (m *Manager) Save() error {
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// Resolve fills in derived paths, discovers default companion files
// and validates the configuration. Call after Load and after CLI flags
// have been applied.
func (m *Manager) Resolve() error {
	cfg := m.config

	if cfg.InputTexFile == "" {
		return types.NewAppError(types.ErrConfig, "input TeX file is required", nil)
	}
	abs, err := filepath.Abs(cfg.InputTexFile)
	if err != nil {
		return types.NewAppError(types.ErrConfig, "failed to resolve input path", err)
	}
	cfg.InputTexFile = abs

	if !files.Exists(cfg.InputTexFile) {
		return types.NewAppErrorWithDetails(types.ErrFileNotFound,
			"input TeX file not found", cfg.InputTexFile, nil)
	}

	parent := filepath.Dir(cfg.InputTexFile)
	stem := strings.TrimSuffix(filepath.Base(cfg.InputTexFile), filepath.Ext(cfg.InputTexFile))

	if cfg.OutputDocxFile == "" {
		cfg.OutputDocxFile = filepath.Join(parent, stem+".docx")
	} else {
		if cfg.OutputDocxFile, err = filepath.Abs(cfg.OutputDocxFile); err != nil {
			return types.NewAppError(types.ErrConfig, "failed to resolve output path", err)
		}
	}

	cfg.OutputTexFile = filepath.Join(parent, stem+ModifiedSuffix+".tex")
	cfg.TempDir = filepath.Join(parent, TempDirName)

	// Companion paths may be relative to the invocation directory, but
	// Pandoc later runs inside the TeX file's parent, so they must be
	// absolute before that switch.
	for _, p := range []*string{&cfg.BibFile, &cfg.CSLFile, &cfg.ReferenceDocFile, &cfg.LuaFilterFile} {
		if *p == "" {
			continue
		}
		if *p, err = filepath.Abs(*p); err != nil {
			return types.NewAppError(types.ErrConfig, "failed to resolve companion file path", err)
		}
	}

	// Discover a bibliography next to the input when none was given
	if cfg.BibFile == "" {
		if bib, ok := files.FindFirstWithExt(parent, ".bib"); ok {
			cfg.BibFile = bib
			logger.Info("discovered bibliography", logger.String("bibfile", bib))
		}
	}

	// A missing bibliography only disables citation processing
	if cfg.BibFile != "" && !files.Exists(cfg.BibFile) {
		logger.Warn("bibliography file not found, citations disabled",
			logger.String("bibfile", cfg.BibFile))
		cfg.BibFile = ""
	}
	if cfg.CSLFile != "" && !files.Exists(cfg.CSLFile) {
		return types.NewAppErrorWithDetails(types.ErrConfig, "CSL file not found", cfg.CSLFile, nil)
	}
	if cfg.ReferenceDocFile != "" && !files.Exists(cfg.ReferenceDocFile) {
		return types.NewAppErrorWithDetails(types.ErrConfig, "reference document not found", cfg.ReferenceDocFile, nil)
	}
	if cfg.LuaFilterFile != "" && !files.Exists(cfg.LuaFilterFile) {
		return types.NewAppErrorWithDetails(types.ErrConfig, "Lua filter not found", cfg.LuaFilterFile, nil)
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = types.Duration(DefaultCompileTimeout)
	}

	m.logPaths()
	return nil
}

// logPaths records the resolved configuration for debugging
func (m *Manager) logPaths() {
	cfg := m.config
	logger.Debug("resolved configuration",
		logger.String("input_texfile", cfg.InputTexFile),
		logger.String("output_docxfile", cfg.OutputDocxFile),
		logger.String("output_texfile", cfg.OutputTexFile),
		logger.String("temp_dir", cfg.TempDir),
		logger.String("bibfile", cfg.BibFile),
		logger.String("cslfile", cfg.CSLFile),
		logger.String("reference_docfile", cfg.ReferenceDocFile),
		logger.String("lua_filterfile", cfg.LuaFilterFile),
		logger.Bool("fix_table", cfg.FixTable),
		logger.Bool("debug", cfg.Debug),
		logger.Int("concurrency", cfg.Concurrency),
		logger.Duration("compile_timeout", cfg.CompileTimeout.Std()))
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration
func (m *Manager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
