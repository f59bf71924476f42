package config

import (
	"log"
	"os"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "FILING_MONITOR_CONFIG"
	dbPathEnv         = "FILING_MONITOR_DB_PATH"
	dataDirEnv        = "FILING_MONITOR_DATA_DIR"
	logLevelEnv       = "FILING_MONITOR_LOG_LEVEL"
	userAgentEnv      = "FILING_MONITOR_USER_AGENT"
	analysisKeyEnv    = "ANALYSIS_API_KEY"
	analysisURLEnv    = "ANALYSIS_ENDPOINT"
	defaultMaxDocSize = "100MB"
)

// Config holds high-level settings required across the application.
type Config struct {
	Scraper    ScraperConfig    `yaml:"scraper"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ScraperConfig drives discovery, direct fetch and page parsing.
type ScraperConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	FilingsPath       string        `yaml:"filingsPath"`
	UserAgent         string        `yaml:"userAgent"`
	RobotsPath        string        `yaml:"robotsPath"`
	DelayMin          time.Duration `yaml:"delayMin"`
	DelayMax          time.Duration `yaml:"delayMax"`
	Lookback          string        `yaml:"lookback"`
	DiscoveryRetries  int           `yaml:"discoveryRetries"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
	SettleDelay       time.Duration `yaml:"settleDelay"`
	MaxRetries        int           `yaml:"maxRetries"`
	BackoffBase       time.Duration `yaml:"backoffBase"`
	BackoffMax        time.Duration `yaml:"backoffMax"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	EnrichDetails     *bool         `yaml:"enrichDetails"`
	ZeroRunThreshold  int           `yaml:"zeroRunThreshold"`
	Filters           FilterConfig  `yaml:"filters"`
}

// FilterConfig holds include/exclude rules applied after validation.
type FilterConfig struct {
	TypeInclude []string `yaml:"typeInclude"`
	TypeExclude []string `yaml:"typeExclude"`
	Applicants  []string `yaml:"applicants"`
	Proceedings []string `yaml:"proceedings"`
}

// PipelineConfig describes storage locations and download limits.
type PipelineConfig struct {
	DataDir         string        `yaml:"dataDir"`
	FilingsDir      string        `yaml:"filingsDir"`
	DBPath          string        `yaml:"dbPath"`
	MaxRetryCount   int           `yaml:"maxRetryCount"`
	DownloadTimeout time.Duration `yaml:"downloadTimeout"`
	ChunkSize       int           `yaml:"chunkSize"`
	MaxDocumentSize string        `yaml:"maxDocumentSize"`
}

// MaxDocumentBytes parses MaxDocumentSize, falling back to 100MB.
func (p PipelineConfig) MaxDocumentBytes() int64 {
	if size, err := units.FromHumanSize(p.MaxDocumentSize); err == nil && size > 0 {
		return size
	}
	size, _ := units.FromHumanSize(defaultMaxDocSize)
	return size
}

// ExtractionConfig exposes page guards and quality-gate thresholds.
type ExtractionConfig struct {
	MaxPages           int           `yaml:"maxPages"`
	MaxPagesForOCR     int           `yaml:"maxPagesForOcr"`
	MinCharsFloor      int           `yaml:"minCharsFloor"`
	MinCharsPerPage    int           `yaml:"minCharsPerPage"`
	OCRMinCharsFloor   int           `yaml:"ocrMinCharsFloor"`
	OCRMinCharsPerPage int           `yaml:"ocrMinCharsPerPage"`
	GarbleRatio        float64       `yaml:"garbleRatio"`
	OCRGarbleRatio     float64       `yaml:"ocrGarbleRatio"`
	RepetitionLimit    int           `yaml:"repetitionLimit"`
	RepetitionWindow   int           `yaml:"repetitionWindow"`
	OCRDPI             int           `yaml:"ocrDpi"`
	OCRLanguage        string        `yaml:"ocrLanguage"`
	TesseractCmd       string        `yaml:"tesseractCmd"`
	OCRTimeout         time.Duration `yaml:"ocrTimeout"`
}

// AnalysisConfig defines how to contact the analysis collaborator.
type AnalysisConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LoggingConfig selects level and optional rotating file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
}

// LookbackPeriod maps the lookback name to the listing's p= query value.
func (s ScraperConfig) LookbackPeriod() int {
	switch s.Lookback {
	case "day":
		return 1
	case "month":
		return 3
	default:
		return 2
	}
}

// EnrichEnabled reports whether detail pages should be visited for filings without documents.
func (s ScraperConfig) EnrichEnabled() bool {
	return s.EnrichDetails == nil || *s.EnrichDetails
}

// Load reads the YAML file named by FILING_MONITOR_CONFIG (if present) and
// applies environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit file path; an empty path uses defaults.
func LoadFile(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, err
	}
	return fileCfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dbPathEnv); v != "" {
		c.Pipeline.DBPath = v
	}
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Pipeline.DataDir = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(userAgentEnv); v != "" {
		c.Scraper.UserAgent = v
	}
	if v := os.Getenv(analysisKeyEnv); v != "" {
		c.Analysis.APIKey = v
	}
	if v := os.Getenv(analysisURLEnv); v != "" {
		c.Analysis.Endpoint = v
	}
}

func mergeConfig(base, override Config) Config {
	base.Scraper = mergeScraper(base.Scraper, override.Scraper)
	base.Pipeline = mergePipeline(base.Pipeline, override.Pipeline)
	base.Extraction = mergeExtraction(base.Extraction, override.Extraction)

	if override.Analysis.Endpoint != "" {
		base.Analysis.Endpoint = override.Analysis.Endpoint
	}
	if override.Analysis.APIKey != "" {
		base.Analysis.APIKey = override.Analysis.APIKey
	}
	if override.Analysis.Model != "" {
		base.Analysis.Model = override.Analysis.Model
	}
	if override.Analysis.SystemPrompt != "" {
		base.Analysis.SystemPrompt = override.Analysis.SystemPrompt
	}
	if override.Analysis.Timeout > 0 {
		base.Analysis.Timeout = override.Analysis.Timeout
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.MaxSizeMB > 0 {
		base.Logging.MaxSizeMB = override.Logging.MaxSizeMB
	}
	if override.Logging.MaxBackups > 0 {
		base.Logging.MaxBackups = override.Logging.MaxBackups
	}

	return base
}

func mergeScraper(base, o ScraperConfig) ScraperConfig {
	if o.BaseURL != "" {
		base.BaseURL = o.BaseURL
	}
	if o.FilingsPath != "" {
		base.FilingsPath = o.FilingsPath
	}
	if o.UserAgent != "" {
		base.UserAgent = o.UserAgent
	}
	if o.RobotsPath != "" {
		base.RobotsPath = o.RobotsPath
	}
	if o.DelayMin > 0 {
		base.DelayMin = o.DelayMin
	}
	if o.DelayMax > 0 {
		base.DelayMax = o.DelayMax
	}
	if o.Lookback != "" {
		base.Lookback = o.Lookback
	}
	if o.DiscoveryRetries > 0 {
		base.DiscoveryRetries = o.DiscoveryRetries
	}
	if o.NavigationTimeout > 0 {
		base.NavigationTimeout = o.NavigationTimeout
	}
	if o.SettleDelay > 0 {
		base.SettleDelay = o.SettleDelay
	}
	if o.MaxRetries > 0 {
		base.MaxRetries = o.MaxRetries
	}
	if o.BackoffBase > 0 {
		base.BackoffBase = o.BackoffBase
	}
	if o.BackoffMax > 0 {
		base.BackoffMax = o.BackoffMax
	}
	if o.RequestsPerSecond > 0 {
		base.RequestsPerSecond = o.RequestsPerSecond
	}
	if o.Burst > 0 {
		base.Burst = o.Burst
	}
	if o.EnrichDetails != nil {
		base.EnrichDetails = o.EnrichDetails
	}
	if o.ZeroRunThreshold > 0 {
		base.ZeroRunThreshold = o.ZeroRunThreshold
	}
	if len(o.Filters.TypeInclude) > 0 {
		base.Filters.TypeInclude = o.Filters.TypeInclude
	}
	if len(o.Filters.TypeExclude) > 0 {
		base.Filters.TypeExclude = o.Filters.TypeExclude
	}
	if len(o.Filters.Applicants) > 0 {
		base.Filters.Applicants = o.Filters.Applicants
	}
	if len(o.Filters.Proceedings) > 0 {
		base.Filters.Proceedings = o.Filters.Proceedings
	}
	return base
}

func mergePipeline(base, o PipelineConfig) PipelineConfig {
	if o.DataDir != "" {
		base.DataDir = o.DataDir
	}
	if o.FilingsDir != "" {
		base.FilingsDir = o.FilingsDir
	}
	if o.DBPath != "" {
		base.DBPath = o.DBPath
	}
	if o.MaxRetryCount > 0 {
		base.MaxRetryCount = o.MaxRetryCount
	}
	if o.DownloadTimeout > 0 {
		base.DownloadTimeout = o.DownloadTimeout
	}
	if o.ChunkSize > 0 {
		base.ChunkSize = o.ChunkSize
	}
	if o.MaxDocumentSize != "" {
		base.MaxDocumentSize = o.MaxDocumentSize
	}
	return base
}

func mergeExtraction(base, o ExtractionConfig) ExtractionConfig {
	if o.MaxPages > 0 {
		base.MaxPages = o.MaxPages
	}
	if o.MaxPagesForOCR > 0 {
		base.MaxPagesForOCR = o.MaxPagesForOCR
	}
	if o.MinCharsFloor > 0 {
		base.MinCharsFloor = o.MinCharsFloor
	}
	if o.MinCharsPerPage > 0 {
		base.MinCharsPerPage = o.MinCharsPerPage
	}
	if o.OCRMinCharsFloor > 0 {
		base.OCRMinCharsFloor = o.OCRMinCharsFloor
	}
	if o.OCRMinCharsPerPage > 0 {
		base.OCRMinCharsPerPage = o.OCRMinCharsPerPage
	}
	if o.GarbleRatio > 0 {
		base.GarbleRatio = o.GarbleRatio
	}
	if o.OCRGarbleRatio > 0 {
		base.OCRGarbleRatio = o.OCRGarbleRatio
	}
	if o.RepetitionLimit > 0 {
		base.RepetitionLimit = o.RepetitionLimit
	}
	if o.RepetitionWindow > 0 {
		base.RepetitionWindow = o.RepetitionWindow
	}
	if o.OCRDPI > 0 {
		base.OCRDPI = o.OCRDPI
	}
	if o.OCRLanguage != "" {
		base.OCRLanguage = o.OCRLanguage
	}
	if o.TesseractCmd != "" {
		base.TesseractCmd = o.TesseractCmd
	}
	if o.OCRTimeout > 0 {
		base.OCRTimeout = o.OCRTimeout
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Scraper: ScraperConfig{
			BaseURL:           "https://apps.cer-rec.gc.ca/REGDOCS",
			FilingsPath:       "/Search/RecentFilings",
			UserAgent:         "CER-Filing-Monitor/1.0",
			RobotsPath:        "/robots.txt",
			DelayMin:          time.Second,
			DelayMax:          3 * time.Second,
			Lookback:          "week",
			DiscoveryRetries:  3,
			NavigationTimeout: 30 * time.Second,
			SettleDelay:       2 * time.Second,
			MaxRetries:        3,
			BackoffBase:       2 * time.Second,
			BackoffMax:        30 * time.Second,
			RequestsPerSecond: 1,
			Burst:             1,
			ZeroRunThreshold:  3,
		},
		Pipeline: PipelineConfig{
			DataDir:         "data",
			FilingsDir:      "data/filings",
			DBPath:          "data/state.db",
			MaxRetryCount:   3,
			DownloadTimeout: 120 * time.Second,
			ChunkSize:       8192,
			MaxDocumentSize: defaultMaxDocSize,
		},
		Extraction: ExtractionConfig{
			MaxPages:           300,
			MaxPagesForOCR:     50,
			MinCharsFloor:      50,
			MinCharsPerPage:    50,
			OCRMinCharsFloor:   50,
			OCRMinCharsPerPage: 25,
			GarbleRatio:        0.05,
			OCRGarbleRatio:     0.10,
			RepetitionLimit:    200,
			RepetitionWindow:   10000,
			OCRDPI:             300,
			OCRLanguage:        "eng",
			TesseractCmd:       "tesseract",
			OCRTimeout:         10 * time.Minute,
		},
		Analysis: AnalysisConfig{
			Model:   "gpt-4o-mini",
			Timeout: 300 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}
