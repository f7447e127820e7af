package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Pathstore connection
	PathstoreURL    string `yaml:"pathstore_url"`
	PathstoreAPIKey string `yaml:"pathstore_api_key"`

	// Worker pool
	WorkerCount        int           `yaml:"worker_count"`
	MaxQueueSize       int           `yaml:"max_queue_size"`
	MaxConcurrentStore int           `yaml:"max_concurrent_store"`
	JobTTL             time.Duration `yaml:"job_ttl"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Parsing defaults
	DefaultTool   string `yaml:"default_tool"`
	DetectScanned bool   `yaml:"detect_scanned"`
	ExtractImages bool   `yaml:"extract_images"`
	OCRLanguage   string `yaml:"ocr_language"`

	// Scanned PDF classifier
	ScannedThreshold   float64 `yaml:"scanned_pdf_threshold"`
	ScannedSamplePages int     `yaml:"scanned_sample_pages"`
	MinTextChars       int     `yaml:"min_text_chars"`

	// Rendering
	RenderDPI          int     `yaml:"pdf_render_dpi"`
	VisualizationScale float64 `yaml:"visualization_scale"`

	// Images
	MinImageWidth    int `yaml:"min_image_width"`
	MinImageHeight   int `yaml:"min_image_height"`
	MaxImagesPerPage int `yaml:"max_images_per_page"`

	MaxParallelPages int `yaml:"max_parallel_pages"`

	// Downloads
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	DownloadRetries int           `yaml:"download_retries"`

	// Chunking
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Engine services and binaries
	DoclingURL         string        `yaml:"docling_url"`
	UnstructuredURL    string        `yaml:"unstructured_url"`
	UnstructuredAPIKey string        `yaml:"unstructured_api_key"`
	EngineHTTPTimeout  time.Duration `yaml:"engine_http_timeout"`
	TesseractPath      string        `yaml:"tesseract_path"`
	EasyOCRPath        string        `yaml:"easyocr_path"`
	DisabledEngines    []string      `yaml:"disabled_engines"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:     "8090",
		LogLevel: "info",

		PathstoreURL: "http://localhost:8080",

		WorkerCount:        4,
		MaxQueueSize:       100,
		MaxConcurrentStore: 10,
		JobTTL:             time.Hour,

		MaxUploadBytes: 104857600, // 100MB

		DetectScanned: true,
		OCRLanguage:   "eng",

		ScannedThreshold:   0.7,
		ScannedSamplePages: 5,
		MinTextChars:       50,

		RenderDPI:          300,
		VisualizationScale: 2.0,

		MinImageWidth:    50,
		MinImageHeight:   50,
		MaxImagesPerPage: 20,

		MaxParallelPages: 4,

		DownloadTimeout: 30 * time.Second,
		DownloadRetries: 2,

		ChunkSize:    900,
		ChunkOverlap: 120,

		EngineHTTPTimeout: 5 * time.Minute,
		TesseractPath:     "tesseract",
		EasyOCRPath:       "easyocr",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by DOCPARSE_CONFIG, and the environment, in that order.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("DOCPARSE_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.APIKey = envOr("DOCPARSE_API_KEY", cfg.APIKey)

	cfg.PathstoreURL = envOr("PATHSTORE_URL", cfg.PathstoreURL)
	cfg.PathstoreAPIKey = envOr("PATHSTORE_API_KEY", cfg.PathstoreAPIKey)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxConcurrentStore = envInt("MAX_CONCURRENT_STORE", cfg.MaxConcurrentStore)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)

	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.DefaultTool = envOr("DEFAULT_TOOL", cfg.DefaultTool)
	cfg.DetectScanned = envBool("DETECT_SCANNED", cfg.DetectScanned)
	cfg.ExtractImages = envBool("EXTRACT_IMAGES", cfg.ExtractImages)
	cfg.OCRLanguage = envOr("OCR_LANGUAGE", cfg.OCRLanguage)

	cfg.ScannedThreshold = envFloat("SCANNED_PDF_THRESHOLD", cfg.ScannedThreshold)
	cfg.ScannedSamplePages = envInt("SCANNED_SAMPLE_PAGES", cfg.ScannedSamplePages)
	cfg.MinTextChars = envInt("MIN_TEXT_CHARS", cfg.MinTextChars)

	cfg.RenderDPI = envInt("PDF_RENDER_DPI", cfg.RenderDPI)
	cfg.VisualizationScale = envFloat("VISUALIZATION_SCALE", cfg.VisualizationScale)

	cfg.MinImageWidth = envInt("MIN_IMAGE_WIDTH", cfg.MinImageWidth)
	cfg.MinImageHeight = envInt("MIN_IMAGE_HEIGHT", cfg.MinImageHeight)
	cfg.MaxImagesPerPage = envInt("MAX_IMAGES_PER_PAGE", cfg.MaxImagesPerPage)

	cfg.MaxParallelPages = envInt("MAX_PARALLEL_PAGES", cfg.MaxParallelPages)

	cfg.DownloadTimeout = envDuration("DOWNLOAD_TIMEOUT", cfg.DownloadTimeout)
	cfg.DownloadRetries = envInt("DOWNLOAD_RETRIES", cfg.DownloadRetries)

	cfg.ChunkSize = envInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = envInt("CHUNK_OVERLAP", cfg.ChunkOverlap)

	cfg.DoclingURL = envOr("DOCLING_URL", cfg.DoclingURL)
	cfg.UnstructuredURL = envOr("UNSTRUCTURED_URL", cfg.UnstructuredURL)
	cfg.UnstructuredAPIKey = envOr("UNSTRUCTURED_API_KEY", cfg.UnstructuredAPIKey)
	cfg.EngineHTTPTimeout = envDuration("ENGINE_HTTP_TIMEOUT", cfg.EngineHTTPTimeout)
	cfg.TesseractPath = envOr("TESSERACT_PATH", cfg.TesseractPath)
	cfg.EasyOCRPath = envOr("EASYOCR_PATH", cfg.EasyOCRPath)
	cfg.DisabledEngines = envList("DISABLED_ENGINES", cfg.DisabledEngines)

	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges shared by the CLI and the server.
func (c Config) Validate() error {
	if c.ScannedThreshold < 0 || c.ScannedThreshold > 1 {
		return fmt.Errorf("SCANNED_PDF_THRESHOLD must be within [0,1], got %v", c.ScannedThreshold)
	}
	if c.ScannedSamplePages <= 0 {
		return fmt.Errorf("SCANNED_SAMPLE_PAGES must be positive")
	}
	if c.MinTextChars < 0 {
		return fmt.Errorf("MIN_TEXT_CHARS must not be negative")
	}
	if c.RenderDPI <= 0 {
		return fmt.Errorf("PDF_RENDER_DPI must be positive")
	}
	if c.VisualizationScale <= 0 {
		return fmt.Errorf("VISUALIZATION_SCALE must be positive")
	}
	if c.MaxParallelPages <= 0 {
		return fmt.Errorf("MAX_PARALLEL_PAGES must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be within [0,CHUNK_SIZE)")
	}
	if c.DownloadRetries < 0 {
		return fmt.Errorf("DOWNLOAD_RETRIES must not be negative")
	}
	return nil
}

// ValidateServer additionally checks what the HTTP service needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("DOCPARSE_API_KEY is required")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be positive")
	}
	if c.MaxConcurrentStore <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_STORE must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
