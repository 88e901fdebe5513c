package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// GraphConfig is optional: with a tenant set, templates are fetched from
// and generated documents archived to a SharePoint drive.
type GraphConfig struct {
	TenantID        string
	ClientID        string `validate:"required_with=TenantID"`
	SiteID          string
	DriveID         string `validate:"required_with=TenantID"`
	TemplateFolder  string
	ArchiveFolder   string
	PrivateKeyPath  string `validate:"required_with=TenantID"`
	CertificatePath string `validate:"required_with=TenantID"`
}

func (g GraphConfig) Enabled() bool {
	return g.TenantID != ""
}

type ApiConfig struct {
	Port        string `validate:"required,numeric"`
	TemplateDir string
	RulesPath   string
	SchemaDir   string

	Pdftotext string
	Pdftoppm  string
	Tesseract string
	OCRLang   string `validate:"required"`
	OCRDPI    int    `validate:"min=72,max=1200"`

	MinYear          int   `validate:"min=1990"`
	FallbackAbsences int   `validate:"min=0,max=31"`
	MaxUploadMB      int64 `validate:"min=1"`

	LLMAPIKey  string
	LLMBaseURL string        `validate:"omitempty,url"`
	LLMModel   string        `validate:"required"`
	LLMTimeout time.Duration `validate:"min=1s"`

	Graph GraphConfig

	Logger *slog.Logger `validate:"-"`
	Client *http.Client `validate:"-"`
}

// Load reads .env when ENV=local, then builds the config from the
// environment.
func Load(logger *slog.Logger) (*ApiConfig, error) {
	if os.Getenv("ENV") == "local" {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	return NewApiConfig(logger)
}

func NewApiConfig(logger *slog.Logger) (*ApiConfig, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s environment variable is not a number: %q", key, v))
			return def
		}
		return n
	}

	cfg := &ApiConfig{
		Port:        getenv("PORT", "8080"),
		TemplateDir: os.Getenv("TEMPLATE_DIR"),
		RulesPath:   os.Getenv("RULES_PATH"),
		SchemaDir:   os.Getenv("SCHEMA_DIR"),

		Pdftotext: getenv("PDFTOTEXT_PATH", "pdftotext"),
		Pdftoppm:  getenv("PDFTOPPM_PATH", "pdftoppm"),
		Tesseract: getenv("TESSERACT_PATH", "tesseract"),
		OCRLang:   getenv("OCR_LANG", "spa"),
		OCRDPI:    intVar("OCR_DPI", 300),

		MinYear:          intVar("MIN_YEAR", 2015),
		FallbackAbsences: intVar("FALLBACK_ABSENCES", 2),
		MaxUploadMB:      int64(intVar("MAX_UPLOAD_MB", 50)),

		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMBaseURL: os.Getenv("LLM_BASE_URL"),
		LLMModel:   getenv("LLM_MODEL", "gpt-4o-mini"),

		Graph: GraphConfig{
			TenantID:        os.Getenv("GRAPH_TENANT_ID"),
			ClientID:        os.Getenv("GRAPH_CLIENT_ID"),
			SiteID:          os.Getenv("GRAPH_SITE_ID"),
			DriveID:         os.Getenv("GRAPH_DRIVE_ID"),
			TemplateFolder:  os.Getenv("GRAPH_TEMPLATE_FOLDER"),
			ArchiveFolder:   os.Getenv("GRAPH_ARCHIVE_FOLDER"),
			PrivateKeyPath:  os.Getenv("PRIVATE_KEY_PATH"),
			CertificatePath: os.Getenv("CERTIFICATE_PATH"),
		},

		Logger: logger,
		Client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	timeout, err := time.ParseDuration(getenv("LLM_TIMEOUT", "60s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT environment variable is not a duration: %w", err))
	}
	cfg.LLMTimeout = timeout

	if len(errs) > 0 {
		return nil, errs[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (cfg *ApiConfig) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.TemplateDir == "" && cfg.Graph.TemplateFolder == "" {
		return fmt.Errorf("TEMPLATE_DIR environment variable not set")
	}
	if cfg.Graph.TemplateFolder != "" && !cfg.Graph.Enabled() {
		return fmt.Errorf("GRAPH_TEMPLATE_FOLDER needs GRAPH_TENANT_ID")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
