package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/db"
	"pdv-sorveteria/models"
)

const (
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"

	GatewayPoint     = "point"
	GatewaySimulator = "simulator"
)

// Config holds every setting read from the environment
type Config struct {
	Env  string `envconfig:"ENV" default:"development"`
	Port string `envconfig:"PORT" default:"8080"`
	Shop string `envconfig:"SHOP" default:"Loja"`
	// Location is the IANA zone used for history dates
	Location string `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"postgres"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`

	GoogleCredentials    string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	CatalogSpreadsheetID string `envconfig:"CATALOG_SPREADSHEET_ID"`
	CatalogSheet         string `envconfig:"CATALOG_SHEET" default:"Produtos"`
	HistorySpreadsheetID string `envconfig:"HISTORY_SPREADSHEET_ID"`
	HistorySheet         string `envconfig:"HISTORY_SHEET" default:"Historico"`

	Gateway            string        `envconfig:"GATEWAY" default:"simulator"`
	GatewayBaseURL     string        `envconfig:"GATEWAY_BASE_URL" default:"https://api.mercadopago.com"`
	GatewayAccessToken string        `envconfig:"GATEWAY_ACCESS_TOKEN"`
	GatewayDeviceID    string        `envconfig:"GATEWAY_DEVICE_ID"`
	GatewayCollectorID string        `envconfig:"GATEWAY_COLLECTOR_ID"`
	GatewayPOSID       string        `envconfig:"GATEWAY_POS_ID"`
	GatewayTimeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`

	PollInterval         time.Duration `envconfig:"PAYMENT_POLL_INTERVAL" default:"1s"`
	MinimumCharge        int64         `envconfig:"PAYMENT_MINIMUM_CHARGE" default:"100"`
	CancelOnSwitch       bool          `envconfig:"PAYMENT_CANCEL_ON_SWITCH" default:"true"`
	PromoMethods         []string      `envconfig:"PROMO_METHODS" default:"Pix,Dinheiro"`
	HistoryAppendTimeout time.Duration `envconfig:"HISTORY_APPEND_TIMEOUT" default:"30s"`

	ChromePath       string `envconfig:"CHROME_PATH"`
	ReceiptTitle     string `envconfig:"RECEIPT_TITLE" default:"Sorveteria"`
	ReceiptsFolderID string `envconfig:"RECEIPTS_FOLDER_ID"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads .env outside production and binds the environment into a Config
func Load() (*Config, error) {
	// In production, variables should be set directly
	if os.Getenv("ENV") != "production" {
		// Use Overload to ensure .env values override system environment variables
		envPath := ".env"
		if err := godotenv.Overload(envPath); err != nil {
			log.Debugf("📄 .env file not found at %s, using system environment variables", envPath)
		} else {
			log.Debugf("📄 Loaded environment variables from %s", envPath)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the combinations envconfig cannot express
func (c *Config) Validate() error {
	c.Port = strings.TrimPrefix(c.Port, ":")

	switch c.StoreBackend {
	case BackendPostgres:
		if _, err := c.Database().DSN(); err != nil {
			return err
		}
	case BackendSheets:
		if c.GoogleCredentials == "" {
			return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS environment variable is not set")
		}
		if c.CatalogSpreadsheetID == "" || c.HistorySpreadsheetID == "" {
			return fmt.Errorf("CATALOG_SPREADSHEET_ID and HISTORY_SPREADSHEET_ID must be set for the sheets backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %s or %s)", c.StoreBackend, BackendPostgres, BackendSheets)
	}

	switch c.Gateway {
	case GatewaySimulator:
	case GatewayPoint:
		if c.GatewayAccessToken == "" || c.GatewayDeviceID == "" {
			return fmt.Errorf("GATEWAY_ACCESS_TOKEN and GATEWAY_DEVICE_ID must be set for the point gateway")
		}
	default:
		return fmt.Errorf("unknown GATEWAY %q (want %s or %s)", c.Gateway, GatewayPoint, GatewaySimulator)
	}

	if c.MinimumCharge < 0 {
		return fmt.Errorf("PAYMENT_MINIMUM_CHARGE cannot be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("PAYMENT_POLL_INTERVAL must be positive")
	}
	if _, err := c.PromotionMethods(); err != nil {
		return err
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	if c.ReceiptsFolderID != "" && c.GoogleCredentials == "" {
		return fmt.Errorf("RECEIPTS_FOLDER_ID needs GOOGLE_APPLICATION_CREDENTIALS")
	}
	return nil
}

// Database returns the connection settings
func (c *Config) Database() db.Settings {
	return db.Settings{
		URL:      c.DatabaseURL,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

// PromotionMethods parses PROMO_METHODS
func (c *Config) PromotionMethods() ([]models.PaymentMethod, error) {
	methods := make([]models.PaymentMethod, 0, len(c.PromoMethods))
	for _, raw := range c.PromoMethods {
		m, err := models.ParsePaymentMethod(raw)
		if err != nil {
			return nil, errors.Wrap(err, "PROMO_METHODS")
		}
		if m == models.MethodUnset {
			continue
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// TimeLocation loads TIMEZONE
func (c *Config) TimeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid TIMEZONE %q", c.Location)
	}
	return loc, nil
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logger
func ConfigureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid LOG_LEVEL %q", level)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (want text or json)", format)
	}
	return nil
}
