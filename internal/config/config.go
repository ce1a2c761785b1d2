package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Empty DatabaseURL runs the service on the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	// Empty RabbitMQURL logs activity events instead of publishing them.
	RabbitMQURL string `env:"RABBITMQ_URL"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"immigration-crm"`

	CaseDeskURL    string `env:"CASEDESK_URL"`
	CaseDeskAPIKey string `env:"CASEDESK_API_KEY"`

	MailHost string `env:"MAIL_HOST"`
	MailPort int    `env:"MAIL_PORT" envDefault:"587"`
	MailUser string `env:"MAIL_USER"`
	MailPass string `env:"MAIL_PASS"`
	MailFrom string `env:"MAIL_FROM" envDefault:"no-reply@immigration-crm.local"`

	ConsultationFee  int64    `env:"CONSULTATION_FEE" envDefault:"50000"`
	CORSOrigins      []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ContactRateLimit int      `env:"CONTACT_RATE_LIMIT" envDefault:"10"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, using environment variables")
	}
	return Parse()
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ConsultationFee <= 0 {
		return fmt.Errorf("CONSULTATION_FEE must be positive, got %d", c.ConsultationFee)
	}
	if c.ContactRateLimit <= 0 {
		return fmt.Errorf("CONTACT_RATE_LIMIT must be positive, got %d", c.ContactRateLimit)
	}
	for i, o := range c.CORSOrigins {
		c.CORSOrigins[i] = strings.TrimSpace(o)
	}
	return nil
}

func (c *Config) MailEnabled() bool {
	return c.MailHost != ""
}
