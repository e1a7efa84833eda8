package db

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// DB holds the database connection
var DB *sqlx.DB

// Settings are the connection variables. URL wins over the individual fields.
type Settings struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the connection string
func (s Settings) DSN() (string, error) {
	if s.URL != "" {
		return s.URL, nil
	}
	if s.Host == "" || s.User == "" || s.Name == "" {
		return "", fmt.Errorf("database connection variables not set. Set DATABASE_URL or DB_HOST, DB_USER, DB_NAME")
	}

	port := s.Port
	if port == "" {
		port = "5432"
	}
	sslmode := s.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		s.Host, port, s.User, s.Password, s.Name, sslmode), nil
}

// Open connects through the pgx driver and pings the server
func Open(ctx context.Context, settings Settings) (*sqlx.DB, error) {
	connStr, err := settings.DSN()
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	// Test the connection
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// InitDB initializes the shared database connection
func InitDB(ctx context.Context, settings Settings) error {
	conn, err := Open(ctx, settings)
	if err != nil {
		return err
	}
	DB = conn
	log.Info("✓ Database connection established successfully")
	return nil
}

// CloseDB closes the database connection
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
