package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

// GetDB returns the shared connection, nil until ConnectDatabaseWithRetry succeeds.
func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

func databaseDSN() string {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, dbPort)

	// Cloud SQL: DB_HOST=/cloudsql/<CONNECTION_NAME> goes through the unix socket of the auth proxy.
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		dbUser,
		dbPassword,
		network,
		address,
		dbName,
	)
}

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

// DB_MAX_OPEN_CONNS (default 10), DB_MAX_IDLE_CONNS (default 5),
// DB_CONN_MAX_LIFETIME_SECONDS (default 300).
func poolSettingsFromEnv() poolSettings {
	return poolSettings{
		maxOpen:     intFromEnv("DB_MAX_OPEN_CONNS", 10),
		maxIdle:     intFromEnv("DB_MAX_IDLE_CONNS", 5),
		maxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
	}
}

func (p poolSettings) apply(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if p.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(p.maxOpen)
	}
	if p.maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(p.maxIdle)
	}
	if p.maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.maxLifetime)
	}
	return nil
}

// connectBackoff doubles from 2s and caps at 30s.
func connectBackoff(attempt int) time.Duration {
	return min(time.Second*time.Duration(1<<min(attempt, 5)), 30*time.Second)
}

// ConnectDatabaseWithRetry opens the run store and sets the global DB.
// maxAttempts <= 0 retries until ctx is done.
func ConnectDatabaseWithRetry(ctx context.Context, maxAttempts int) error {
	dsn := databaseDSN()
	fields := logrus.Fields{"field": "database", "db_name": os.Getenv("DB_NAME")}

	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(mysql.Open(dsn), initConfig())
		if err == nil {
			if err := poolSettingsFromEnv().apply(conn); err != nil {
				LogError(logg, "database.go", "ConnectDatabaseWithRetry", "pool settings", fields, err)
			}
			if err := conn.Use(otelgorm.NewPlugin()); err != nil {
				LogError(logg, "database.go", "ConnectDatabaseWithRetry", "otelgorm plugin", fields, err)
			}
			db = conn
			logg.WithFields(fields).WithField("attempt", attempt).Info("connected to database")
			return nil
		}

		if maxAttempts > 0 && attempt >= maxAttempts {
			return fmt.Errorf("failed to connect database after %d attempts: %w", attempt, err)
		}
		sleep := connectBackoff(attempt)
		logg.WithFields(fields).WithField("attempt", attempt).
			Warnf("failed to connect database: %v; retrying in %s", err, sleep)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: &schema.NamingStrategy{},
	}
}

// gorm's own logger writes through logrus so slow queries land in the JSON log.
func initLog() logger.Interface {
	return logger.New(
		log.New(logg.WriterLevel(logrus.WarnLevel), "", 0),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}
