package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Config describes the MySQL/MariaDB server behind the WordPress site.
type Config struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Name     string            `mapstructure:"name"`
	Params   map[string]string `mapstructure:"params"`
	Timeout  time.Duration     `mapstructure:"timeout"`
}

// DefaultConfig matches the docker-compose database of the test site.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     3306,
		User:     "exampleuser",
		Password: "examplepass",
		Name:     "exampledb",
		Timeout:  10 * time.Second,
	}
}

// DSN renders the go-sql-driver connection string.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Name
	mc.Timeout = c.Timeout
	if len(c.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// String is the DSN with the password masked, for logs.
func (c Config) String() string {
	masked := c
	if masked.Password != "" {
		masked.Password = "****"
	}
	return masked.DSN()
}

// Open connects and pings. The handle holds at most one connection; callers
// close it when their operation is done.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}
