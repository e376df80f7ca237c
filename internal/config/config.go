// Package config holds the service configuration, built once at startup
// from command-line flags and their environment variables.
package config

import (
	"net"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// DefaultAPIURL is the Airtable REST API root.
const DefaultAPIURL = "https://api.airtable.com/v0"

type Config struct {
	Airtable
	HTTP
	Redis
	Log
	Counter
}

type Airtable struct {
	APIKey    string
	BaseID    string
	TableID   string
	APIURL    string
	UserAgent string
	Timeout   time.Duration
}

type HTTP struct {
	Host         string
	Port         string
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis is optional; an empty Addr disables the throttle guard.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Log struct {
	Level  string
	Pretty bool
}

type Counter struct {
	MaxPages int
}

func Load(cmd *cli.Command) *Config {
	return &Config{
		Airtable: Airtable{
			APIKey:    cmd.String("airtable-api-key"),
			BaseID:    cmd.String("airtable-base-id"),
			TableID:   cmd.String("airtable-table-id"),
			APIURL:    cmd.String("airtable-api-url"),
			UserAgent: cmd.String("user-agent"),
			Timeout:   cmd.Duration("upstream-timeout"),
		},
		HTTP: HTTP{
			Host:         cmd.String("http-host"),
			Port:         cmd.String("http-port"),
			IdleTimeout:  cmd.Duration("http-idle-timeout"),
			ReadTimeout:  cmd.Duration("http-read-timeout"),
			WriteTimeout: cmd.Duration("http-write-timeout"),
		},
		Redis: Redis{
			Addr:     cmd.String("redis-url"),
			Password: cmd.String("redis-password"),
			DB:       int(cmd.Int("redis-db")),
		},
		Log: Log{
			Level:  cmd.String("log-level"),
			Pretty: cmd.Bool("log-pretty"),
		},
		Counter: Counter{
			MaxPages: int(cmd.Int("max-pages")),
		},
	}
}

// Endpoint returns the table URL: <api-url>/<base-id>/<table-id>.
func (a Airtable) Endpoint() string {
	apiURL := strings.TrimRight(a.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return apiURL + "/" + a.BaseID + "/" + a.TableID
}

// Missing lists the environment variables of unset Airtable settings.
func (a Airtable) Missing() []string {
	var missing []string
	if a.APIKey == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if a.BaseID == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if a.TableID == "" {
		missing = append(missing, "AIRTABLE_TABLE_ID")
	}
	return missing
}

// Addr returns the listen address.
func (h HTTP) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Enabled reports whether a Redis address is configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}
