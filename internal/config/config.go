package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	MaxInFlight    int
}

type Auth struct {
	Secret       string        // HS256 signing secret shared by the services
	SystemIssuer string        // issuer claim for system-issued tokens
	TokenTTL     time.Duration // lifetime of a system token
}

type Resolution struct {
	ProjectServiceURL string        // base URL of the project service
	TaskServiceURL    string        // base URL of the task service
	Timeout           time.Duration // bound on one recipient lookup call
}

type Sweep struct {
	Interval     time.Duration // cadence of the deadline sweep
	StartDelay   time.Duration // wait before the first run
	ApproachDays int           // due within this many days counts as approaching
}

type Config struct {
	AppName    string
	HTTPPort   string // :8080
	DB         DB
	NSQ        NSQ
	Auth       Auth
	Resolution Resolution
	Sweep      Sweep
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// FromEnv builds a Config for one service. httpPortDef is the service's
// default listen port; everything else is shared across the fleet.
func FromEnv(appName, httpPortDef string) Config {
	return Config{
		AppName:  getenv("APP_NAME", appName),
		HTTPPort: getenv("HTTP_PORT", httpPortDef),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "taskman"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			MaxInFlight:    getenvInt("NSQ_MAX_IN_FLIGHT", 200),
		},
		Auth: Auth{
			Secret:       getenv("AUTH_SECRET", "dev-secret"),
			SystemIssuer: getenv("AUTH_SYSTEM_ISSUER", "taskman-system"),
			TokenTTL:     getenvDuration("AUTH_TOKEN_TTL", 10*time.Minute),
		},
		Resolution: Resolution{
			ProjectServiceURL: getenv("PROJECT_SERVICE_URL", "http://projectd:8082"),
			TaskServiceURL:    getenv("TASK_SERVICE_URL", "http://taskd:8081"),
			Timeout:           getenvDuration("RESOLUTION_TIMEOUT", 5*time.Second),
		},
		Sweep: Sweep{
			Interval:     getenvDuration("SWEEP_INTERVAL", 24*time.Hour),
			StartDelay:   getenvDuration("SWEEP_START_DELAY", time.Minute),
			ApproachDays: getenvInt("SWEEP_APPROACH_DAYS", 3),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
