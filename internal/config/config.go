package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// AccessTokenTTL is fixed for compatibility with existing clients.
const AccessTokenTTL = 900 * time.Second

type Config struct {
	Port      string
	Env       string
	LogLevel  string
	DBAdapter string

	SQLiteFile    string
	MigrationsDir string

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// MySQL connection settings
	MySQLDSN      string
	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDB       string

	JwtSecret           string
	JwtIssuer           string
	RefreshTokenTTL     time.Duration
	RotateRefreshTokens bool

	RedisURL           string
	LoginMaxFailures   int
	LoginFailureWindow time.Duration

	AMQPURL       string
	AuditExchange string
	AuditBuffer   int

	RateLimitPerMinute   int
	CORSAllowedOrigins   []string
	SessionSweepInterval time.Duration

	// TrustedProxies lists the peers whose forwarding headers are believed.
	// Empty means the socket peer is always the client.
	TrustedProxies []netip.Prefix
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

// ParseTrustedProxies reads a comma-separated list of CIDR prefixes or bare
// addresses.
func ParseTrustedProxies(v string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", part, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", part, err)
		}
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

// BuildMySQLDSN returns MYSQL_DSN or assembles a go-sql-driver DSN from parts.
func (c *Config) BuildMySQLDSN() (string, error) {
	if c.MySQLDSN != "" {
		return c.MySQLDSN, nil
	}
	if c.MySQLHost == "" {
		return "", errors.New("MYSQL_HOST or MYSQL_DSN must be set")
	}
	if c.MySQLUser == "" {
		return "", errors.New("MYSQL_USER must be set")
	}
	if c.MySQLDB == "" {
		return "", errors.New("MYSQL_DB must be set")
	}
	port := c.MySQLPort
	if port == "" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?multiStatements=true&clientFoundRows=true",
		c.MySQLUser, c.MySQLPassword, c.MySQLHost, port, c.MySQLDB), nil
}

func New() (*Config, error) {
	c := &Config{
		Port:          getenv("PORT", "8080"),
		Env:           getenv("ENV", getenv("NODE_ENV", "development")),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		DBAdapter:     getenv("DB_ADAPTER", "postgres"),
		SQLiteFile:    getenv("SQLITE_FILE", "./data/carego.db"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "./migrations"),

		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", "5432"),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "carego")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "carego")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "carego")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		MySQLDSN:      getenv("MYSQL_DSN", ""),
		MySQLHost:     getenv("MYSQL_HOST", getenv("DB_HOST", "localhost")),
		MySQLPort:     getenv("MYSQL_PORT", "3306"),
		MySQLUser:     getenv("MYSQL_USER", getenv("DB_USER", "carego")),
		MySQLPassword: getenv("MYSQL_PASSWORD", getenv("DB_PASSWORD", "carego")),
		MySQLDB:       getenv("MYSQL_DB", getenv("DB_NAME", "carego")),

		JwtSecret: getenv("JWT_SECRET", "change-me"),
		JwtIssuer: getenv("JWT_ISSUER", "carego"),

		RedisURL:      getenv("REDIS_URL", ""),
		AMQPURL:       getenv("AMQP_URL", ""),
		AuditExchange: getenv("AUDIT_EXCHANGE", "carego.audit"),
	}

	var err error
	if c.RefreshTokenTTL, err = getenvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if c.RotateRefreshTokens, err = getenvBool("ROTATE_REFRESH_TOKENS", true); err != nil {
		return nil, err
	}
	if c.LoginMaxFailures, err = getenvInt("LOGIN_MAX_FAILURES", 10); err != nil {
		return nil, err
	}
	if c.LoginFailureWindow, err = getenvDuration("LOGIN_FAILURE_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if c.AuditBuffer, err = getenvInt("AUDIT_BUFFER", 1024); err != nil {
		return nil, err
	}
	if c.RateLimitPerMinute, err = getenvInt("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}
	if c.SessionSweepInterval, err = getenvDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if origins := getenv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, o)
			}
		}
	}

	if c.TrustedProxies, err = ParseTrustedProxies(getenv("TRUSTED_PROXIES", "")); err != nil {
		return nil, err
	}

	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "mysql":
		dsn, err := c.BuildMySQLDSN()
		if err != nil {
			return nil, fmt.Errorf("mysql configuration error: %w", err)
		}
		c.MySQLDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, mysql, sqlite, memory)", c.DBAdapter)
	}

	if c.IsProduction() && (c.JwtSecret == "" || c.JwtSecret == "change-me") {
		return nil, errors.New("JWT_SECRET must be set in production")
	}
	if c.JwtSecret == "" {
		return nil, errors.New("JWT_SECRET must not be empty")
	}

	// refresh tokens must outlive at least one full access-token cycle
	if c.RefreshTokenTTL < 2*AccessTokenTTL {
		return nil, fmt.Errorf("REFRESH_TOKEN_TTL must be at least %s", 2*AccessTokenTTL)
	}
	if c.LoginMaxFailures < 1 {
		return nil, errors.New("LOGIN_MAX_FAILURES must be positive")
	}
	if c.AuditBuffer < 1 {
		return nil, errors.New("AUDIT_BUFFER must be positive")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
