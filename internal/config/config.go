package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr         string
	BasePath     string
	MaxBodyBytes int64
}

type LDAPConfig struct {
	URL                string
	BindDN             string
	BindPassword       string
	UserBaseDN         string
	UserFilter         string
	TokenUserAttr      string
	Timeout            time.Duration
	CacheTTL           time.Duration
	InsecureSkipVerify bool
	RequireTLS         bool
}

type AuthConfig struct {
	EnableBasic  bool
	EnableBearer bool
	// StaticUsers is checked before LDAP: "alice:secret,bob:hunter2".
	StaticUsers map[string]string
	JWKSURL     string
	Issuer      string
	Audience    string
}

type StorageConfig struct {
	Type        string // memory | os | sqlite | postgres
	FileRoot    string
	SQLitePath  string
	PostgresURL string
}

type DAVConfig struct {
	Dialects       []string
	IgnorePatterns []string
	StrictCalDAV   bool
}

type Config struct {
	HTTP     HTTPConfig
	LDAP     LDAPConfig
	Auth     AuthConfig
	Storage  StorageConfig
	DAV      DAVConfig
	LogLevel string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint64(key string, def int64) int64 {
	n, err := strconv.ParseInt(getenv(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getduration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(key, ""))
	if err != nil {
		return def
	}
	return d
}

func getlist(key string) []string {
	var out []string
	for _, item := range strings.Split(getenv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseStaticUsers(raw string) map[string]string {
	users := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if i := strings.Index(pair, ":"); i > 0 {
			users[pair[:i]] = pair[i+1:]
		}
	}
	return users
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:         getenv("HTTP_ADDR", ":8080"),
			BasePath:     getenv("HTTP_BASE_PATH", "/"),
			MaxBodyBytes: getint64("HTTP_MAX_BODY_BYTES", 64<<20),
		},
		LDAP: LDAPConfig{
			URL:                getenv("LDAP_URL", ""),
			BindDN:             getenv("LDAP_BIND_DN", ""),
			BindPassword:       getenv("LDAP_BIND_PASSWORD", ""),
			UserBaseDN:         getenv("LDAP_USER_BASE_DN", ""),
			UserFilter:         getenv("LDAP_USER_FILTER", "(|(uid=%s)(mail=%s))"),
			TokenUserAttr:      getenv("LDAP_TOKEN_USER_ATTR", "uid"),
			Timeout:            getduration("LDAP_TIMEOUT", 10*time.Second),
			CacheTTL:           getduration("LDAP_CACHE_TTL", 2*time.Minute),
			InsecureSkipVerify: getenv("LDAP_INSECURE_SKIP_VERIFY", "false") == "true",
			RequireTLS:         getenv("LDAP_REQUIRE_TLS", "false") == "true",
		},
		Auth: AuthConfig{
			EnableBasic:  getenv("AUTH_ENABLE_BASIC", "false") == "true",
			EnableBearer: getenv("AUTH_ENABLE_BEARER", "false") == "true",
			StaticUsers:  parseStaticUsers(getenv("AUTH_BASIC_USERS", "")),
			JWKSURL:      getenv("AUTH_JWKS_URL", ""),
			Issuer:       getenv("AUTH_ISSUER", ""),
			Audience:     getenv("AUTH_AUDIENCE", ""),
		},
		Storage: StorageConfig{
			Type:        getenv("STORAGE_TYPE", "memory"),
			FileRoot:    getenv("STORAGE_FILE_ROOT", "./data"),
			SQLitePath:  getenv("STORAGE_SQLITE_PATH", "./davgate.db"),
			PostgresURL: getenv("STORAGE_POSTGRES_URL", ""),
		},
		DAV: DAVConfig{
			Dialects:       getlist("DAV_DIALECTS"),
			IgnorePatterns: getlist("DAV_IGNORE_PATTERNS"),
			StrictCalDAV:   getenv("DAV_STRICT_CALDAV", "false") == "true",
		},
		LogLevel: getenv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}
