package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "PAGEFETCH_"

// DefaultEnvFile is the dotenv file loaded at startup if present.
const DefaultEnvFile = ".env"

// LoadDotEnv loads variables from the dotenv file at path into the process
// environment. Variables that are already set keep their value. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the PAGEFETCH_* variables found by lookup.
//
//	PAGEFETCH_FILE, PAGEFETCH_DEST, PAGEFETCH_PROXY, PAGEFETCH_BAD_URLS,
//	PAGEFETCH_LOG_FILE, PAGEFETCH_USER_AGENT, PAGEFETCH_REPORT,
//	PAGEFETCH_METRICS_ADDR, PAGEFETCH_DB_DIR       strings
//	PAGEFETCH_POOLSIZE, PAGEFETCH_MAX_REDIRECTS    integers
//	PAGEFETCH_TIMEOUT                              integer seconds
//	PAGEFETCH_CONNECT_TIMEOUT                      duration ("5s")
//	PAGEFETCH_MAX_BODY_SIZE                        bytes
//	PAGEFETCH_NO_DB, PAGEFETCH_NO_PROGRESS         booleans
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("FILE", &cfg.URLFile)
	env.str("DEST", &cfg.Dest)
	env.str("PROXY", &cfg.ProxyFile)
	env.str("BAD_URLS", &cfg.BadURLsFile)
	env.str("LOG_FILE", &cfg.LogFile)
	env.str("USER_AGENT", &cfg.UserAgent)
	env.str("REPORT", &cfg.ReportFile)
	env.str("METRICS_ADDR", &cfg.MetricsAddr)
	env.str("DB_DIR", &cfg.DBDir)

	env.integer("POOLSIZE", &cfg.PoolSize)
	env.integer("MAX_REDIRECTS", &cfg.MaxRedirects)

	var seconds int
	if env.integer("TIMEOUT", &seconds) {
		cfg.Timeout = time.Duration(seconds) * time.Second
	}
	env.duration("CONNECT_TIMEOUT", &cfg.ConnectTimeout)

	if v, ok := env.get("MAX_BODY_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			env.fail("MAX_BODY_SIZE", v)
		} else {
			cfg.MaxBodySize = n
		}
	}

	var noDB, noProgress bool
	if env.boolean("NO_DB", &noDB) {
		cfg.SaveToDB = !noDB
	}
	if env.boolean("NO_PROGRESS", &noProgress) {
		cfg.ShowProgress = !noProgress
	}

	return env.err
}

// envReader reads prefixed variables and keeps the first parse error.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(name, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s%s=%q", ErrInvalidEnv, EnvPrefix, name, value)
	}
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) bool {
	v, ok := e.get(name)
	if !ok {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v)
		return false
	}
	*dst = n
	return true
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v)
		return
	}
	*dst = d
}

func (e *envReader) boolean(name string, dst *bool) bool {
	v, ok := e.get(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v)
		return false
	}
	*dst = b
	return true
}
