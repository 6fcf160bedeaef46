// Package config provides functionality for managing configuration options
// for the storefront binaries using a JSON config file, a .env file and
// environment variables.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHost  = "10.0.0.47"
	defaultPort  = "8000"
	defaultProto = "http"

	graphQLPath = "/en/graphql"
)

// Options holds the configuration values for the client shell and the edge server.
type Options struct {
	// APIBase is the backend origin, e.g. http://10.0.0.47:8000.
	APIBase string `json:"api_base"`

	// MediaOrigin is prepended to relative /media/ paths. Empty keeps them relative.
	MediaOrigin string `json:"media_origin"`

	// GraphQLURL is the recommendations endpoint.
	GraphQLURL string `json:"graphql_url"`

	// TokenFile is where the local key/value storage (tokens, last order) lives.
	TokenFile string `json:"token_file"`

	// Address is the edge server's listening address (ip:port).
	Address string `json:"server_address"`

	// StaticDir holds the built single-page bundle served by the edge server.
	StaticDir string `json:"static_dir"`

	// TLSCert and TLSKey enable HTTPS on the edge server when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// CAFile is an extra root CA for the client when talking to a dev certificate.
	CAFile string `json:"ca_file"`

	// HTTPTimeout is a Go duration string applied to every outbound request.
	HTTPTimeout string `json:"http_timeout"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// Config is the path to the config file.
	Config string `json:"-"`
}

// Default returns the options used when nothing is configured.
func Default() *Options {
	base := defaultProto + "://" + defaultHost + ":" + defaultPort
	return &Options{
		APIBase:     base,
		GraphQLURL:  base + graphQLPath,
		TokenFile:   "storage.json",
		Address:     ":5174",
		StaticDir:   "dist",
		HTTPTimeout: "10s",
		LogLevel:    "Info",
		Config:      "config.json",
	}
}

// Load builds the options from defaults, the .env file, the JSON config file
// and finally the environment. An explicit path wins over CONFIG; an empty
// path falls back to CONFIG, then the default.
func Load(path string) (*Options, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	options := Default()
	switch {
	case path != "":
		options.Config = path
	case os.Getenv("CONFIG") != "":
		options.Config = os.Getenv("CONFIG")
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	// A GraphQL URL left at its default is derived from the final API base.
	if options.GraphQLURL == Default().GraphQLURL {
		options.GraphQLURL = ""
	}
	options.SetAPIBase(cmp.Or(apiBaseFromEnv(), options.APIBase))

	overrideFromEnv(&options.MediaOrigin, "MEDIA_ORIGIN")
	overrideFromEnv(&options.GraphQLURL, "GRAPHQL_URL")
	overrideFromEnv(&options.TokenFile, "TOKEN_FILE")
	overrideFromEnv(&options.Address, "SERVER_ADDRESS")
	overrideFromEnv(&options.StaticDir, "STATIC_DIR")
	overrideFromEnv(&options.TLSCert, "TLS_CERT")
	overrideFromEnv(&options.TLSKey, "TLS_KEY")
	overrideFromEnv(&options.CAFile, "CA_FILE")
	overrideFromEnv(&options.HTTPTimeout, "HTTP_TIMEOUT")
	overrideFromEnv(&options.LogLevel, "LOG_LEVEL")
	options.MediaOrigin = strings.TrimRight(options.MediaOrigin, "/")

	if _, err := options.Timeout(); err != nil {
		return nil, err
	}
	return options, nil
}

// SetAPIBase replaces the backend origin. A GraphQL URL still derived from
// the previous origin follows the new one; an explicitly configured one stays.
func (o *Options) SetAPIBase(base string) {
	base = strings.TrimRight(base, "/")
	if o.GraphQLURL == "" || o.GraphQLURL == strings.TrimRight(o.APIBase, "/")+graphQLPath {
		o.GraphQLURL = base + graphQLPath
	}
	o.APIBase = base
}

// Timeout parses HTTPTimeout. An empty value means no client timeout.
func (o *Options) Timeout() (time.Duration, error) {
	if o.HTTPTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(o.HTTPTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid http timeout %q: %w", o.HTTPTimeout, err)
	}
	return d, nil
}

// apiBaseFromEnv honours API_BASE first, then composes API_PROTO, API_HOST
// and API_PORT when any of them is set.
func apiBaseFromEnv() string {
	if base := os.Getenv("API_BASE"); base != "" {
		return base
	}
	proto, host, port := os.Getenv("API_PROTO"), os.Getenv("API_HOST"), os.Getenv("API_PORT")
	if proto == "" && host == "" && port == "" {
		return ""
	}
	return getOr(proto, defaultProto) + "://" + getOr(host, defaultHost) + ":" + getOr(port, defaultPort)
}

func overrideFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
