package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type Options struct {
	Version bool     `long:"version" description:"Show program's version number and exit"`
	NetIDs  []string `short:"n" long:"netid" description:"Network ID to monitor. May be used multiple times. Default is all networks."`
	Types   []string `short:"t" long:"type" choice:"action" choice:"config_change" choice:"event" choice:"state_change" description:"Event type to monitor. May be used multiple times. Default is all."`

	Dashboard  string `long:"dashboard" env:"CBD_DASHBOARD" description:"Dashboard host name or URL (e.g. dashboard.example.com)"`
	Port       int    `long:"port" env:"CBD_PORT" default:"443" description:"Dashboard HTTPS port"`
	Insecure   bool   `long:"insecure" env:"CBD_INSECURE" description:"Skip verification of the Dashboard certificate (self-signed deployments)"`
	KeyID      string `long:"key-id" env:"CBD_KEY_ID" description:"Access key ID"`
	Secret     string `long:"secret" env:"CBD_SECRET" description:"Access key secret"`
	ClientID   string `long:"client-id" env:"CBD_CLIENT_ID" description:"Client instance ID. A random UUID is generated when unset."`
	AppName    string `long:"app-name" env:"CBD_APP_NAME" default:"cbdscript.example.com" description:"Application name in domain name format"`
	AppVersion string `long:"app-version" env:"CBD_APP_VERSION" default:"1.0" description:"Application version string"`
	Lifetime   int    `long:"lifetime" env:"CBD_TOKEN_LIFETIME" description:"Token lifetime in seconds (default 3600 with --netid, 14400 otherwise)"`

	TransportRetries int           `long:"transport-retries" env:"CBD_TRANSPORT_RETRIES" default:"5" description:"Reconnect attempts after a transport error before giving up (0 = fail on first error)"`
	ReadTimeout      time.Duration `long:"read-timeout" env:"CBD_READ_TIMEOUT" description:"Reconnect when the stream is silent for this long (0 = disabled)"`
	HTTP1            bool          `long:"http1" env:"CBD_HTTP1" description:"Disable HTTP/2 for the event stream"`

	EnvFile     string `long:"env-file" env:"CBD_ENV_FILE" default:".env" description:"Dotenv file with Dashboard credentials; watched for key rotation"`
	Log         bool   `long:"log" env:"CBD_LOG" description:"Write JSONL log files to --log-dir or the user cache directory"`
	LogDir      string `long:"log-dir" env:"CBD_LOG_DIR" description:"Directory for JSONL log files (implies --log)"`
	MetricsAddr string `long:"metrics-addr" env:"CBD_METRICS_ADDR" description:"Serve Prometheus metrics on this address (e.g. :9102)"`
	NoLock      bool   `long:"no-lock" description:"Allow more than one monitor per client ID"`
	Debug       bool   `long:"debug" env:"CBD_DEBUG" description:"Enable verbose debug output"`
}

type APIEndpoints struct {
	BaseURL         string
	EventSourceURL  string
	SubscriptionURL string
}

const (
	apiBasePath      = "/api/v2"
	eventSourcePath  = "/event-source"
	subscriptionPath = "/subscription"

	FilteredLifetime   = 3600 * time.Second
	UnfilteredLifetime = 14400 * time.Second
)

// EventTypes is the filter vocabulary accepted by the event-source endpoint.
// Heartbeats are delivered regardless of the filter.
var EventTypes = []string{"action", "config_change", "event", "state_change"}

func ParseOptions(args []string) (Options, error) {
	_ = godotenv.Load(envFileFromArgs(args))
	opts := Options{}
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "cbd-eventstream"
	if _, err := parser.ParseArgs(args); err != nil {
		return Options{}, err
	}
	opts.NetIDs = normalizeIDs(opts.NetIDs)
	return opts, nil
}

// envFileFromArgs finds the dotenv path before flag parsing so the file can
// feed the env-tagged options.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		if value, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return value
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if value := strings.TrimSpace(os.Getenv("CBD_ENV_FILE")); value != "" {
		return value
	}
	return ".env"
}

func ValidateRequired(opts Options) error {
	if strings.TrimSpace(opts.Dashboard) == "" {
		return errors.New("dashboard address is required")
	}
	if strings.TrimSpace(opts.KeyID) == "" {
		return errors.New("access key ID is required")
	}
	if strings.TrimSpace(opts.Secret) == "" {
		return errors.New("access key secret is required")
	}
	if opts.Lifetime < 0 {
		return errors.New("token lifetime must be positive")
	}
	if opts.TransportRetries < 0 {
		return errors.New("transport retries must not be negative")
	}
	return nil
}

// Filtered reports whether a server-side network subscription is needed.
func (o Options) Filtered() bool {
	return len(o.NetIDs) > 0
}

func (o Options) FileLogging() bool {
	return o.Log || strings.TrimSpace(o.LogDir) != ""
}

func (o Options) TokenLifetime() time.Duration {
	if o.Lifetime > 0 {
		return time.Duration(o.Lifetime) * time.Second
	}
	return DefaultLifetime(o.Filtered())
}

// DefaultLifetime is one hour for monitors subscribed to networks and four
// hours otherwise. A type filter alone does not count as filtered.
func DefaultLifetime(filtered bool) time.Duration {
	if filtered {
		return FilteredLifetime
	}
	return UnfilteredLifetime
}

func (o Options) EventTypesOrDefault() []string {
	if len(o.Types) == 0 {
		return append([]string(nil), EventTypes...)
	}
	seen := make(map[string]struct{}, len(o.Types))
	out := make([]string, 0, len(o.Types))
	for _, t := range o.Types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func BuildEndpoints(rawDashboard string, port int) (APIEndpoints, error) {
	baseURL, err := buildAPIBaseURL(rawDashboard, port)
	if err != nil {
		return APIEndpoints{}, err
	}
	return APIEndpoints{
		BaseURL:         baseURL,
		EventSourceURL:  baseURL + eventSourcePath,
		SubscriptionURL: baseURL + subscriptionPath,
	}, nil
}

// EventStreamURL adds the type filter and network scope to the event-source URL.
func (e APIEndpoints) EventStreamURL(types []string, subscribed bool) string {
	scope := "all"
	if subscribed {
		scope = "subscribed"
	}
	if len(types) == 0 {
		types = EventTypes
	}
	// Commas stay literal; the Dashboard expects a plain CSV.
	return e.EventSourceURL + "?types=" + strings.Join(types, ",") + "&monitored-networks=" + scope
}

func buildAPIBaseURL(raw string, port int) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.New("dashboard address is required")
	}
	if !strings.Contains(value, "://") {
		value = "https://" + value
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", errors.New("expected a host name like dashboard.example.com")
	}
	if !strings.EqualFold(parsed.Scheme, "http") && !strings.EqualFold(parsed.Scheme, "https") {
		return "", errors.New("dashboard scheme must be http or https")
	}
	if parsed.Port() == "" && port > 0 {
		if port > 65535 {
			return "", fmt.Errorf("invalid dashboard port %d", port)
		}
		parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(port))
	}

	// Normalize any pasted endpoint/path to the v2 API base.
	parsed.Path = apiBasePath
	parsed.RawPath = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return strings.TrimRight(parsed.String(), "/"), nil
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
