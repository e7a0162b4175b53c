package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"deployhook/pkg/cmdutil"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvSecret           = "DEPLOYHOOK_SECRET"
	EnvLegacySecret     = "GITHUB_WEBHOOK_SECRET"
	EnvHost             = "DEPLOYHOOK_HOST"
	EnvPort             = "DEPLOYHOOK_PORT"
	EnvPath             = "DEPLOYHOOK_PATH"
	EnvCommand          = "DEPLOYHOOK_COMMAND"
	EnvBranchRef        = "DEPLOYHOOK_BRANCH_REF"
	EnvDeployDir        = "DEPLOYHOOK_DEPLOY_DIR"
	EnvDeployTimeout    = "DEPLOYHOOK_DEPLOY_TIMEOUT"
	EnvSerializeDeploys = "DEPLOYHOOK_SERIALIZE_DEPLOYS"
	EnvRateLimit        = "DEPLOYHOOK_RATE_LIMIT"
	EnvExposeOutput     = "DEPLOYHOOK_EXPOSE_OUTPUT"
	EnvLogFile          = "DEPLOYHOOK_LOG_FILE"
	EnvLogLevel         = "DEPLOYHOOK_LOG_LEVEL"
	EnvConfigFile       = "DEPLOYHOOK_CONFIG_FILE"
)

// SecretEnvVars lists the variables that may carry the webhook secret.
var SecretEnvVars = []string{EnvSecret, EnvLegacySecret}

// FileConfig represents the YAML configuration file.
type FileConfig struct {
	Secret           string      `yaml:"secret"`
	Host             string      `yaml:"host"`
	Port             int         `yaml:"port"`
	WebhookPath      string      `yaml:"webhook_path"`
	DeployCommand    interface{} `yaml:"deploy_command"` // string or list
	BranchRef        string      `yaml:"branch_ref"`
	DeployDir        string      `yaml:"deploy_dir"`
	DeployTimeout    int         `yaml:"deploy_timeout"` // seconds
	SerializeDeploys *bool       `yaml:"serialize_deploys"`
	RateLimit        *int        `yaml:"rate_limit"`
	ExposeOutput     *bool       `yaml:"expose_output"`
	LogFile          string      `yaml:"log_file"`
	LogLevel         string      `yaml:"log_level"`
}

// LoadFile reads a YAML config file and applies the values it sets on top of c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if fc.Secret != "" {
		c.Secret = fc.Secret
		c.fileHoldsSecret = true
	}
	if fc.Host != "" {
		c.Host = fc.Host
	}
	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.WebhookPath != "" {
		c.WebhookPath = fc.WebhookPath
	}
	if fc.DeployCommand != nil {
		cmd, err := cmdutil.ParseCommandList(fc.DeployCommand)
		if err != nil {
			return fmt.Errorf("invalid deploy_command: %w", err)
		}
		c.DeployCommand = cmd
	}
	if fc.BranchRef != "" {
		c.DeployBranchRef = fc.BranchRef
	}
	if fc.DeployDir != "" {
		c.DeployDir = fc.DeployDir
	}
	if fc.DeployTimeout != 0 {
		c.DeployTimeout = time.Duration(fc.DeployTimeout) * time.Second
	}
	if fc.SerializeDeploys != nil {
		c.SerializeDeploys = *fc.SerializeDeploys
	}
	if fc.RateLimit != nil {
		c.RateLimit = *fc.RateLimit
	}
	if fc.ExposeOutput != nil {
		c.ExposeOutput = *fc.ExposeOutput
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}

	c.Source = path
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides c with any DEPLOYHOOK_* variables that are set.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []string

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	if v, ok := get(EnvSecret); ok {
		c.Secret = v
		c.fileHoldsSecret = false
	} else if v, ok := get(EnvLegacySecret); ok {
		c.Secret = v
		c.fileHoldsSecret = false
	}
	if v, ok := get(EnvHost); ok {
		c.Host = v
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not a number: %q", EnvPort, v))
		} else {
			c.Port = port
		}
	}
	if v, ok := get(EnvPath); ok {
		c.WebhookPath = v
	}
	if v, ok := get(EnvCommand); ok {
		cmd, err := cmdutil.ParseCommandString(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvCommand, err))
		} else {
			c.DeployCommand = cmd
		}
	}
	if v, ok := get(EnvBranchRef); ok {
		c.DeployBranchRef = v
	}
	if v, ok := get(EnvDeployDir); ok {
		c.DeployDir = v
	}
	if v, ok := get(EnvDeployTimeout); ok {
		d, err := ParseTimeout(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvDeployTimeout, err))
		} else {
			c.DeployTimeout = d
		}
	}
	if v, ok := get(EnvSerializeDeploys); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not a boolean: %q", EnvSerializeDeploys, v))
		} else {
			c.SerializeDeploys = b
		}
	}
	if v, ok := get(EnvRateLimit); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not a number: %q", EnvRateLimit, v))
		} else {
			c.RateLimit = n
		}
	}
	if v, ok := get(EnvExposeOutput); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not a boolean: %q", EnvExposeOutput, v))
		} else {
			c.ExposeOutput = b
		}
	}
	if v, ok := get(EnvLogFile); ok {
		c.LogFile = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.LogLevel = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseTimeout accepts either a Go duration ("90s", "5m") or a bare number of seconds.
func ParseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// LoadDotEnv loads KEY=value pairs from a .env file into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
