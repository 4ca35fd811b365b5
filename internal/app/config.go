package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	"google.golang.org/grpc/metadata"

	apperrors "github.com/shhac/gcall/internal/errors"
	"github.com/shhac/gcall/internal/input"
	"github.com/shhac/gcall/internal/output"
)

// Config is the effective configuration of one invocation.
type Config struct {
	Proto       string
	ImportPaths []string
	Service     string
	Host        string
	Method      string

	Data     string
	JSONPath string
	Raw      bool

	Secure   bool
	CACert   string
	Insecure bool
	Timeout  time.Duration
	Metadata map[string]string

	Output    string
	Array     bool
	Separator string
	Color     bool
	Pretty    bool
	Silent    bool
	Encoding  output.Encoding

	Debug   bool
	LogFile string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		JSONPath: "*",
		Encoding: output.EncodingUTF8,
	}
}

// Flag names. Config file keys use the same names.
const (
	flagProto      = "proto"
	flagImportPath = "import-path"
	flagService    = "service"
	flagHost       = "host"
	flagData       = "data"
	flagSecure     = "secure"
	flagCACert     = "cacert"
	flagInsecure   = "insecure"
	flagOutput     = "output"
	flagMetadata   = "metadata"
	flagJSON       = "json"
	flagArray      = "array"
	flagBreaker    = "breaker"
	flagConfig     = "config"
	flagColor      = "color"
	flagPretty     = "pretty"
	flagRaw        = "raw"
	flagEncoding   = "encoding"
	flagSilent     = "silent"
	flagRPC        = "rpc"
	flagTimeout    = "timeout"
	flagDebug      = "debug"
	flagLogFile    = "log-file"
)

// BreakerFlag is the flag whose value is optional on the command line.
const BreakerFlag = flagBreaker

// RegisterFlags defines every option on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	fs.StringP(flagProto, "p", "", "Path to protocol buffer definition (.proto or descriptor set).")
	fs.StringSliceP(flagImportPath, "I", nil, "Additional directory to search for proto imports. May be repeated.")
	fs.StringP(flagService, "S", "", "Service name. Default is the first found in the definition.")
	fs.StringP(flagHost, "h", "", "The service host. Without it the service methods are listed.")
	fs.StringP(flagData, "d", "", "Input data, otherwise standard input. Use @file to read a file.")
	fs.BoolP(flagSecure, "s", false, "Use a TLS connection.")
	fs.String(flagCACert, "", "CA certificate file used to verify the server.")
	fs.Bool(flagInsecure, false, "Skip TLS certificate verification.")
	fs.StringP(flagOutput, "o", "", "Output path, otherwise standard output.")
	fs.StringP(flagMetadata, "m", "", "Metadata as a JSON object.")
	fs.StringP(flagJSON, "j", d.JSONPath, "JSON path selecting request stream messages.")
	fs.BoolP(flagArray, "a", false, "Output a response stream as a JSON array.")
	fs.StringP(flagBreaker, "b", "", "Separator between streamed responses. Without a value, a newline.")
	fs.Lookup(flagBreaker).NoOptDefVal = "\n"
	fs.StringP(flagConfig, "c", "", "Configuration file (JSON or YAML).")
	fs.BoolP(flagColor, "C", false, "Colour JSON output on terminals.")
	fs.BoolP(flagPretty, "P", false, "Pretty print JSON output.")
	fs.BoolP(flagRaw, "R", false, "Pass raw protobuf wire bytes in and out.")
	fs.StringP(flagEncoding, "e", string(d.Encoding), "Output encoding: utf8, base64 or hex.")
	fs.BoolP(flagSilent, "X", false, "Do not write any output.")
	fs.StringP(flagRPC, "r", "", "Method name, instead of the positional argument.")
	fs.Duration(flagTimeout, 0, "Connection timeout, e.g. 5s. Zero connects lazily.")
	fs.Bool(flagDebug, false, "Enable debug logging.")
	fs.String(flagLogFile, "", "Write JSON logs to this file.")
}

// Resolve builds the effective configuration from parsed flags, the
// optional config file and the environment. Flags given on the command
// line win over the file, which wins over the environment.
func Resolve(fs *pflag.FlagSet, args []string, logger *slog.Logger) (*Config, error) {
	if path, _ := fs.GetString(flagConfig); path != "" {
		if err := applyConfigFile(fs, path, logger); err != nil {
			return nil, err
		}
	}
	applyEnv(fs)

	cfg := DefaultConfig()
	var err error
	get := func(name string) string {
		v, e := fs.GetString(name)
		if e != nil && err == nil {
			err = e
		}
		return v
	}
	getBool := func(name string) bool {
		v, e := fs.GetBool(name)
		if e != nil && err == nil {
			err = e
		}
		return v
	}

	cfg.Proto = get(flagProto)
	cfg.Service = get(flagService)
	cfg.Host = get(flagHost)
	cfg.Data = get(flagData)
	cfg.JSONPath = get(flagJSON)
	cfg.Separator = get(flagBreaker)
	cfg.Output = get(flagOutput)
	cfg.CACert = get(flagCACert)
	cfg.LogFile = get(flagLogFile)
	cfg.Secure = getBool(flagSecure)
	cfg.Insecure = getBool(flagInsecure)
	cfg.Array = getBool(flagArray)
	cfg.Color = getBool(flagColor)
	cfg.Pretty = getBool(flagPretty)
	cfg.Raw = getBool(flagRaw)
	cfg.Silent = getBool(flagSilent)
	cfg.Debug = getBool(flagDebug)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidOption, err)
	}

	if cfg.ImportPaths, err = fs.GetStringSlice(flagImportPath); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidOption, err)
	}
	if cfg.Timeout, err = fs.GetDuration(flagTimeout); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidOption, err)
	}
	// Listing ignores call options.
	if cfg.Host != "" {
		if cfg.Encoding, err = output.ParseEncoding(get(flagEncoding)); err != nil {
			return nil, err
		}
		if cfg.Metadata, err = parseMetadata(get(flagMetadata)); err != nil {
			return nil, err
		}
	}
	if cfg.JSONPath == "" {
		cfg.JSONPath = "*"
	}

	cfg.Method = get(flagRPC)
	if len(args) > 0 {
		cfg.Method = args[0]
	}

	if cfg.Proto == "" {
		return nil, apperrors.ErrProtoRequired
	}
	return cfg, nil
}

// applyConfigFile sets every flag named in the file that was not given on
// the command line.
func applyConfigFile(fs *pflag.FlagSet, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidConfig, err)
	}

	values, err := parseConfigFile(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidConfig, path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f := fs.Lookup(key)
		if f == nil || key == flagConfig {
			logger.Debug("ignoring config key", slog.String("key", key))
			continue
		}
		if f.Changed {
			continue
		}
		strs, err := configValues(key, values[key])
		if err != nil {
			return fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidConfig, key, err)
		}
		for _, s := range strs {
			if err := fs.Set(key, s); err != nil {
				return fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidConfig, key, err)
			}
		}
	}
	return nil
}

// parseConfigFile decodes a flat mapping. JSON documents are valid YAML.
func parseConfigFile(data []byte) (map[string]any, error) {
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// configValues converts a config value into flag.Set arguments.
func configValues(key string, v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if key == flagBreaker {
			if val {
				return []string{"\n"}, nil
			}
			return nil, nil
		}
		return []string{strconv.FormatBool(val)}, nil
	case string:
		return []string{val}, nil
	case int:
		return []string{numberValue(key, strconv.Itoa(val))}, nil
	case float64:
		return []string{numberValue(key, strconv.FormatFloat(val, 'f', -1, 64))}, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	case map[string]any:
		if key != flagMetadata {
			return nil, fmt.Errorf("unexpected mapping")
		}
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return []string{string(b)}, nil
	default:
		return nil, fmt.Errorf("unsupported value %v", v)
	}
}

// numberValue treats bare numbers for the timeout as seconds.
func numberValue(key, n string) string {
	if key == flagTimeout {
		return n + "s"
	}
	return n
}

// applyEnv reads GCALL_DEBUG and GCALL_LOG_FILE for options not set by
// flags or the config file.
func applyEnv(fs *pflag.FlagSet) {
	if f := fs.Lookup(flagDebug); f != nil && !f.Changed {
		if debugStr := os.Getenv("GCALL_DEBUG"); debugStr != "" {
			if debug, err := strconv.ParseBool(debugStr); err == nil {
				fs.Set(flagDebug, strconv.FormatBool(debug))
			}
		}
	}
	if f := fs.Lookup(flagLogFile); f != nil && !f.Changed {
		if logFile := os.Getenv("GCALL_LOG_FILE"); logFile != "" {
			fs.Set(flagLogFile, logFile)
		}
	}
}

// parseMetadata decodes a JSON object into metadata pairs. Non-string
// values are kept in their JSON form.
func parseMetadata(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%w: metadata must be a JSON object: %v", apperrors.ErrInvalidConfig, err)
	}
	md := make(map[string]string, len(raw))
	for k, v := range raw {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			md[k] = str
			continue
		}
		md[k] = string(v)
	}
	return md, nil
}

// MD returns the call metadata.
func (c *Config) MD() metadata.MD {
	if len(c.Metadata) == 0 {
		return nil
	}
	return metadata.New(c.Metadata)
}

// Path returns the compiled JSON path for request streams.
func (c *Config) Path() input.Path {
	return input.ParsePath(c.JSONPath)
}

// OutputOptions returns formatter options for a sink.
func (c *Config) OutputOptions(terminal bool) output.Options {
	return output.Options{
		Silent:      c.Silent,
		Raw:         c.Raw,
		Pretty:      c.Pretty,
		Color:       c.Color && terminal,
		Array:       c.Array,
		Separator:   c.Separator,
		Encoding:    c.Encoding,
		TrailingEOL: terminal,
	}
}
