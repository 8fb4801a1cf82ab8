// Package configloader builds ddlogger.Config values from environment
// variables, YAML documents and configuration files using viper.
//
// Keys (YAML) and their environment form with the default prefix:
//
//	hostname            DDLOGGER_HOSTNAME
//	service             DDLOGGER_SERVICE
//	api_key             DDLOGGER_API_KEY
//	api_host            DDLOGGER_API_HOST
//	source              DDLOGGER_SOURCE
//	tags                DDLOGGER_TAGS            (list, or "k:v,k2:v2")
//	max_log_lines       DDLOGGER_MAX_LOG_LINES
//	max_line_bytes      DDLOGGER_MAX_LINE_BYTES
//	max_payload_bytes   DDLOGGER_MAX_PAYLOAD_BYTES
//	flush_interval      DDLOGGER_FLUSH_INTERVAL  (duration, e.g. "5s")
//	gzip                DDLOGGER_GZIP
//	compression_level   DDLOGGER_COMPRESSION_LEVEL
//	poll_timeout        DDLOGGER_POLL_TIMEOUT
//	http_timeout        DDLOGGER_HTTP_TIMEOUT
//	send_concurrency    DDLOGGER_SEND_CONCURRENCY
//
// Unset keys keep the values of ddlogger.DefaultConfig.
package configloader

import (
	"bytes"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/spf13/viper"

	"github.com/hyp3rd/ddlogger"
)

// DefaultEnvPrefix is used by FromFile and when an empty prefix is given.
const DefaultEnvPrefix = "DDLOGGER"

// FromEnv loads configuration from environment variables with the given prefix.
// FromEnv("DD") reads the conventional DD_API_KEY.
func FromEnv(prefix string) (*ddlogger.Config, error) {
	viperInstance := viper.New()

	err := bindEnvironment(viperInstance, normalizePrefix(prefix))
	if err != nil {
		return nil, err
	}

	return fromViper(viperInstance)
}

// FromYAML loads configuration from a YAML document.
func FromYAML(data []byte) (*ddlogger.Config, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigType("yaml")

	err := viperInstance.ReadConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ewrap.Wrap(err, "failed to read YAML configuration")
	}

	return fromViper(viperInstance)
}

// FromFile loads a configuration file (any format viper recognizes by
// extension) and applies environment overrides with DefaultEnvPrefix.
func FromFile(path string) (*ddlogger.Config, error) {
	return Load(path, DefaultEnvPrefix)
}

// Load reads the file at path, when path is not empty, and lets environment
// variables with prefix override it.
func Load(path, prefix string) (*ddlogger.Config, error) {
	viperInstance := viper.New()

	err := bindEnvironment(viperInstance, normalizePrefix(prefix))
	if err != nil {
		return nil, err
	}

	if path != "" {
		viperInstance.SetConfigFile(path)

		err = viperInstance.ReadInConfig()
		if err != nil {
			return nil, ewrap.Wrap(err, "failed to read configuration file").
				WithMetadata("path", path)
		}
	}

	return fromViper(viperInstance)
}

func fromViper(viperInstance *viper.Viper) (*ddlogger.Config, error) {
	var raw rawConfig

	err := viperInstance.Unmarshal(&raw)
	if err != nil {
		return nil, ewrap.Wrap(err, "failed to decode configuration")
	}

	return applyRaw(raw)
}

func bindEnvironment(viperInstance *viper.Viper, prefix string) error {
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.SetEnvPrefix(prefix)
	viperInstance.AutomaticEnv()

	errorGroup := ewrap.NewErrorGroup()

	for _, key := range allKeys() {
		err := viperInstance.BindEnv(key)
		if err != nil {
			errorGroup.Add(ewrap.Wrap(err, "failed to bind environment key").
				WithMetadata("key", key).
				WithMetadata("prefix", prefix))
		}
	}

	if errorGroup.HasErrors() {
		return errorGroup
	}

	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultEnvPrefix
	}

	prefix = strings.TrimSuffix(prefix, "_")
	prefix = strings.ReplaceAll(prefix, "-", "_")

	return strings.ToUpper(prefix)
}
