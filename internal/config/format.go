package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var supportedFormats = []string{"json", "yaml", "toml"}

// GetConfigFormat returns the format of a config file from its extension.
func GetConfigFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	case ".toml":
		return "toml", nil
	default:
		return "", fmt.Errorf("unsupported config file type for %s (must be .json, .yaml, .yml or .toml)", path)
	}
}

func GetConfigParser(format string) (koanf.Parser, error) {
	switch format {
	case "json":
		return kjson.Parser(), nil
	case "yaml":
		return kyaml.Parser(), nil
	case "toml":
		return ktoml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format '%s'", format)
	}
}

// DecoderConfig is the mapstructure setup used to decode a loaded config.
// Comma separated strings decode into string lists so lists can be given
// through a single environment variable.
func DecoderConfig(format string, result any) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		TagName:    format,
		Result:     result,
		Squash:     true,
		DecodeHook: mapstructure.StringToSliceHookFunc(","),
	}
}

// CheckUnknownFields reports config keys that match no field of t. Keys below
// a map field are free-form.
func CheckUnknownFields(t reflect.Type, keys []string, tag string) error {
	var unknown []string
	for _, key := range keys {
		if !knownKey(t, strings.Split(key, "."), tag) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("unknown config fields: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func knownKey(t reflect.Type, parts []string, tag string) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if len(parts) == 0 || t.Kind() == reflect.Map {
		return true
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "" || name == "-" {
			continue
		}
		if name == parts[0] {
			return knownKey(f.Type, parts[1:], tag)
		}
	}
	return false
}

// Marshal renders c in one of the supported formats.
func Marshal(c Config, format string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = json.MarshalIndent(c, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(c)
	case "toml":
		data, err = toml.Marshal(c)
	default:
		return nil, fmt.Errorf("unsupported output format '%s' (expected one of %s)", format, strings.Join(supportedFormats, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
