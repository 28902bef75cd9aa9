package configloader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/getsops/sops/v3/decrypt"
	"github.com/haloydev/deploybot/internal/config"
	"github.com/haloydev/deploybot/internal/constants"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load finds, decrypts and decodes the config at path, which may be a file
// or a directory holding one. It returns the config with defaults applied and
// the file it was read from. The result is not validated.
func Load(path string) (*config.Config, string, error) {
	configFile, err := FindConfigFile(path)
	if err != nil {
		return nil, "", err
	}

	format, err := config.GetConfigFormat(configFile)
	if err != nil {
		return nil, "", err
	}
	parser, err := config.GetConfigParser(format)
	if err != nil {
		return nil, "", err
	}

	data, err := file.Provider(configFile).ReadBytes()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	data, err = decryptIfNeeded(data, format, parser)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", configFile, err)
	}

	k := koanf.New(".")
	if err := k.Load(rawBytes(data), parser); err != nil {
		return nil, "", EnhanceConfigError(configFile, format, data, err)
	}

	if err := config.CheckUnknownFields(reflect.TypeOf(config.Config{}), k.Keys(), format); err != nil {
		return nil, "", fmt.Errorf("%s: %w", configFile, err)
	}
	if err := interpolate(k, os.LookupEnv); err != nil {
		return nil, "", fmt.Errorf("%s: %w", configFile, err)
	}

	var cfg config.Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag:           format,
		DecoderConfig: config.DecoderConfig(format, &cfg),
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, "", err
	}
	if cfg.Server.APIToken == "" {
		cfg.Server.APIToken = os.Getenv(constants.EnvVarAPIToken)
	}
	return &cfg, configFile, nil
}

// rawBytes hands already read config bytes to koanf.
type rawBytes []byte

func (b rawBytes) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b rawBytes) Read() (map[string]any, error) {
	return nil, errors.New("raw bytes provider does not support Read")
}

// decryptIfNeeded decrypts files carrying sops metadata and returns other
// files unchanged.
func decryptIfNeeded(data []byte, format string, parser koanf.Parser) ([]byte, error) {
	tree, err := parser.Unmarshal(data)
	if err != nil {
		// Left to the regular load, which reports syntax errors with context.
		return data, nil
	}
	if _, encrypted := tree["sops"]; !encrypted {
		return data, nil
	}
	if format == "toml" {
		return nil, errors.New("sops encrypted config must be yaml or json")
	}
	plain, err := decrypt.Data(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt config with sops: %w", err)
	}
	return plain, nil
}

// interpolate replaces ${VAR} references in every string value.
func interpolate(k *koanf.Koanf, lookup func(string) (string, bool)) error {
	for _, key := range k.Keys() {
		switch v := k.Get(key).(type) {
		case string:
			expanded, err := ExpandEnvRefs(v, lookup)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if expanded != v {
				if err := k.Set(key, expanded); err != nil {
					return err
				}
			}
		case []any:
			changed := false
			items := make([]any, len(v))
			for i, item := range v {
				items[i] = item
				s, ok := item.(string)
				if !ok {
					continue
				}
				expanded, err := ExpandEnvRefs(s, lookup)
				if err != nil {
					return fmt.Errorf("%s[%d]: %w", key, i, err)
				}
				if expanded != s {
					items[i] = expanded
					changed = true
				}
			}
			if changed {
				if err := k.Set(key, items); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

var (
	supportedExtensions  = []string{".json", ".yaml", ".yml", ".toml"}
	supportedConfigNames = []string{
		constants.ConfigFileName + ".json",
		constants.ConfigFileName + ".yaml",
		constants.ConfigFileName + ".yml",
		constants.ConfigFileName + ".toml",
	}
)

// FindConfigFile resolves path to a config file. path may be the file itself
// or a directory containing deploybot.json, .yaml, .yml or .toml.
func FindConfigFile(path string) (string, error) {
	if path == "" {
		path = "."
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found in path '%s'", absPath)
	}

	if !stat.IsDir() {
		if !slices.Contains(supportedExtensions, filepath.Ext(absPath)) {
			return "", fmt.Errorf("file %s is not a valid deploybot config file (must be .json, .yaml, .yml, or .toml)", absPath)
		}
		return absPath, nil
	}

	for _, name := range supportedConfigNames {
		candidate := filepath.Join(absPath, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no deploybot config file found in directory %s (looking for: %s)",
		absPath, strings.Join(supportedConfigNames, ", "))
}
