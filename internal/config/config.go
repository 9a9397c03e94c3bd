// Package config loads the merged tandem configuration and resolves
// the workspace root.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

// Load merges configuration for the given workspace directory, lowest
// priority first:
//  1. global config (<config dir>/tandem.json[c])
//  2. project config (<directory>/tandem.json[c])
//  3. TANDEM_CONFIG file override
//  4. TANDEM_CONFIG_CONTENT inline JSON
//  5. environment variables
//
// A .env file at the workspace root is loaded into the process
// environment first, so placeholders and env overrides see it.
func Load(directory string) (*types.Config, error) {
	if directory != "" {
		if err := godotenv.Load(filepath.Join(directory, ".env")); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Msg("could not load .env")
		}
	}

	config := &types.Config{Provider: make(map[string]types.ProviderConfig)}
	loaded := make(map[string]bool)

	loadOnce := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil || loaded[abs] {
			return
		}
		if err := loadFile(path, config); err == nil {
			loaded[abs] = true
		} else if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", path).Msg("skipping unreadable config file")
		}
	}

	globalDir := Dir()
	loadOnce(filepath.Join(globalDir, "tandem.json"))
	loadOnce(filepath.Join(globalDir, "tandem.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "tandem.json"))
		loadOnce(filepath.Join(directory, "tandem.jsonc"))
	}

	if path := os.Getenv("TANDEM_CONFIG"); path != "" {
		loadOnce(path)
	}
	if content := os.Getenv("TANDEM_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("parse TANDEM_CONFIG_CONTENT: %w", err)
		}
		merge(config, &inline)
	}

	applyEnv(config)

	if directory != "" {
		if err := loadModeFiles(directory, config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// loadFile reads one JSON or JSONC config file, resolving {env:VAR}
// and {file:path} placeholders relative to the file's directory.
func loadFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, filepath.Dir(path))

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	merge(config, &fileConfig)
	return nil
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate expands {env:VAR} and {file:path} placeholders. File
// content is escaped so it stays a valid JSON string value.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		path := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(path, "~/") {
			path = filepath.Join(os.Getenv("HOME"), path[2:])
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return match
		}
		escaped, err := json.Marshal(strings.TrimSpace(string(content)))
		if err != nil {
			return match
		}
		// Marshal adds surrounding quotes; the placeholder sits inside
		// a JSON string already.
		return strings.Trim(string(escaped), `"`)
	})

	return []byte(str)
}

// merge folds source into target; source wins where both are set.
func merge(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Username != "" {
		target.Username = source.Username
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.Share != "" {
		target.Share = source.Share
	}
	if source.Tools != nil {
		if target.Tools == nil {
			target.Tools = make(map[string]bool)
		}
		for k, v := range source.Tools {
			target.Tools[k] = v
		}
	}
	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}
	if source.Mode != nil {
		if target.Mode == nil {
			target.Mode = make(map[string]types.ModeConfig)
		}
		for k, v := range source.Mode {
			target.Mode[k] = v
		}
	}
	if source.Permission != nil {
		target.Permission = source.Permission
	}
	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}
	if source.Log != nil {
		target.Log = source.Log
	}
}

// applyEnv applies environment overrides, the highest-priority source.
func applyEnv(config *types.Config) {
	providerKeys := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}
	for providerID, envVar := range providerKeys {
		key := os.Getenv(envVar)
		if key == "" {
			continue
		}
		if config.Provider == nil {
			config.Provider = make(map[string]types.ProviderConfig)
		}
		p := config.Provider[providerID]
		if p.APIKey == "" {
			p.APIKey = key
			config.Provider[providerID] = p
		}
	}

	if model := os.Getenv("TANDEM_MODEL"); model != "" {
		config.Model = model
	}
	if model := os.Getenv("TANDEM_SMALL_MODEL"); model != "" {
		config.SmallModel = model
	}
	if level := os.Getenv("TANDEM_LOG_LEVEL"); level != "" {
		if config.Log == nil {
			config.Log = &types.LogConfig{}
		}
		config.Log.Level = level
	}
}

// loadModeFiles reads extra mode presets from .tandem/modes/*.yaml.
// A file named plan.yaml defines or overrides the "plan" mode.
func loadModeFiles(directory string, config *types.Config) error {
	modesDir := filepath.Join(directory, ".tandem", "modes")
	entries, err := os.ReadDir(modesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(modesDir, name))
		if err != nil {
			return err
		}
		var mc types.ModeConfig
		if err := yaml.Unmarshal(data, &mc); err != nil {
			return fmt.Errorf("parse mode file %s: %w", name, err)
		}
		if config.Mode == nil {
			config.Mode = make(map[string]types.ModeConfig)
		}
		config.Mode[strings.TrimSuffix(name, ext)] = mc
	}
	return nil
}

// Save writes the config as indented JSON.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
