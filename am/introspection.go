package am

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teranos/tagstore/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/tagstore/tagstore.toml
	SourceUser        ConfigSource = "user"        // ~/.tagstore/tagstore.toml
	SourceProject     ConfigSource = "project"     // nearest tagstore.toml upward
	SourceEnvironment ConfigSource = "environment" // TAGSTORE_* env vars
)

// SourceInfo names a config source and the file or variable behind it
type SourceInfo struct {
	Source ConfigSource
	Path   string
}

// SearchPaths lists the config files consulted, lowest precedence first.
// Missing user or project files are left out.
func SearchPaths() []SourceInfo {
	paths := []SourceInfo{
		{Source: SourceSystem, Path: filepath.Join("/etc/tagstore", ConfigFileName)},
	}
	if user := UserConfigPath(); user != "" {
		paths = append(paths, SourceInfo{Source: SourceUser, Path: user})
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, SourceInfo{Source: SourceProject, Path: project})
	}
	return paths
}

// SettingInfo is one effective setting and its origin
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // file path or env var name
}

// ConfigIntrospection lists every effective setting in key order
type ConfigIntrospection struct {
	Settings []SettingInfo `json:"settings"`
}

// GetConfigIntrospection reports each effective setting with the source that
// won for it
func GetConfigIntrospection() (*ConfigIntrospection, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}
	v := GetViper()

	mu.Lock()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, si := range ConfigSources {
		sources[k] = si
	}
	mu.Unlock()

	intro := &ConfigIntrospection{}
	collectSettings(v.AllSettings(), "", sources, intro)
	sort.Slice(intro.Settings, func(i, j int) bool {
		return intro.Settings[i].Key < intro.Settings[j].Key
	})
	return intro, nil
}

// collectSettings flattens nested viper maps into dotted keys
func collectSettings(settings map[string]interface{}, prefix string, sources map[string]SourceInfo, intro *ConfigIntrospection) {
	for key, value := range settings {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			collectSettings(nested, key, sources, intro)
			continue
		}
		origin := originOf(key, sources)
		intro.Settings = append(intro.Settings, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     origin.Source,
			SourcePath: origin.Path,
		})
	}
}

// originOf resolves the winning source: env var, then file, then default
func originOf(key string, sources map[string]SourceInfo) SourceInfo {
	envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if os.Getenv(envKey) != "" {
		return SourceInfo{Source: SourceEnvironment, Path: envKey}
	}
	if si, ok := sources[key]; ok {
		return si
	}
	return SourceInfo{Source: SourceDefault, Path: "built-in default"}
}

// GetConfigSummary counts effective settings per source
func GetConfigSummary() map[string]interface{} {
	counts := map[string]int{
		string(SourceDefault):     0,
		string(SourceEnvironment): 0,
	}
	summary := map[string]interface{}{"sources": counts}

	intro, err := GetConfigIntrospection()
	if err != nil {
		return summary
	}
	for _, s := range intro.Settings {
		counts[string(s.Source)]++
	}
	return summary
}
