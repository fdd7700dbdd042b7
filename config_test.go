// ghosttype/config_test.go
package ghosttype

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Run("ValidConfigUntouched", func(t *testing.T) {
		cfg := getDefaultConfig()
		if err := cfg.Validate(testLogger()); err != nil {
			t.Fatalf("default config failed validation: %v", err)
		}
	})

	t.Run("InvalidValuesPatched", func(t *testing.T) {
		cfg := getDefaultConfig()
		cfg.Model = "  "
		cfg.DebounceMs = -100
		cfg.CompletionTemp = 7.5
		cfg.LogLevel = "loud"

		err := cfg.Validate(testLogger())
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("error = %v, want ErrInvalidConfig", err)
		}
		defaults := getDefaultConfig()
		if cfg.Model != defaults.Model {
			t.Errorf("Model = %q, want default %q", cfg.Model, defaults.Model)
		}
		if cfg.DebounceMs != defaults.DebounceMs {
			t.Errorf("DebounceMs = %d, want default %d", cfg.DebounceMs, defaults.DebounceMs)
		}
		if cfg.CompletionTemp != defaults.CompletionTemp {
			t.Errorf("CompletionTemp = %v, want default %v", cfg.CompletionTemp, defaults.CompletionTemp)
		}
		if cfg.LogLevel != defaults.LogLevel {
			t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, defaults.LogLevel)
		}
	})

	t.Run("ZeroIntervalAllowed", func(t *testing.T) {
		cfg := getDefaultConfig()
		cfg.MinTriggerIntervalMs = 0
		if err := cfg.Validate(testLogger()); err != nil {
			t.Errorf("zero min_trigger_interval_ms rejected: %v", err)
		}
	})
}

func TestMergeFileConfig(t *testing.T) {
	cfg := getDefaultConfig()
	model := "gpt-4o"
	debounce := 150
	disabled := false

	mergeFileConfig(&cfg, FileConfig{
		Model:       &model,
		DebounceMs:  &debounce,
		AutoTrigger: &disabled,
	})

	if cfg.Model != "gpt-4o" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.DebounceMs != 150 {
		t.Errorf("DebounceMs = %d", cfg.DebounceMs)
	}
	if cfg.AutoTrigger {
		t.Error("AutoTrigger not overridden to false")
	}
	// Absent fields keep their defaults.
	if cfg.Endpoint != getDefaultConfig().Endpoint {
		t.Errorf("Endpoint changed unexpectedly: %q", cfg.Endpoint)
	}
}

func TestLoadAndMergeConfig(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		cfg := getDefaultConfig()
		loaded, err := LoadAndMergeConfig(filepath.Join(t.TempDir(), "nope.json"), &cfg, testLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded {
			t.Error("loaded = true for missing file")
		}
	})

	t.Run("ValidFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{"model":"local-model","debounce_ms":250}`), 0600); err != nil {
			t.Fatal(err)
		}
		cfg := getDefaultConfig()
		loaded, err := LoadAndMergeConfig(path, &cfg, testLogger())
		if err != nil || !loaded {
			t.Fatalf("loaded=%v err=%v", loaded, err)
		}
		if cfg.Model != "local-model" || cfg.DebounceMs != 250 {
			t.Errorf("merge result: model=%q debounce=%d", cfg.Model, cfg.DebounceMs)
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{"model": `), 0600); err != nil {
			t.Fatal(err)
		}
		cfg := getDefaultConfig()
		_, err := LoadAndMergeConfig(path, &cfg, testLogger())
		if err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if err := WriteDefaultConfig(path, getDefaultConfig(), testLogger()); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}
	var round Config
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("written config is not valid JSON: %v", err)
	}
	if round.Model != getDefaultConfig().Model {
		t.Errorf("round-trip model = %q", round.Model)
	}
}

func TestLoadConfig(t *testing.T) {
	// Point the user config dir at a temp location.
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)

	t.Run("WritesDefaultWhenMissing", func(t *testing.T) {
		cfg, err := LoadConfig(testLogger())
		if err != nil {
			t.Fatalf("LoadConfig with no file: %v", err)
		}
		if cfg.Model != getDefaultConfig().Model {
			t.Errorf("Model = %q", cfg.Model)
		}
		if _, statErr := os.Stat(filepath.Join(tmp, configDirName, defaultConfigFileName)); statErr != nil {
			t.Errorf("default config not written: %v", statErr)
		}
	})

	t.Run("LoadsExistingFile", func(t *testing.T) {
		path := filepath.Join(tmp, configDirName, defaultConfigFileName)
		if err := os.WriteFile(path, []byte(`{"model":"from-file"}`), 0600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(testLogger())
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Model != "from-file" {
			t.Errorf("Model = %q, want from-file", cfg.Model)
		}
	})

	t.Run("FallsBackOnBrokenFile", func(t *testing.T) {
		path := filepath.Join(tmp, configDirName, defaultConfigFileName)
		if err := os.WriteFile(path, []byte(`{broken`), 0600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(testLogger())
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("error = %v, want ErrConfig", err)
		}
		if cfg.Model != getDefaultConfig().Model {
			t.Errorf("fallback Model = %q", cfg.Model)
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	if _, err := ParseLogLevel("debug"); err != nil {
		t.Errorf("debug rejected: %v", err)
	}
	if _, err := ParseLogLevel(""); err != nil {
		t.Errorf("empty rejected: %v", err)
	}
	if _, err := ParseLogLevel("verbose"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("verbose accepted: %v", err)
	}
}
