package agent

import (
	_ "embed"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"gopkg.in/yaml.v3"
)

//go:embed prompt/core.md
var corePrompt string

//go:embed prompt/voice.md
var voicePrompt string

const (
	DefaultCoreModel  = "gemini-2.5-flash"
	DefaultVoiceModel = "gemini-2.0-flash-exp"
	DefaultVoice      = "Puck"
)

// Config holds models and instructions of the core and voice agents
type Config struct {
	Core  CoreConfig  `yaml:"core"`
	Voice VoiceConfig `yaml:"voice"`
}

// CoreConfig configures the text agent that calls corpus tools
type CoreConfig struct {
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction"`
}

// VoiceConfig configures the live agent that talks to the client
type VoiceConfig struct {
	Model       string `yaml:"model"`
	Voice       string `yaml:"voice"`
	Language    string `yaml:"language"`
	Instruction string `yaml:"instruction"`
}

// DefaultConfig returns the built-in agent configuration
func DefaultConfig() Config {
	return Config{
		Core: CoreConfig{
			Model:       DefaultCoreModel,
			Instruction: corePrompt,
		},
		Voice: VoiceConfig{
			Model:       DefaultVoiceModel,
			Voice:       DefaultVoice,
			Instruction: voicePrompt,
		},
	}
}

// LoadConfig reads a YAML file and overlays it on DefaultConfig. Empty
// fields keep their defaults. An empty path returns DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerr.Wrap(err, "failed to read agent config", goerr.V("path", path))
	}

	var loaded Config
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return cfg, goerr.Wrap(err, "failed to parse agent config", goerr.V("path", path), goerr.T(model.TagValidation))
	}

	overlay(&cfg.Core.Model, loaded.Core.Model)
	overlay(&cfg.Core.Instruction, loaded.Core.Instruction)
	overlay(&cfg.Voice.Model, loaded.Voice.Model)
	overlay(&cfg.Voice.Voice, loaded.Voice.Voice)
	overlay(&cfg.Voice.Language, loaded.Voice.Language)
	overlay(&cfg.Voice.Instruction, loaded.Voice.Instruction)

	return cfg, nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
