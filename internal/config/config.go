// Package config loads go-plantid settings from the environment and an
// optional plantid.yaml file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults.
const (
	DefaultPort            = 8080
	DefaultModel           = "gemini-1.5-flash"
	DefaultIdentifyTimeout = 30 * time.Second
	DefaultPreviewFPS      = 5
	DefaultCameraPreset    = "default"
	DefaultLogLevel        = "info"
)

// Config holds process-wide settings. It is read once at start.
type Config struct {
	// APIKey is the Gemini API key (GOOGLE_API_KEY). An empty key is not a
	// load error; identification reports it on first use.
	APIKey string

	// Model is the Gemini model name.
	Model string

	// Endpoint overrides the Gemini API base URL (tests, proxies).
	Endpoint string

	// IdentifyTimeout bounds a single identification call.
	IdentifyTimeout time.Duration

	Port     int
	LogLevel string
	Debug    bool

	// Handheld selects exact facing matches and a rear-camera default.
	Handheld bool

	Camera CameraConfig
}

// CameraConfig selects devices and the capture preset for the local host.
type CameraConfig struct {
	Preset     string
	FrontDev   string // e.g. /dev/video0
	RearDev    string // e.g. /dev/video2
	PreviewFPS int
	Hotplug    bool
}

// Load reads configuration. path may be empty, in which case plantid.yaml
// is looked up in the working directory and silently skipped if absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PLANTID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", "GOOGLE_API_KEY", "PLANTID_API_KEY")
	_ = v.BindEnv("port", "PORT", "PLANTID_PORT")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plantid")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{
		APIKey:          strings.TrimSpace(v.GetString("api_key")),
		Model:           v.GetString("model"),
		Endpoint:        v.GetString("endpoint"),
		IdentifyTimeout: v.GetDuration("identify_timeout"),
		Port:            v.GetInt("port"),
		LogLevel:        v.GetString("log_level"),
		Debug:           v.GetBool("debug"),
		Handheld:        v.GetBool("handheld"),
		Camera: CameraConfig{
			Preset:     v.GetString("camera.preset"),
			FrontDev:   v.GetString("camera.front"),
			RearDev:    v.GetString("camera.rear"),
			PreviewFPS: v.GetInt("camera.preview_fps"),
			Hotplug:    v.GetBool("camera.hotplug"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", DefaultModel)
	v.SetDefault("identify_timeout", DefaultIdentifyTimeout)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("handheld", false)
	v.SetDefault("camera.preset", DefaultCameraPreset)
	v.SetDefault("camera.preview_fps", DefaultPreviewFPS)
	v.SetDefault("camera.hotplug", true)
}

// Validate checks value ranges. The API key is deliberately not checked here.
func (c *Config) Validate() error {
	var problems []string
	if c.Model == "" {
		problems = append(problems, "model must not be empty")
	}
	if c.IdentifyTimeout <= 0 {
		problems = append(problems, "identify_timeout must be positive")
	}
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, "port must be between 1 and 65535")
	}
	if c.Camera.PreviewFPS < 1 || c.Camera.PreviewFPS > 30 {
		problems = append(problems, "camera.preview_fps must be between 1 and 30")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
