package camera

import "sort"

// Config holds capture settings applied at the next acquisition.
type Config struct {
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100
}

const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 60
)

// Preset names.
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetDetail  = "detail"
)

// DefaultConfig returns 1280x720 at 30 FPS, enough detail for leaf
// venation without large uploads.
func DefaultConfig() Config {
	return Config{
		Width:     1280,
		Height:    720,
		Framerate: 30,
		Quality:   85,
	}
}

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	legacy := DefaultConfig()
	legacy.Width, legacy.Height = 640, 480

	hd := DefaultConfig()

	fhd := DefaultConfig()
	fhd.Width, fhd.Height = 1920, 1080

	// Close-ups of flowers and bark: full resolution, slow, high quality.
	detail := DefaultConfig()
	detail.Width, detail.Height = 3840, 2160
	detail.Framerate = 15
	detail.Quality = 95

	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  legacy,
		Preset720p:    hd,
		Preset1080p:   fhd,
		PresetDetail:  detail,
	}
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
