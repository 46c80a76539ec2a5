// Package config holds the conversion profile: output layout names,
// placeholder inertial values, joint defaults and the texture keyword
// table. Values layer defaults < file.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/capturekit/usd2urdf/materials"
)

type Config struct {
	// RobotName is the name attribute of the output document. Empty
	// selects a generated name.
	RobotName string `yaml:"robot_name"`

	MeshesDir    string `yaml:"meshes_dir"`
	MaterialsDir string `yaml:"materials_dir"`
	TexturesDir  string `yaml:"textures_dir"`

	Inertial InertialDefaults `yaml:"inertial"`
	Joint    JointDefaults    `yaml:"joint"`

	// PrimitiveRadius/PrimitiveHeight substitute missing radius and
	// height attributes on primitive shapes.
	PrimitiveRadius float64 `yaml:"primitive_radius"`
	PrimitiveHeight float64 `yaml:"primitive_height"`

	// TextureKeywords is the ordered classification table; first
	// match wins.
	TextureKeywords []materials.KeywordRule `yaml:"texture_keywords"`
}

type InertialDefaults struct {
	Mass     float64 `yaml:"mass"`
	Diagonal float64 `yaml:"diagonal"`
}

type JointDefaults struct {
	Effort   float64 `yaml:"effort"`
	Velocity float64 `yaml:"velocity"`
}

func Default() *Config {
	return &Config{
		MeshesDir:       "meshes",
		MaterialsDir:    "materials",
		TexturesDir:     "textures",
		Inertial:        InertialDefaults{Mass: 1.0, Diagonal: 0.1},
		Joint:           JointDefaults{Effort: 100, Velocity: 1},
		PrimitiveRadius: 0.1,
		PrimitiveHeight: 0.2,
		TextureKeywords: materials.DefaultKeywordTable,
	}
}

// Load overlays the YAML file at path onto the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %q", path)
	}
	return cfg, nil
}
