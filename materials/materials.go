// Package materials resolves a material's shader connection graph into
// a flat record: scalar PBR parameters plus textures classified into
// semantic slots, and copies the referenced texture files into the
// output directory.
package materials

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/capturekit/usd2urdf/scene"
)

// Semantic texture slots.
const (
	SlotDiffuse   = "diffuse"
	SlotNormal    = "normal"
	SlotRoughness = "roughness"
	SlotMetallic  = "metallic"
	SlotSpecular  = "specular"
	SlotEmissive  = "emissive"
	SlotOpacity   = "opacity"
	SlotORM       = "orm"
)

// KeywordRule maps a lowercase substring to a semantic slot. The table
// is ordered; the first match wins.
type KeywordRule struct {
	Keyword string `yaml:"keyword"`
	Slot    string `yaml:"slot"`
}

// DefaultKeywordTable classifies texture names the way the source
// material networks name them. "normal" ranks before "bump" so
// combined names resolve to the normal slot.
var DefaultKeywordTable = []KeywordRule{
	{"diffuse", SlotDiffuse},
	{"albedo", SlotDiffuse},
	{"basecolor", SlotDiffuse},
	{"normal", SlotNormal},
	{"bump", SlotNormal},
	{"orm", SlotORM},
	{"roughness", SlotRoughness},
	{"metallic", SlotMetallic},
	{"metalness", SlotMetallic},
	{"specular", SlotSpecular},
	{"emissive", SlotEmissive},
	{"opacity", SlotOpacity},
	{"alpha", SlotOpacity},
}

// Classify returns the semantic slot for a texture or connection name,
// or "unknown_<name>" when no keyword matches.
func Classify(name string, table []KeywordRule) string {
	lower := strings.ToLower(name)
	for _, rule := range table {
		if strings.Contains(lower, rule.Keyword) {
			return rule.Slot
		}
	}
	return "unknown_" + name
}

// Record is the flattened material: scalar parameters and a semantic
// slot to source-texture-path map.
type Record struct {
	Name string

	DiffuseColor    [3]float64
	HasDiffuseColor bool

	SpecularLevel float64
	HasSpecular   bool

	RoughnessInfluence float64
	HasRoughness       bool

	MetallicInfluence float64
	HasMetallic       bool

	ORMEnabled bool

	// Textures maps slot -> source file path.
	Textures map[string]string
}

// Resolve walks mat's output connections to locate bound textures and
// scalar shader parameters. Surface shaders are recursed into for
// indirectly connected texture inputs.
func Resolve(mat *scene.Material, table []KeywordRule) *Record {
	rec := &Record{
		Name:     mat.Name,
		Textures: make(map[string]string),
	}

	for _, out := range mat.Outputs {
		sh := out.Source
		if sh == nil {
			continue
		}

		if isTextureShader(sh) {
			if path, ok := sh.File(); ok {
				rec.addTexture(Classify(out.Name, table), path)
			}
			continue
		}

		if isSurfaceShader(sh) {
			rec.readSurfaceParams(sh)
			rec.collectSurfaceTextures(sh, table)
		}
	}

	return rec
}

// isTextureShader classifies a shader as a texture node: declared id
// contains "Texture", or it exposes a file-like input.
func isTextureShader(sh *scene.Shader) bool {
	if strings.Contains(sh.ID, "Texture") {
		return true
	}
	_, ok := sh.File()
	return ok
}

// isSurfaceShader: declared id contains "Surface", or it exposes a
// "surface" output.
func isSurfaceShader(sh *scene.Shader) bool {
	return strings.Contains(sh.ID, "Surface") || sh.HasOutput("surface")
}

func (rec *Record) readSurfaceParams(sh *scene.Shader) {
	if c, ok := sh.Color3Input("diffuse_color_constant", [3]float64{1, 1, 1}); ok {
		rec.DiffuseColor = c
		rec.HasDiffuseColor = true
	} else if c, ok := sh.Color3Input("diffuseColor", [3]float64{1, 1, 1}); ok {
		rec.DiffuseColor = c
		rec.HasDiffuseColor = true
	}
	if in := sh.Input("specular_level"); in != nil {
		rec.SpecularLevel = sh.FloatInput("specular_level", 0.5)
		rec.HasSpecular = true
	}
	if in := sh.Input("reflection_roughness_texture_influence"); in != nil {
		rec.RoughnessInfluence = sh.FloatInput("reflection_roughness_texture_influence", 1.0)
		rec.HasRoughness = true
	}
	if in := sh.Input("metallic_texture_influence"); in != nil {
		rec.MetallicInfluence = sh.FloatInput("metallic_texture_influence", 1.0)
		rec.HasMetallic = true
	}
	rec.ORMEnabled = sh.BoolInput("enable_ORM_texture", false)

	// OmniPBR-style direct texture attributes.
	if path := sh.StringInput("diffuse_texture"); path != "" {
		rec.addTexture(SlotDiffuse, path)
	}
	if path := sh.StringInput("normalmap_texture"); path != "" {
		rec.addTexture(SlotNormal, path)
	}
	if rec.ORMEnabled {
		if path := sh.StringInput("ORM_texture"); path != "" {
			rec.addTexture(SlotORM, path)
		}
	}
}

// surfaceTextureInputs are the connection names probed on a surface
// shader for indirectly bound textures.
var surfaceTextureInputs = []string{
	"diffuseColor",
	"baseColor",
	"normal",
	"roughness",
	"metallic",
	"specularColor",
}

func (rec *Record) collectSurfaceTextures(sh *scene.Shader, table []KeywordRule) {
	for _, name := range surfaceTextureInputs {
		in := sh.Input(name)
		if in == nil || in.Source == nil {
			continue
		}
		nested := in.Source
		if !isTextureShader(nested) {
			continue
		}
		if path, ok := nested.File(); ok {
			rec.addTexture(Classify(nested.Name, table), path)
		}
	}
}

func (rec *Record) addTexture(slot, path string) {
	if _, exists := rec.Textures[slot]; !exists {
		rec.Textures[slot] = path
	}
}

// CopyTextures copies every resolved texture into texturesDir,
// skipping files that already exist there (idempotent). It returns the
// slot -> destination base name map of textures actually available on
// disk; a missing or uncopyable source is logged and dropped so the
// material file omits its directive.
func CopyTextures(rec *Record, texturesDir string) map[string]string {
	available := make(map[string]string, len(rec.Textures))
	for slot, src := range rec.Textures {
		if src == "" {
			continue
		}
		name := filepath.Base(src)
		dst := filepath.Join(texturesDir, name)

		if _, err := os.Stat(dst); err == nil {
			available[slot] = name
			continue
		}

		if err := copyFile(src, dst); err != nil {
			log.Printf("[materials] skipping %s texture of %q: %v", slot, rec.Name, err)
			continue
		}
		available[slot] = name
	}
	return available
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open texture %q", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy %q", src)
	}
	return nil
}
