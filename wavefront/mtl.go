package wavefront

import (
	"fmt"
	"io"

	"github.com/capturekit/usd2urdf/materials"
)

// WriteMTL writes one material-library document. textures maps
// semantic slot -> file name already present under texturesDir; slots
// missing from the map produce no directive. texturesDir is the
// directory name inside the output root; map paths are written
// relative to the material library's own directory.
func WriteMTL(_w io.Writer, rec *materials.Record, textures map[string]string, texturesDir string) error {
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(_w, format+"\n", args...)
	}
	texPath := func(name string) string {
		return "../" + texturesDir + "/" + name
	}

	w("# Material file")
	w("newmtl %s", rec.Name)

	w("Ni 1.000000")
	w("d 1.000000")
	w("illum 2")

	if rec.HasDiffuseColor {
		w("Ka %g %g %g", rec.DiffuseColor[0], rec.DiffuseColor[1], rec.DiffuseColor[2])
		w("Kd %g %g %g", rec.DiffuseColor[0], rec.DiffuseColor[1], rec.DiffuseColor[2])
	} else {
		w("Ka 1.000000 1.000000 1.000000")
		w("Kd 1.000000 1.000000 1.000000")
	}

	if rec.HasSpecular {
		w("Ks %g %g %g", rec.SpecularLevel, rec.SpecularLevel, rec.SpecularLevel)
	} else {
		w("Ks 1.000000 1.000000 1.000000")
	}

	// Shininess from roughness influence: rough surfaces get a low
	// exponent.
	if rec.HasRoughness {
		w("Ns %g", 1000*(1-rec.RoughnessInfluence))
	} else {
		w("Ns 96.078431")
	}

	if name, ok := textures[materials.SlotDiffuse]; ok {
		w("map_Kd %s", texPath(name))
	}
	if name, ok := textures[materials.SlotNormal]; ok {
		w("map_bump %s", texPath(name))
	}
	if name, ok := textures[materials.SlotRoughness]; ok {
		w("map_Pr %s", texPath(name))
	}
	if name, ok := textures[materials.SlotMetallic]; ok {
		w("map_Pm %s", texPath(name))
	}

	// Non-standard PBR extensions.
	w("# PBR")
	if rec.HasRoughness {
		w("Pr %g", rec.RoughnessInfluence)
	}
	if rec.HasMetallic {
		w("Pm %g", rec.MetallicInfluence)
	}
	if name, ok := textures[materials.SlotORM]; ok && rec.ORMEnabled {
		w("Pm %s", texPath(name))
		w("Pr %s", texPath(name))
		w("Ao %s", texPath(name))
	}

	return nil
}
