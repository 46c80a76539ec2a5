// Package wavefront writes the interchange mesh (.obj) and material
// (.mtl) files produced for every exported link.
package wavefront

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/capturekit/usd2urdf/scene"
)

// WriteOBJ writes one mesh as a Wavefront OBJ document. mtlLib is the
// relative material-library path ("" when the mesh has no bound
// material); materialName selects the material before the first face
// group. Indices in the source buffers are zero-based and converted to
// the one-based OBJ convention; the face line format follows the
// presence of UV and normal buffers.
func WriteOBJ(_w io.Writer, name string, m *scene.MeshData, mtlLib, materialName string) error {
	if m == nil || len(m.Points) == 0 {
		return errors.Errorf("mesh %q has no point data", name)
	}

	w := func(format string, args ...interface{}) {
		fmt.Fprintf(_w, format+"\n", args...)
	}

	w("# OBJ file exported from scene description")
	w("# Mesh: %s", name)
	if mtlLib != "" {
		w("mtllib %s", mtlLib)
	}

	for _, p := range m.Points {
		w("v %g %g %g", p[0], p[1], p[2])
	}
	for _, n := range m.Normals {
		w("vn %g %g %g", n[0], n[1], n[2])
	}
	for _, uv := range m.UVs {
		w("vt %g %g", uv[0], uv[1])
	}

	haveUV := len(m.UVs) > 0
	haveNorm := len(m.Normals) > 0

	cursor := 0
	for i, count := range m.FaceVertexCounts {
		if cursor+count > len(m.FaceVertexIndices) {
			return errors.Errorf("mesh %q: face %d overruns index buffer (%d+%d > %d)",
				name, i, cursor, count, len(m.FaceVertexIndices))
		}

		if materialName != "" && i == 0 {
			w("usemtl %s", materialName)
		}

		face := "f"
		for _, idx := range m.FaceVertexIndices[cursor : cursor+count] {
			v := idx + 1
			switch {
			case haveUV && haveNorm:
				face += fmt.Sprintf(" %d/%d/%d", v, v, v)
			case haveUV:
				face += fmt.Sprintf(" %d/%d", v, v)
			case haveNorm:
				face += fmt.Sprintf(" %d//%d", v, v)
			default:
				face += fmt.Sprintf(" %d", v)
			}
		}
		w("%s", face)
		cursor += count
	}

	return nil
}
