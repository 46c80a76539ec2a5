// Package fbxexport writes the converted articulated body as a binary
// FBX 7.4 scene: one model node per link, parented along the joint
// hierarchy, with the link meshes attached as geometry.
package fbxexport

import (
	"io"
	"log"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/mogaika/fbx/builders/bfbx73"
	"github.com/pkg/errors"

	"github.com/capturekit/usd2urdf/convert"
	"github.com/capturekit/usd2urdf/transform"
)

// Save writes the scene to path.
func Save(res *convert.Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	if err := Export(res, path, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Export writes the scene to w. name lands in the document metadata.
func Export(res *convert.Result, name string, w io.Writer) error {
	b := NewBuilder(name)

	// Joints define the parenting; everything unjointed hangs off the
	// scene root.
	parents := make(map[string]string, len(res.Robot.Joints))
	for _, j := range res.Robot.Joints {
		parents[j.Child.Link] = j.Parent.Link
	}

	modelIds := make(map[string]int64, len(res.Records))
	byName := make(map[string]*convert.LinkRecord, len(res.Records))
	for _, rec := range res.Records {
		byName[rec.Name] = rec
	}

	for _, rec := range res.Records {
		modelIds[rec.Name] = exportLink(b, rec, parents, byName)
	}

	for _, rec := range res.Records {
		parentId := int64(0)
		if parentName, ok := parents[rec.Name]; ok {
			if id, ok := modelIds[parentName]; ok {
				parentId = id
			}
		}
		b.AddConnections(bfbx73.C("OO", modelIds[rec.Name], parentId))
	}

	return b.Write(w)
}

func exportLink(b *Builder, rec *convert.LinkRecord, parents map[string]string, byName map[string]*convert.LinkRecord) int64 {
	// Local frame relative to the parent model, matching the joint
	// origins of the structural description.
	local := rec.Composed
	if parentName, ok := parents[rec.Name]; ok {
		if parent, ok := byName[parentName]; ok {
			local = transform.Relative(parent.Composed, rec.Composed)
		}
	}
	xyz, rpy := transform.Decompose(local)

	modelId := b.GenerateId()
	model := bfbx73.Model(modelId, rec.Name+"\x00\x01Model", "Mesh").AddNodes(
		bfbx73.Version(232),
		bfbx73.Properties70().AddNodes(
			bfbx73.P("InheritType", "enum", "", "", int32(1)),
			bfbx73.P("DefaultAttributeIndex", "int", "Integer", "", int32(0)),
			bfbx73.P("Lcl Translation", "Lcl Translation", "", "A",
				xyz.X(), xyz.Y(), xyz.Z()),
			bfbx73.P("Lcl Rotation", "Lcl Rotation", "", "A",
				mgl64.RadToDeg(rpy.X()), mgl64.RadToDeg(rpy.Y()), mgl64.RadToDeg(rpy.Z())),
			bfbx73.P("Lcl Scaling", "Lcl Scaling", "", "A", float64(1), float64(1), float64(1)),
		),
		bfbx73.Shading(true),
		bfbx73.Culling("CullingOff"),
	)
	b.AddObjects(model)

	if rec.Node.Mesh != nil && len(rec.Node.Mesh.Points) > 0 {
		geometryId := exportGeometry(b, rec)
		b.AddConnections(bfbx73.C("OO", geometryId, modelId))
	} else if rec.Node.Mesh != nil {
		log.Printf("[fbxexport] link %q has an empty mesh, exporting transform only", rec.Name)
	}

	return modelId
}

func exportGeometry(b *Builder, rec *convert.LinkRecord) int64 {
	m := rec.Node.Mesh

	vertices := make([]float64, 0, len(m.Points)*3)
	for _, p := range m.Points {
		vertices = append(vertices, p[0], p[1], p[2])
	}

	// The last index of every polygon is stored negated (xor -1).
	indexes := make([]int32, 0, len(m.FaceVertexIndices))
	uvindexes := make([]int32, 0, len(m.FaceVertexIndices))
	cursor := 0
	for _, count := range m.FaceVertexCounts {
		if cursor+count > len(m.FaceVertexIndices) {
			break
		}
		for i := 0; i < count; i++ {
			idx := int32(m.FaceVertexIndices[cursor+i])
			uvindexes = append(uvindexes, idx)
			if i == count-1 {
				idx = -(idx + 1)
			}
			indexes = append(indexes, idx)
		}
		cursor += count
	}

	geometryId := b.GenerateId()
	geometryLayer := bfbx73.Layer(0).AddNodes(
		bfbx73.Version(100),
	)
	geometry := bfbx73.Geometry(geometryId, "\x00\x01Geometry", "Mesh").AddNodes(
		bfbx73.Properties70().AddNodes(
			bfbx73.P("Color", "ColorRGB", "Color", "", float64(1), float64(1), float64(1)),
		),
		bfbx73.GeometryVersion(124),
		bfbx73.Vertices(vertices),
		bfbx73.PolygonVertexIndex(indexes),
		geometryLayer,
	)

	if len(m.Normals) == len(m.Points) && len(m.Normals) > 0 {
		normals := make([]float64, 0, len(m.Normals)*3)
		for _, n := range m.Normals {
			normals = append(normals, n[0], n[1], n[2])
		}
		geometry.AddNode(
			bfbx73.LayerElementNormal(0).AddNodes(
				bfbx73.Version(101),
				bfbx73.Name(""),
				bfbx73.MappingInformationType("ByVertice"),
				bfbx73.ReferenceInformationType("Direct"),
				bfbx73.Normals(normals),
			),
		)
		geometryLayer.AddNode(
			bfbx73.LayerElement().AddNodes(
				bfbx73.Type("LayerElementNormal"),
				bfbx73.TypedIndex(0),
			),
		)
	}

	if len(m.UVs) == len(m.Points) && len(m.UVs) > 0 {
		uv := make([]float64, 0, len(m.UVs)*2)
		for _, t := range m.UVs {
			uv = append(uv, t[0], t[1])
		}
		geometry.AddNode(
			bfbx73.LayerElementUV(0).AddNodes(
				bfbx73.Version(101),
				bfbx73.Name(""),
				bfbx73.MappingInformationType("ByPolygonVertex"),
				bfbx73.ReferenceInformationType("IndexToDirect"),
				bfbx73.UV(uv),
				bfbx73.UVIndex(uvindexes),
			),
		)
		geometryLayer.AddNode(
			bfbx73.LayerElement().AddNodes(
				bfbx73.Type("LayerElementUV"),
				bfbx73.TypedIndex(0),
			),
		)
	}

	b.AddObjects(geometry)
	return geometryId
}
