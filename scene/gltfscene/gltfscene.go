// Package gltfscene reads a glTF 2.0 document into the scene object
// model: the node hierarchy becomes the tree, mesh primitives become
// triangle buffers, and metallic-roughness materials are mapped onto a
// synthesized surface-shader graph so material resolution works the
// same way for every reader.
package gltfscene

import (
	"encoding/binary"
	"log"
	"math"
	"path/filepath"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"

	"github.com/capturekit/usd2urdf/scene"
)

// ParseFile reads a .gltf/.glb document; external buffers and texture
// URIs resolve relative to its directory.
func ParseFile(path string) (*scene.Node, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to open document %q", path)
	}
	return FromDocument(doc, filepath.Dir(path))
}

// FromDocument builds a scene tree from an already loaded document.
func FromDocument(doc *gltf.Document, baseDir string) (*scene.Node, error) {
	b := &builder{doc: doc, baseDir: baseDir, materials: make(map[uint32]*scene.Material)}

	root := scene.NewNode("/", "", scene.KindScope)

	var sceneIdx uint32
	if doc.Scene != nil {
		sceneIdx = *doc.Scene
	}
	if int(sceneIdx) >= len(doc.Scenes) {
		return nil, errors.Errorf("Document has no scene %d", sceneIdx)
	}

	for _, nodeIdx := range doc.Scenes[sceneIdx].Nodes {
		child, err := b.buildNode(nodeIdx, "")
		if err != nil {
			return nil, err
		}
		root.AddChild(child)
	}
	return root, nil
}

type builder struct {
	doc     *gltf.Document
	baseDir string

	// materials caches synthesized shader graphs per document index.
	materials map[uint32]*scene.Material
}

func (b *builder) buildNode(idx uint32, parentPath string) (*scene.Node, error) {
	if int(idx) >= len(b.doc.Nodes) {
		return nil, errors.Errorf("Node index %d out of range", idx)
	}
	src := b.doc.Nodes[idx]

	name := src.Name
	if name == "" {
		name = "node_" + strconv.Itoa(int(idx))
	}
	path := parentPath + "/" + name

	kind := scene.KindXform
	if src.Mesh != nil {
		kind = scene.KindMesh
	}

	node := scene.NewNode(path, name, kind)
	node.Transform = nodeTransform(src)

	if src.Mesh != nil {
		if err := b.attachMesh(node, *src.Mesh); err != nil {
			return nil, err
		}
	}

	for _, childIdx := range src.Children {
		child, err := b.buildNode(childIdx, path)
		if err != nil {
			return nil, err
		}
		node.AddChild(child)
	}
	return node, nil
}

// nodeTransform prefers the explicit matrix; a zero matrix means the
// document carried TRS (or nothing) instead.
func nodeTransform(src *gltf.Node) mgl64.Mat4 {
	if src.Matrix != [16]float32{} {
		var m mgl64.Mat4
		for i, v := range src.Matrix {
			m[i] = float64(v)
		}
		return m
	}

	m := mgl64.Ident4()

	t := src.Translation
	if t != [3]float32{} {
		m = m.Mul4(mgl64.Translate3D(float64(t[0]), float64(t[1]), float64(t[2])))
	}

	r := src.Rotation
	if r != [4]float32{} && r != [4]float32{0, 0, 0, 1} {
		q := mgl64.Quat{
			W: float64(r[3]),
			V: mgl64.Vec3{float64(r[0]), float64(r[1]), float64(r[2])},
		}
		m = m.Mul4(q.Normalize().Mat4())
	}

	s := src.Scale
	if s != [3]float32{} && s != [3]float32{1, 1, 1} {
		m = m.Mul4(mgl64.Scale3D(float64(s[0]), float64(s[1]), float64(s[2])))
	}
	return m
}

func (b *builder) attachMesh(node *scene.Node, meshIdx uint32) error {
	if int(meshIdx) >= len(b.doc.Meshes) {
		return errors.Errorf("Mesh index %d out of range", meshIdx)
	}
	mesh := b.doc.Meshes[meshIdx]
	if len(mesh.Primitives) == 0 {
		node.Mesh = &scene.MeshData{}
		return nil
	}
	if len(mesh.Primitives) > 1 {
		log.Printf("[gltfscene] mesh %q has %d primitives, reading the first", node.Name, len(mesh.Primitives))
	}
	prim := mesh.Primitives[0]

	data := &scene.MeshData{}
	if acc, ok := prim.Attributes["POSITION"]; ok {
		points, err := b.vec3Accessor(acc)
		if err != nil {
			return errors.Wrapf(err, "Bad POSITION of mesh %q", node.Name)
		}
		data.Points = points
	}
	if acc, ok := prim.Attributes["NORMAL"]; ok {
		normals, err := b.vec3Accessor(acc)
		if err != nil {
			return errors.Wrapf(err, "Bad NORMAL of mesh %q", node.Name)
		}
		data.Normals = normals
	}
	if acc, ok := prim.Attributes["TEXCOORD_0"]; ok {
		uvs, err := b.vec2Accessor(acc)
		if err != nil {
			return errors.Wrapf(err, "Bad TEXCOORD_0 of mesh %q", node.Name)
		}
		data.UVs = uvs
	}

	var indices []int
	if prim.Indices != nil {
		decoded, err := b.indexAccessor(*prim.Indices)
		if err != nil {
			return errors.Wrapf(err, "Bad indices of mesh %q", node.Name)
		}
		indices = decoded
	} else {
		indices = make([]int, len(data.Points))
		for i := range indices {
			indices[i] = i
		}
	}
	data.FaceVertexIndices = indices
	data.FaceVertexCounts = make([]int, len(indices)/3)
	for i := range data.FaceVertexCounts {
		data.FaceVertexCounts[i] = 3
	}

	node.Mesh = data
	if prim.Material != nil {
		node.BoundMaterial = b.material(*prim.Material)
	}
	return nil
}

// material synthesizes the shader graph the resolver expects from a
// metallic-roughness material.
func (b *builder) material(idx uint32) *scene.Material {
	if mat, ok := b.materials[idx]; ok {
		return mat
	}
	if int(idx) >= len(b.doc.Materials) {
		return nil
	}
	src := b.doc.Materials[idx]

	name := src.Name
	if name == "" {
		name = "material_" + strconv.Itoa(int(idx))
	}

	surface := scene.NewShader(name, "MetallicRoughnessSurface")
	surface.Outputs["surface"] = struct{}{}

	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			f := *pbr.BaseColorFactor
			surface.Inputs["diffuse_color_constant"] = &scene.ShaderInput{
				Value: []float64{float64(f[0]), float64(f[1]), float64(f[2])},
			}
		}
		if pbr.BaseColorTexture != nil {
			if tex := b.textureShader("baseColorTexture", pbr.BaseColorTexture.Index); tex != nil {
				surface.Inputs["baseColor"] = &scene.ShaderInput{Source: tex}
			}
		}
	}
	if src.NormalTexture != nil && src.NormalTexture.Index != nil {
		if tex := b.textureShader("normalTexture", *src.NormalTexture.Index); tex != nil {
			surface.Inputs["normal"] = &scene.ShaderInput{Source: tex}
		}
	}

	mat := &scene.Material{
		Name:    name,
		Outputs: []scene.TerminalOutput{{Name: "surface", Source: surface}},
	}
	b.materials[idx] = mat
	return mat
}

// textureShader wraps a document texture as a file-referencing shader
// node. Embedded (bufferView) images are skipped; only URI images map
// to copyable files.
func (b *builder) textureShader(name string, texIdx uint32) *scene.Shader {
	if int(texIdx) >= len(b.doc.Textures) {
		return nil
	}
	tex := b.doc.Textures[texIdx]
	if tex.Source == nil || int(*tex.Source) >= len(b.doc.Images) {
		return nil
	}
	img := b.doc.Images[*tex.Source]
	if img.URI == "" {
		log.Printf("[gltfscene] texture %q is embedded, skipping", name)
		return nil
	}

	uri := img.URI
	if !filepath.IsAbs(uri) && b.baseDir != "" {
		uri = filepath.Join(b.baseDir, uri)
	}

	sh := scene.NewShader(name, "UVTexture")
	sh.Inputs["file"] = &scene.ShaderInput{Value: uri}
	sh.Outputs["rgb"] = struct{}{}
	return sh
}

// accessorBytes locates the raw bytes and effective stride of an
// accessor, honoring interleaved buffer views.
func (b *builder) accessorBytes(idx uint32, elemSize int) ([]byte, int, uint32, error) {
	if int(idx) >= len(b.doc.Accessors) {
		return nil, 0, 0, errors.Errorf("Accessor index %d out of range", idx)
	}
	acc := b.doc.Accessors[idx]
	if acc.BufferView == nil {
		return nil, 0, 0, errors.Errorf("Accessor %d has no buffer view", idx)
	}
	if int(*acc.BufferView) >= len(b.doc.BufferViews) {
		return nil, 0, 0, errors.Errorf("Buffer view %d out of range", *acc.BufferView)
	}
	bv := b.doc.BufferViews[*acc.BufferView]
	if int(bv.Buffer) >= len(b.doc.Buffers) {
		return nil, 0, 0, errors.Errorf("Buffer %d out of range", bv.Buffer)
	}
	data := b.doc.Buffers[bv.Buffer].Data

	stride := int(bv.ByteStride)
	if stride == 0 {
		stride = elemSize
	}
	offset := int(bv.ByteOffset) + int(acc.ByteOffset)
	need := offset + stride*(int(acc.Count)-1) + elemSize
	if acc.Count == 0 {
		need = offset
	}
	if need > len(data) {
		return nil, 0, 0, errors.Errorf("Accessor %d overruns buffer (%d > %d)", idx, need, len(data))
	}
	return data[offset:], stride, acc.Count, nil
}

func (b *builder) vec3Accessor(idx uint32) ([][3]float64, error) {
	data, stride, count, err := b.accessorBytes(idx, 12)
	if err != nil {
		return nil, err
	}
	out := make([][3]float64, count)
	for i := range out {
		base := i * stride
		for j := 0; j < 3; j++ {
			bits := binary.LittleEndian.Uint32(data[base+j*4:])
			out[i][j] = float64(math.Float32frombits(bits))
		}
	}
	return out, nil
}

func (b *builder) vec2Accessor(idx uint32) ([][2]float64, error) {
	data, stride, count, err := b.accessorBytes(idx, 8)
	if err != nil {
		return nil, err
	}
	out := make([][2]float64, count)
	for i := range out {
		base := i * stride
		for j := 0; j < 2; j++ {
			bits := binary.LittleEndian.Uint32(data[base+j*4:])
			out[i][j] = float64(math.Float32frombits(bits))
		}
	}
	return out, nil
}

func (b *builder) indexAccessor(idx uint32) ([]int, error) {
	if int(idx) >= len(b.doc.Accessors) {
		return nil, errors.Errorf("Accessor index %d out of range", idx)
	}
	acc := b.doc.Accessors[idx]

	var elemSize int
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		elemSize = 1
	case gltf.ComponentUshort:
		elemSize = 2
	case gltf.ComponentUint:
		elemSize = 4
	default:
		return nil, errors.Errorf("Unsupported index component type %v", acc.ComponentType)
	}

	data, stride, count, err := b.accessorBytes(idx, elemSize)
	if err != nil {
		return nil, err
	}
	out := make([]int, count)
	for i := range out {
		base := i * stride
		switch elemSize {
		case 1:
			out[i] = int(data[base])
		case 2:
			out[i] = int(binary.LittleEndian.Uint16(data[base:]))
		case 4:
			out[i] = int(binary.LittleEndian.Uint32(data[base:]))
		}
	}
	return out, nil
}
