package usda

import (
	"log"
	"math"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/capturekit/usd2urdf/scene"
)

var schemaKinds = map[string]scene.Kind{
	"":         scene.KindScope,
	"Scope":    scene.KindScope,
	"Xform":    scene.KindXform,
	"Mesh":     scene.KindMesh,
	"Cylinder": scene.KindCylinder,
	"Sphere":   scene.KindSphere,
	"Cone":     scene.KindCone,
	"Material": scene.KindMaterial,
	"Shader":   scene.KindShader,
}

var jointSchemas = map[string]scene.JointType{
	"PhysicsJoint":          scene.JointFixed,
	"PhysicsFixedJoint":     scene.JointFixed,
	"PhysicsRevoluteJoint":  scene.JointRevolute,
	"PhysicsPrismaticJoint": scene.JointPrismatic,
	"PhysicsSphericalJoint": scene.JointSpherical,
	"PhysicsD6Joint":        scene.JointContinuous,
}

// builder resolves one parsed layer into a scene tree: shader graph
// first, then nodes, then cross-prim references (material bindings and
// joint bodies).
type builder struct {
	baseDir string

	nodes     map[string]*scene.Node
	shaders   map[string]*scene.Shader
	materials map[string]*scene.Material

	// deferred cross-prim references, resolved once all prims exist
	connections   []connection
	bindings      []binding
	joints        []*rawPrim
	materialPrims []materialPrim
}

type connection struct {
	shader *scene.Shader
	input  string
	target string
}

type binding struct {
	node   *scene.Node
	target string
}

func buildScene(roots []*rawPrim, baseDir string) (*scene.Node, error) {
	b := &builder{
		baseDir:   baseDir,
		nodes:     make(map[string]*scene.Node),
		shaders:   make(map[string]*scene.Shader),
		materials: make(map[string]*scene.Material),
	}

	root := scene.NewNode("/", "", scene.KindScope)
	for _, prim := range roots {
		child, err := b.buildPrim(prim)
		if err != nil {
			return nil, err
		}
		root.AddChild(child)
	}

	if err := b.resolve(); err != nil {
		return nil, err
	}
	return root, nil
}

func (b *builder) buildPrim(prim *rawPrim) (*scene.Node, error) {
	kind, ok := schemaKinds[prim.schema]
	if !ok {
		if _, isJoint := jointSchemas[prim.schema]; isJoint {
			kind = scene.KindPhysicsJoint
			b.joints = append(b.joints, prim)
		} else {
			// Cameras, lights and other schemas the converter does not
			// model still contribute their frame to descendants.
			kind = scene.KindScope
		}
	}

	node := scene.NewNode(prim.path, prim.name, kind)
	b.nodes[prim.path] = node

	transform, err := primTransform(prim)
	if err != nil {
		return nil, err
	}
	node.Transform = transform

	for name, value := range prim.attrs {
		if f, ok := value.(float64); ok {
			node.Attrs[name] = f
		}
	}

	switch kind {
	case scene.KindMesh:
		mesh, err := primMesh(prim)
		if err != nil {
			// One malformed mesh must not take the layer down; the
			// converter skips meshes without points later.
			log.Printf("[usda] skipping mesh buffers of %q: %v", prim.path, err)
			mesh = &scene.MeshData{}
		}
		node.Mesh = mesh
	case scene.KindMaterial:
		b.materials[prim.path] = b.buildMaterial(prim)
	case scene.KindShader:
		b.buildShader(prim)
	}

	if targets, ok := prim.rels["material:binding"]; ok && len(targets) > 0 {
		b.bindings = append(b.bindings, binding{node: node, target: targets[0]})
	}

	for _, child := range prim.children {
		childNode, err := b.buildPrim(child)
		if err != nil {
			return nil, err
		}
		node.AddChild(childNode)
	}
	return node, nil
}

func (b *builder) buildShader(prim *rawPrim) *scene.Shader {
	id, _ := prim.attrs["info:id"].(string)
	if id == "" {
		id, _ = prim.attrs["info:mdl:sourceAsset:subIdentifier"].(string)
	}
	shader := scene.NewShader(prim.name, id)

	for name, value := range prim.attrs {
		switch {
		case strings.HasPrefix(name, "inputs:"):
			input := strings.TrimPrefix(name, "inputs:")
			if strings.HasSuffix(input, ".connect") {
				if ref, isRef := value.(pathRef); isRef {
					b.connections = append(b.connections, connection{
						shader: shader,
						input:  strings.TrimSuffix(input, ".connect"),
						target: stripProperty(string(ref)),
					})
				}
				continue
			}
			shader.Inputs[input] = &scene.ShaderInput{Value: b.resolveValue(value)}
		case strings.HasPrefix(name, "outputs:"):
			output := strings.TrimPrefix(name, "outputs:")
			if !strings.HasSuffix(output, ".connect") {
				shader.Outputs[output] = struct{}{}
			}
		}
	}

	b.shaders[prim.path] = shader
	return shader
}

// buildMaterial registers the material shell; its output connections
// are wired in resolve() once every shader prim exists.
func (b *builder) buildMaterial(prim *rawPrim) *scene.Material {
	mat := &scene.Material{Name: prim.name}
	b.materialPrims = append(b.materialPrims, materialPrim{prim: prim, mat: mat})
	return mat
}

type materialPrim struct {
	prim *rawPrim
	mat  *scene.Material
}

// resolveValue resolves asset references against the layer directory.
func (b *builder) resolveValue(value interface{}) interface{} {
	if ref, ok := value.(assetRef); ok {
		path := string(ref)
		if path != "" && !filepath.IsAbs(path) && b.baseDir != "" {
			path = filepath.Join(b.baseDir, path)
		}
		return path
	}
	return value
}

// resolve wires the deferred cross-prim references.
func (b *builder) resolve() error {
	for _, conn := range b.connections {
		source, ok := b.shaders[conn.target]
		if !ok {
			return errors.Errorf("Shader input %q connects to unknown prim %q", conn.input, conn.target)
		}
		if in, exists := conn.shader.Inputs[conn.input]; exists {
			in.Source = source
		} else {
			conn.shader.Inputs[conn.input] = &scene.ShaderInput{Source: source}
		}
	}

	for _, mp := range b.materialPrims {
		for name, value := range mp.prim.attrs {
			if !strings.HasPrefix(name, "outputs:") || !strings.HasSuffix(name, ".connect") {
				continue
			}
			output := strings.TrimSuffix(strings.TrimPrefix(name, "outputs:"), ".connect")
			ref, isRef := value.(pathRef)
			if !isRef {
				continue
			}
			source, ok := b.shaders[stripProperty(string(ref))]
			if !ok {
				return errors.Errorf("Material %q output %q connects to unknown prim %q", mp.prim.path, output, ref)
			}
			mp.mat.Outputs = append(mp.mat.Outputs, scene.TerminalOutput{Name: output, Source: source})
		}
	}

	for _, bind := range b.bindings {
		mat, ok := b.materials[bind.target]
		if !ok {
			return errors.Errorf("Prim %q binds unknown material %q", bind.node.Path, bind.target)
		}
		bind.node.BoundMaterial = mat
	}

	for _, prim := range b.joints {
		if err := b.resolveJoint(prim); err != nil {
			return err
		}
	}
	return nil
}

// resolveJoint attaches joint metadata to the body1 target node.
func (b *builder) resolveJoint(prim *rawPrim) error {
	targets := prim.rels["physics:body1"]
	if len(targets) == 0 {
		// A joint without a child body constrains nothing.
		return nil
	}
	body, ok := b.nodes[targets[0]]
	if !ok {
		return errors.Errorf("Joint %q targets unknown prim %q", prim.path, targets[0])
	}

	spec := &scene.JointSpec{
		Type: jointSchemas[prim.schema],
		Axis: [3]float64{0, 0, 1},
	}
	if axis, ok := prim.attrs["physics:axis"].(string); ok {
		switch axis {
		case "X":
			spec.Axis = [3]float64{1, 0, 0}
		case "Y":
			spec.Axis = [3]float64{0, 1, 0}
		}
	}

	lower, hasLower := prim.attrs["physics:lowerLimit"].(float64)
	upper, hasUpper := prim.attrs["physics:upperLimit"].(float64)
	if hasLower && hasUpper && (spec.Type == scene.JointRevolute || spec.Type == scene.JointPrismatic) {
		spec.HasLimits = true
		spec.Lower = lower
		spec.Upper = upper
	}

	body.Joint = spec
	return nil
}

// primTransform builds the local transform: an explicit matrix op wins,
// otherwise translate, rotateXYZ (degrees) and scale compose as T*R*S.
func primTransform(prim *rawPrim) (mgl64.Mat4, error) {
	if raw, ok := prim.attrs["xformOp:transform"]; ok {
		return matrixAttr(raw, prim.path)
	}

	m := mgl64.Ident4()
	if t, ok := vec3Attr(prim.attrs["xformOp:translate"]); ok {
		m = m.Mul4(mgl64.Translate3D(t[0], t[1], t[2]))
	}
	if r, ok := vec3Attr(prim.attrs["xformOp:rotateXYZ"]); ok {
		rx := mgl64.DegToRad(r[0])
		ry := mgl64.DegToRad(r[1])
		rz := mgl64.DegToRad(r[2])
		m = m.Mul4(mgl64.HomogRotate3DZ(rz)).
			Mul4(mgl64.HomogRotate3DY(ry)).
			Mul4(mgl64.HomogRotate3DX(rx))
	}
	if s, ok := vec3Attr(prim.attrs["xformOp:scale"]); ok {
		m = m.Mul4(mgl64.Scale3D(s[0], s[1], s[2]))
	}
	return m, nil
}

// matrixAttr converts a row-major matrix4d (translation in the fourth
// row) into the column-major form the converter uses.
func matrixAttr(raw interface{}, path string) (mgl64.Mat4, error) {
	rows, ok := raw.([]interface{})
	if !ok || len(rows) != 4 {
		return mgl64.Ident4(), errors.Errorf("Bad xformOp:transform on prim %q", path)
	}
	var m mgl64.Mat4
	for i, rawRow := range rows {
		row, ok := rawRow.([]float64)
		if !ok || len(row) != 4 {
			return mgl64.Ident4(), errors.Errorf("Bad xformOp:transform row on prim %q", path)
		}
		for j := 0; j < 4; j++ {
			m.Set(j, i, row[j])
		}
	}
	return m, nil
}

func vec3Attr(raw interface{}) ([3]float64, bool) {
	v, ok := raw.([]float64)
	if !ok || len(v) < 3 {
		return [3]float64{}, false
	}
	return [3]float64{v[0], v[1], v[2]}, true
}

func primMesh(prim *rawPrim) (*scene.MeshData, error) {
	mesh := &scene.MeshData{}

	points, err := vec3Buffer(prim.attrs["points"])
	if err != nil {
		return nil, errors.Wrapf(err, "Bad points on prim %q", prim.path)
	}
	mesh.Points = points

	if raw, ok := prim.attrs["normals"]; ok {
		normals, err := vec3Buffer(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad normals on prim %q", prim.path)
		}
		mesh.Normals = normals
	}
	if raw, ok := prim.attrs["primvars:st"]; ok {
		uvs, err := vec2Buffer(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad primvars:st on prim %q", prim.path)
		}
		mesh.UVs = uvs
	}

	mesh.FaceVertexCounts = intBuffer(prim.attrs["faceVertexCounts"])
	mesh.FaceVertexIndices = intBuffer(prim.attrs["faceVertexIndices"])
	return mesh, nil
}

func vec3Buffer(raw interface{}) ([][3]float64, error) {
	items, ok := raw.([]interface{})
	if !ok {
		if emptySequence(raw) {
			return nil, nil
		}
		return nil, errors.New("expected a tuple array")
	}
	out := make([][3]float64, 0, len(items))
	for _, item := range items {
		v, ok := vec3Attr(item)
		if !ok {
			return nil, errors.New("expected 3-component tuples")
		}
		out = append(out, v)
	}
	return out, nil
}

func vec2Buffer(raw interface{}) ([][2]float64, error) {
	items, ok := raw.([]interface{})
	if !ok {
		if emptySequence(raw) {
			return nil, nil
		}
		return nil, errors.New("expected a tuple array")
	}
	out := make([][2]float64, 0, len(items))
	for _, item := range items {
		v, ok := item.([]float64)
		if !ok || len(v) < 2 {
			return nil, errors.New("expected 2-component tuples")
		}
		out = append(out, [2]float64{v[0], v[1]})
	}
	return out, nil
}

// emptySequence reports whether raw is an absent attribute or an empty
// array literal; "[]" has no items to collapse into tuples, so the
// parser hands it over as an empty numeric sequence.
func emptySequence(raw interface{}) bool {
	if raw == nil {
		return true
	}
	v, ok := raw.([]float64)
	return ok && len(v) == 0
}

func intBuffer(raw interface{}) []int {
	v, ok := raw.([]float64)
	if !ok {
		return nil
	}
	out := make([]int, len(v))
	for i, f := range v {
		out[i] = int(math.Round(f))
	}
	return out
}

// stripProperty cuts the property part off a target path
// ("/Looks/M/Tex.outputs:rgb" -> "/Looks/M/Tex").
func stripProperty(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndex(path, "/") {
		return path[:i]
	}
	return path
}
