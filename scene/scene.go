// Package scene is the object model consumed by the converter: a tree
// of typed nodes with local transforms, mesh buffers and a shader
// connection graph. Readers (usda, gltfscene) build this tree; the
// converter only walks it.
package scene

import (
	"github.com/go-gl/mathgl/mgl64"
)

type Kind int

const (
	KindScope Kind = iota
	KindXform
	KindMesh
	KindCylinder
	KindSphere
	KindCone
	KindMaterial
	KindShader
	KindPhysicsJoint
)

var kindNames = map[Kind]string{
	KindScope:        "Scope",
	KindXform:        "Xform",
	KindMesh:         "Mesh",
	KindCylinder:     "Cylinder",
	KindSphere:       "Sphere",
	KindCone:         "Cone",
	KindMaterial:     "Material",
	KindShader:       "Shader",
	KindPhysicsJoint: "PhysicsJoint",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// IsGeometric reports whether a node of this kind becomes a link.
func (k Kind) IsGeometric() bool {
	switch k {
	case KindMesh, KindCylinder, KindSphere, KindCone:
		return true
	}
	return false
}

// IsGroup reports whether a node of this kind is a transparent
// coordinate frame the walker recurses through.
func (k Kind) IsGroup() bool {
	return k == KindScope || k == KindXform
}

type Node struct {
	// Path uniquely identifies the node in the source tree ("/a/b/c").
	Path string
	Name string
	Kind Kind

	// Transform is the local (parent relative) transform. Identity
	// when the source carries none.
	Transform mgl64.Mat4

	Children []*Node

	// Attrs holds raw typed attribute values keyed by source name.
	// Numbers are float64, tuples []float64, asset paths string.
	Attrs map[string]interface{}

	// Mesh is set for KindMesh nodes that carry geometry buffers.
	Mesh *MeshData

	// BoundMaterial is the resolved material binding, if any.
	BoundMaterial *Material

	// Joint carries physics-joint metadata targeted at this node.
	Joint *JointSpec
}

func NewNode(path, name string, kind Kind) *Node {
	return &Node{
		Path:      path,
		Name:      name,
		Kind:      kind,
		Transform: mgl64.Ident4(),
		Attrs:     make(map[string]interface{}),
	}
}

func (n *Node) AddChild(c *Node) {
	n.Children = append(n.Children, c)
}

// FloatAttr returns a scalar attribute or def when absent or not a
// number.
func (n *Node) FloatAttr(name string, def float64) float64 {
	if v, ok := n.Attrs[name]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

// MeshData mirrors the source mesh buffers: flat face-vertex index
// buffer chunked by FaceVertexCounts.
type MeshData struct {
	Points            [][3]float64
	Normals           [][3]float64
	UVs               [][2]float64
	FaceVertexCounts  []int
	FaceVertexIndices []int
}

type JointType string

const (
	JointFixed      JointType = "fixed"
	JointRevolute   JointType = "revolute"
	JointPrismatic  JointType = "prismatic"
	JointSpherical  JointType = "spherical"
	JointContinuous JointType = "continuous"
)

// JointSpec is physics-joint metadata attached to the child body node.
type JointSpec struct {
	Type      JointType
	Axis      [3]float64
	HasLimits bool
	Lower     float64
	Upper     float64
	Effort    float64
	Velocity  float64
}

// Material is a named material with its terminal output connections
// into the shader graph.
type Material struct {
	Name    string
	Outputs []TerminalOutput
}

// TerminalOutput is one material-level output connected to a shader.
type TerminalOutput struct {
	Name   string
	Source *Shader
}

// Shader is one node of the shader connection graph.
type Shader struct {
	Name string
	// ID is the declared shader id ("UsdUVTexture", "UsdPreviewSurface",
	// "OmniPBR", ...).
	ID      string
	Inputs  map[string]*ShaderInput
	Outputs map[string]struct{}
}

// ShaderInput carries either a literal value or a connection to an
// upstream shader (or both; the connection wins for texture lookup).
type ShaderInput struct {
	Value  interface{}
	Source *Shader
}

func NewShader(name, id string) *Shader {
	return &Shader{
		Name:    name,
		ID:      id,
		Inputs:  make(map[string]*ShaderInput),
		Outputs: make(map[string]struct{}),
	}
}

func (s *Shader) Input(name string) *ShaderInput {
	if s == nil {
		return nil
	}
	return s.Inputs[name]
}

func (s *Shader) HasOutput(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Outputs[name]
	return ok
}

// File returns the "file"-like input value when the shader references
// a texture file directly.
func (s *Shader) File() (string, bool) {
	if in := s.Input("file"); in != nil {
		if path, ok := in.Value.(string); ok && path != "" {
			return path, true
		}
	}
	return "", false
}

// FloatInput returns a scalar input value or def when absent.
func (s *Shader) FloatInput(name string, def float64) float64 {
	if in := s.Input(name); in != nil {
		if f, ok := in.Value.(float64); ok {
			return f
		}
	}
	return def
}

// BoolInput returns a boolean input value or def when absent.
func (s *Shader) BoolInput(name string, def bool) bool {
	if in := s.Input(name); in != nil {
		if b, ok := in.Value.(bool); ok {
			return b
		}
	}
	return def
}

// Color3Input returns a color input value or def when absent.
func (s *Shader) Color3Input(name string, def [3]float64) ([3]float64, bool) {
	if in := s.Input(name); in != nil {
		if t, ok := in.Value.([]float64); ok && len(t) >= 3 {
			return [3]float64{t[0], t[1], t[2]}, true
		}
	}
	return def, false
}

// StringInput returns a string/asset input value or "" when absent.
func (s *Shader) StringInput(name string) string {
	if in := s.Input(name); in != nil {
		if str, ok := in.Value.(string); ok {
			return str
		}
	}
	return ""
}
