// Package convert walks a scene tree, classifies nodes as coordinate
// frames or geometric entities, and flattens them into an articulated
// body: links joined by joints, with meshes, materials and textures
// exported next to the structural description.
package convert

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/capturekit/usd2urdf/config"
	"github.com/capturekit/usd2urdf/materials"
	"github.com/capturekit/usd2urdf/scene"
	"github.com/capturekit/usd2urdf/transform"
	"github.com/capturekit/usd2urdf/urdf"
	"github.com/capturekit/usd2urdf/utils"
	"github.com/capturekit/usd2urdf/wavefront"
)

type Converter struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Converter {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Converter{cfg: cfg}
}

// LinkRecord pairs an emitted link with the scene node and composed
// frame it came from; the export pass reads these.
type LinkRecord struct {
	Name     string
	Node     *scene.Node
	Composed mgl64.Mat4
	Link     *urdf.Link
}

// Result is everything one conversion run produced.
type Result struct {
	Robot   *urdf.Robot
	Records []*LinkRecord
	// Skipped lists per-node failures that were logged and bypassed.
	Skipped []string
}

// run is the state of a single conversion: the transform stack,
// visited set and counters live here so concurrent or repeated
// conversions never share traversal state.
type run struct {
	cfg *config.Config

	stack     *transform.Stack
	visited   map[string]struct{}
	usedNames map[string]struct{}

	linkCounter  int
	jointCounter int

	robot   *urdf.Robot
	records []*LinkRecord
	skipped []string

	names utils.RandomNameGenerator
}

// newRun builds the state for one conversion. An empty configured
// robot name falls back to a generated one so no output ever carries
// a nameless robot.
func newRun(cfg *config.Config) *run {
	r := &run{
		cfg:       cfg,
		stack:     transform.NewStack(),
		visited:   make(map[string]struct{}),
		usedNames: make(map[string]struct{}),
	}

	name := cfg.RobotName
	if name == "" {
		name = r.names.RandomName()
		log.Printf("[convert] no robot name configured, using %q", name)
	}
	r.robot = urdf.NewRobot(name)
	return r
}

// Convert flattens the tree rooted at root and writes the output
// directory: meshes/, materials/, textures/ and robot.urdf. The root
// node is always treated as a transparent group.
func (c *Converter) Convert(root *scene.Node, outDir string) (*Result, error) {
	if root == nil {
		return nil, errors.New("nil scene root")
	}

	r := newRun(c.cfg)
	r.walk(root, nil, true)

	meshesDir := filepath.Join(outDir, c.cfg.MeshesDir)
	materialsDir := filepath.Join(outDir, c.cfg.MaterialsDir)
	texturesDir := filepath.Join(outDir, c.cfg.TexturesDir)
	for _, dir := range []string{meshesDir, materialsDir, texturesDir} {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, errors.Wrapf(err, "failed to create %q", dir)
		}
	}

	r.exportMeshes(meshesDir, materialsDir, texturesDir)

	path, err := r.robot.Save(outDir)
	if err != nil {
		return nil, err
	}
	log.Printf("[convert] wrote %s: %d links, %d joints", path, len(r.robot.Links), len(r.robot.Joints))

	return &Result{Robot: r.robot, Records: r.records, Skipped: r.skipped}, nil
}

// Flatten runs the traversal only, without touching the filesystem.
// Useful for inspecting what a scene produces.
func (c *Converter) Flatten(root *scene.Node) (*Result, error) {
	if root == nil {
		return nil, errors.New("nil scene root")
	}
	r := newRun(c.cfg)
	r.walk(root, nil, true)
	return &Result{Robot: r.robot, Records: r.records, Skipped: r.skipped}, nil
}

// walk decides one of three outcomes per node, in priority order:
// already visited, transparent group, geometric entity. Group nodes
// recurse with the same parent link; geometric nodes become the parent
// link of their own subtree. Children are visited in source order,
// which is not guaranteed stable across source-format revisions.
func (r *run) walk(node *scene.Node, parent *LinkRecord, isRoot bool) {
	if _, seen := r.visited[node.Path]; seen {
		return
	}

	if isRoot || node.Kind.IsGroup() {
		r.stack.Push(node.Transform)
		defer r.stack.Pop()
		for _, child := range node.Children {
			r.walk(child, parent, false)
		}
		return
	}

	if node.Kind.IsGeometric() {
		r.visited[node.Path] = struct{}{}

		composed := r.stack.Current().Mul4(node.Transform)
		rec := r.synthesize(node, composed, parent)

		r.stack.Push(node.Transform)
		defer r.stack.Pop()
		for _, child := range node.Children {
			r.walk(child, rec, false)
		}
		return
	}

	// Materials, shaders and physics joints are referenced from
	// geometry, not traversed into.
}

// synthesize creates the link for a geometric node and, when a parent
// link exists, the joint connecting them. No file I/O happens here.
func (r *run) synthesize(node *scene.Node, composed mgl64.Mat4, parent *LinkRecord) *LinkRecord {
	name := r.linkName(node.Path)

	xyz, rpy := transform.Decompose(composed)
	origin := urdf.NewOrigin(xyz, rpy)

	geometry := r.geometryFor(node, name)
	link := &urdf.Link{
		Name: name,
		Visual: &urdf.Visual{
			Origin:   origin,
			Geometry: geometry,
		},
		Collision: &urdf.Collision{
			Origin:   origin,
			Geometry: geometry.ShallowCopy(),
		},
		Inertial: urdf.DefaultInertial(r.cfg.Inertial.Mass, r.cfg.Inertial.Diagonal),
	}
	r.robot.AddLink(link)

	rec := &LinkRecord{Name: name, Node: node, Composed: composed, Link: link}
	r.records = append(r.records, rec)

	if parent != nil {
		r.robot.AddJoint(r.synthesizeJoint(node, rec, parent))
	}

	return rec
}

func (r *run) synthesizeJoint(node *scene.Node, child, parent *LinkRecord) *urdf.Joint {
	// The origin is the delta between the two composed frames, not the
	// raw local transform: transparent groups between the links have
	// already contributed to the composition.
	rel := transform.Relative(parent.Composed, child.Composed)
	xyz, rpy := transform.Decompose(rel)

	joint := &urdf.Joint{
		Name:   r.jointName(node.Path),
		Type:   string(scene.JointFixed),
		Origin: urdf.NewOrigin(xyz, rpy),
		Parent: urdf.LinkRef{Link: parent.Name},
		Child:  urdf.LinkRef{Link: child.Name},
	}

	if spec := node.Joint; spec != nil && spec.Type != scene.JointFixed {
		joint.Type = string(spec.Type)
		joint.Axis = urdf.FormatAxis(spec.Axis)
		if spec.HasLimits {
			effort, velocity := spec.Effort, spec.Velocity
			if effort == 0 {
				effort = r.cfg.Joint.Effort
			}
			if velocity == 0 {
				velocity = r.cfg.Joint.Velocity
			}
			joint.Limit = &urdf.Limit{
				Lower:    spec.Lower,
				Upper:    spec.Upper,
				Effort:   effort,
				Velocity: velocity,
			}
		}
	}

	return joint
}

func (r *run) geometryFor(node *scene.Node, linkName string) *urdf.Geometry {
	switch node.Kind {
	case scene.KindMesh:
		return &urdf.Geometry{Mesh: &urdf.MeshRef{
			Filename: relPath(r.cfg.MeshesDir, linkName+".obj"),
		}}
	case scene.KindCylinder:
		return &urdf.Geometry{Cylinder: &urdf.Cylinder{
			Radius: node.FloatAttr("radius", r.cfg.PrimitiveRadius),
			Length: node.FloatAttr("height", r.cfg.PrimitiveHeight),
		}}
	case scene.KindSphere:
		return &urdf.Geometry{Sphere: &urdf.Sphere{
			Radius: node.FloatAttr("radius", r.cfg.PrimitiveRadius),
		}}
	case scene.KindCone:
		return &urdf.Geometry{Cone: &urdf.Cone{
			Radius: node.FloatAttr("radius", r.cfg.PrimitiveRadius),
			Length: node.FloatAttr("height", r.cfg.PrimitiveHeight),
		}}
	}
	return &urdf.Geometry{}
}

// path joins with forward slashes regardless of platform; the
// structural description references meshes relative to itself.
func relPath(dir, name string) string {
	return dir + "/" + name
}

// linkName sanitizes the node path into a unique link name.
func (r *run) linkName(primPath string) string {
	base := sanitizeName(primPath)
	if base == "" {
		base = "link"
	}
	return r.uniqueName(base, &r.linkCounter)
}

func (r *run) jointName(primPath string) string {
	base := sanitizeName(primPath)
	if base == "" {
		base = "joint"
	}
	return r.uniqueName(base+"_joint", &r.jointCounter)
}

func sanitizeName(primPath string) string {
	base := primPath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return strings.ReplaceAll(base, "/", "_")
}

// uniqueName appends a monotonic counter suffix only on collision.
func (r *run) uniqueName(base string, counter *int) string {
	name := base
	for {
		if _, taken := r.usedNames[name]; !taken {
			r.usedNames[name] = struct{}{}
			return name
		}
		*counter++
		name = base + "_" + strconv.Itoa(*counter)
	}
}

// exportMeshes writes one OBJ (and MTL, when a material is bound) per
// mesh link. Every failure is logged and skipped; no node may abort
// its siblings.
func (r *run) exportMeshes(meshesDir, materialsDir, texturesDir string) {
	for _, rec := range r.records {
		if rec.Node.Kind != scene.KindMesh {
			continue
		}
		if err := r.exportMesh(rec, meshesDir, materialsDir, texturesDir); err != nil {
			log.Printf("[convert] skipping mesh %q: %v", rec.Name, err)
			r.skipped = append(r.skipped, rec.Name+": "+err.Error())
		}
	}
}

func (r *run) exportMesh(rec *LinkRecord, meshesDir, materialsDir, texturesDir string) error {
	mtlLib := ""
	materialName := ""

	if mat := rec.Node.BoundMaterial; mat != nil {
		record := materials.Resolve(mat, r.cfg.TextureKeywords)
		textures := materials.CopyTextures(record, texturesDir)

		mtlPath := filepath.Join(materialsDir, rec.Name+".mtl")
		if err := writeFileWith(mtlPath, func(f *os.File) error {
			return wavefront.WriteMTL(f, record, textures, r.cfg.TexturesDir)
		}); err != nil {
			// A broken material must not lose the mesh itself.
			log.Printf("[convert] material for %q not written: %v", rec.Name, err)
			r.skipped = append(r.skipped, rec.Name+" material: "+err.Error())
		} else {
			mtlLib = "../" + relPath(r.cfg.MaterialsDir, rec.Name+".mtl")
			materialName = mat.Name
		}
	}

	objPath := filepath.Join(meshesDir, rec.Name+".obj")
	return writeFileWith(objPath, func(f *os.File) error {
		return wavefront.WriteOBJ(f, rec.Name, rec.Node.Mesh, mtlLib, materialName)
	})
}

func writeFileWith(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
