package convert

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/capturekit/usd2urdf/config"
	"github.com/capturekit/usd2urdf/scene"
	"github.com/capturekit/usd2urdf/transform"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RobotName = "test_robot"
	return cfg
}

func meshNode(path string, points int) *scene.Node {
	n := scene.NewNode(path, filepath.Base(path), scene.KindMesh)
	m := &scene.MeshData{}
	for i := 0; i < points; i++ {
		m.Points = append(m.Points, [3]float64{float64(i), 0, 0})
	}
	if points >= 3 {
		m.FaceVertexCounts = []int{3}
		m.FaceVertexIndices = []int{0, 1, 2}
	}
	n.Mesh = m
	return n
}

// One mesh directly under the root yields a single link, no joints,
// and an OBJ carrying every point.
func TestConvertSingleMesh(t *testing.T) {
	root := scene.NewNode("/", "", scene.KindScope)
	root.AddChild(meshNode("/oven", 5))

	outDir := t.TempDir()
	res, err := New(testConfig()).Convert(root, outDir)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if len(res.Robot.Links) != 1 || len(res.Robot.Joints) != 0 {
		t.Fatalf("%d links / %d joints; expected 1 / 0", len(res.Robot.Links), len(res.Robot.Joints))
	}
	if res.Robot.Links[0].Name != "oven" {
		t.Errorf("link name %q", res.Robot.Links[0].Name)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "meshes", "oven.obj"))
	if err != nil {
		t.Fatalf("mesh file: %v", err)
	}
	vertexLines := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "v ") {
			vertexLines++
		}
	}
	if vertexLines != 5 {
		t.Errorf("%d vertex lines; expected the raw point count 5", vertexLines)
	}

	if _, err := os.Stat(filepath.Join(outDir, "robot.urdf")); err != nil {
		t.Errorf("robot.urdf not written: %v", err)
	}
}

// group -> mesh -> group -> mesh: the joint origin must be the
// relative transform between the two composed frames.
func TestConvertNestedGroupsJointOrigin(t *testing.T) {
	root := scene.NewNode("/", "", scene.KindScope)

	top := scene.NewNode("/assembly", "assembly", scene.KindXform)
	top.Transform = mgl64.Translate3D(1, 0, 0)
	root.AddChild(top)

	base := meshNode("/assembly/base", 3)
	base.Transform = mgl64.Translate3D(0, 1, 0)
	top.AddChild(base)

	inner := scene.NewNode("/assembly/base/frame", "frame", scene.KindXform)
	inner.Transform = mgl64.Translate3D(0, 0, 2)
	base.AddChild(inner)

	lid := meshNode("/assembly/base/frame/lid", 3)
	lid.Transform = mgl64.Translate3D(0.5, 0, 0)
	inner.AddChild(lid)

	res, err := New(testConfig()).Flatten(root)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(res.Robot.Links) != 2 || len(res.Robot.Joints) != 1 {
		t.Fatalf("%d links / %d joints; expected 2 / 1", len(res.Robot.Links), len(res.Robot.Joints))
	}

	j := res.Robot.Joints[0]
	if j.Parent.Link != "base" || j.Child.Link != "lid" {
		t.Errorf("joint connects %q -> %q", j.Parent.Link, j.Child.Link)
	}
	// Relative delta: the intermediate group offset (0,0,2) plus the
	// lid local (0.5,0,0); NOT the lid local alone.
	if j.Origin.XYZ != "0.5 0 2" {
		t.Errorf("joint origin xyz=%q; expected \"0.5 0 2\"", j.Origin.XYZ)
	}

	// And the child link origin carries the fully composed frame.
	wantComposed := mgl64.Vec3{1.5, 1, 2}
	got := transform.Translation(res.Records[1].Composed)
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-wantComposed[i]) > 1e-9 {
			t.Errorf("composed[%d]=%v; expected %v", i, got[i], wantComposed[i])
		}
	}
}

// A node reachable through two groups produces one link.
func TestConvertVisitedDedup(t *testing.T) {
	root := scene.NewNode("/", "", scene.KindScope)
	shared := meshNode("/shared", 3)
	g1 := scene.NewNode("/a", "a", scene.KindXform)
	g2 := scene.NewNode("/b", "b", scene.KindXform)
	g1.AddChild(shared)
	g2.AddChild(shared)
	root.AddChild(g1)
	root.AddChild(g2)

	res, err := New(testConfig()).Flatten(root)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(res.Robot.Links) != 1 {
		t.Fatalf("%d links; expected 1 (visited-set dedup)", len(res.Robot.Links))
	}
}

// Only geometric nodes may populate the visited set; groups must be
// re-enterable.
func TestGroupsDoNotPopulateVisitedSet(t *testing.T) {
	cfg := testConfig()
	root := scene.NewNode("/", "", scene.KindScope)
	group := scene.NewNode("/g", "g", scene.KindXform)
	group.AddChild(meshNode("/g/m1", 3))
	group.AddChild(meshNode("/g/m2", 3))
	root.AddChild(group)

	res, err := New(cfg).Flatten(root)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(res.Robot.Links) != 2 {
		t.Fatalf("%d links; expected one per distinct geometric node", len(res.Robot.Links))
	}
}

// A bound material whose diffuse texture is missing on disk still
// produces a material file without map_Kd, and the run completes.
func TestConvertMissingTexture(t *testing.T) {
	surface := scene.NewShader("Shader", "OmniPBRSurface")
	surface.Outputs["surface"] = struct{}{}
	surface.Inputs["diffuse_texture"] = &scene.ShaderInput{Value: "/definitely/not/there.png"}
	mat := &scene.Material{
		Name:    "GhostMat",
		Outputs: []scene.TerminalOutput{{Name: "surface", Source: surface}},
	}

	root := scene.NewNode("/", "", scene.KindScope)
	body := meshNode("/body", 3)
	body.BoundMaterial = mat
	root.AddChild(body)

	outDir := t.TempDir()
	if _, err := New(testConfig()).Convert(root, outDir); err != nil {
		t.Fatalf("Convert must not abort on a missing texture: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "materials", "body.mtl"))
	if err != nil {
		t.Fatalf("material file missing: %v", err)
	}
	if strings.Contains(string(data), "map_Kd") {
		t.Errorf("map_Kd written for a missing texture:\n%s", data)
	}

	obj, err := os.ReadFile(filepath.Join(outDir, "meshes", "body.obj"))
	if err != nil {
		t.Fatalf("mesh file missing: %v", err)
	}
	if !strings.Contains(string(obj), "usemtl GhostMat") {
		t.Error("mesh must still reference the material")
	}
}

// Material map paths must point into the configured textures
// directory, not the default one.
func TestConvertCustomTexturesDir(t *testing.T) {
	srcDir := t.TempDir()
	texSrc := filepath.Join(srcDir, "wood_diffuse.png")
	if err := os.WriteFile(texSrc, []byte("png"), 0666); err != nil {
		t.Fatal(err)
	}

	surface := scene.NewShader("Shader", "OmniPBRSurface")
	surface.Outputs["surface"] = struct{}{}
	surface.Inputs["diffuse_texture"] = &scene.ShaderInput{Value: texSrc}
	mat := &scene.Material{
		Name:    "WoodMat",
		Outputs: []scene.TerminalOutput{{Name: "surface", Source: surface}},
	}

	root := scene.NewNode("/", "", scene.KindScope)
	body := meshNode("/body", 3)
	body.BoundMaterial = mat
	root.AddChild(body)

	cfg := testConfig()
	cfg.TexturesDir = "tex"

	outDir := t.TempDir()
	if _, err := New(cfg).Convert(root, outDir); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "tex", "wood_diffuse.png")); err != nil {
		t.Fatalf("texture not copied into the configured directory: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "materials", "body.mtl"))
	if err != nil {
		t.Fatalf("material file missing: %v", err)
	}
	if !strings.Contains(string(data), "map_Kd ../tex/wood_diffuse.png") {
		t.Errorf("map_Kd does not reference the configured directory:\n%s", data)
	}
	if strings.Contains(string(data), "../textures/") {
		t.Errorf("map path points at the default directory:\n%s", data)
	}
}

// A mesh without point data is skipped with a log entry while its
// siblings are still exported.
func TestConvertSkipsMeshWithoutPoints(t *testing.T) {
	root := scene.NewNode("/", "", scene.KindScope)
	root.AddChild(meshNode("/empty", 0))
	root.AddChild(meshNode("/full", 3))

	outDir := t.TempDir()
	res, err := New(testConfig()).Convert(root, outDir)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("skipped=%v; expected exactly the empty mesh", res.Skipped)
	}
	if _, err := os.Stat(filepath.Join(outDir, "meshes", "full.obj")); err != nil {
		t.Errorf("sibling mesh lost: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "meshes", "empty.obj")); err == nil {
		t.Error("empty mesh must not leave a file behind")
	}
}

func TestJointMetadata(t *testing.T) {
	root := scene.NewNode("/", "", scene.KindScope)
	base := meshNode("/base", 3)
	root.AddChild(base)

	door := meshNode("/base/door", 3)
	door.Joint = &scene.JointSpec{
		Type:      scene.JointRevolute,
		Axis:      [3]float64{0, 0, 1},
		HasLimits: true,
		Lower:     -1.57,
		Upper:     1.57,
	}
	base.AddChild(door)

	res, err := New(testConfig()).Flatten(root)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(res.Robot.Joints) != 1 {
		t.Fatalf("%d joints", len(res.Robot.Joints))
	}
	j := res.Robot.Joints[0]
	if j.Type != "revolute" {
		t.Errorf("type=%q", j.Type)
	}
	if j.Axis == nil || j.Axis.XYZ != "0 0 1" {
		t.Errorf("axis=%v", j.Axis)
	}
	if j.Limit == nil || j.Limit.Effort != 100 || j.Limit.Velocity != 1 {
		t.Errorf("limit=%v; expected effort/velocity defaults 100/1", j.Limit)
	}
	if j.Limit != nil && (j.Limit.Lower != -1.57 || j.Limit.Upper != 1.57) {
		t.Errorf("limit bounds=%v", j.Limit)
	}
}

func TestLinkNameCollision(t *testing.T) {
	root := scene.NewNode("/", "", scene.KindScope)
	g1 := scene.NewNode("/left", "left", scene.KindXform)
	g2 := scene.NewNode("/right", "right", scene.KindXform)
	g1.AddChild(meshNode("/left/wheel", 3))
	g2.AddChild(meshNode("/right/wheel", 3))
	root.AddChild(g1)
	root.AddChild(g2)

	res, err := New(testConfig()).Flatten(root)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(res.Robot.Links) != 2 {
		t.Fatalf("%d links", len(res.Robot.Links))
	}
	names := map[string]bool{}
	for _, l := range res.Robot.Links {
		if names[l.Name] {
			t.Fatalf("duplicate link name %q", l.Name)
		}
		names[l.Name] = true
	}
	if !names["wheel"] || !names["wheel_1"] {
		t.Errorf("names=%v; expected wheel and wheel_1", names)
	}
}

// Both entry points fall back to a generated robot name when the
// profile leaves it empty.
func TestRobotNameFallback(t *testing.T) {
	cfg := config.Default()
	cfg.RobotName = ""
	c := New(cfg)

	build := func() *scene.Node {
		root := scene.NewNode("/", "", scene.KindScope)
		root.AddChild(meshNode("/part", 3))
		return root
	}

	flat, err := c.Flatten(build())
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if flat.Robot.Name == "" {
		t.Error("Flatten produced a nameless robot")
	}

	full, err := c.Convert(build(), t.TempDir())
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if full.Robot.Name == "" {
		t.Error("Convert produced a nameless robot")
	}
}

// Two conversions through the same Converter must not share traversal
// state.
func TestConverterReuse(t *testing.T) {
	c := New(testConfig())

	build := func() *scene.Node {
		root := scene.NewNode("/", "", scene.KindScope)
		root.AddChild(meshNode("/part", 3))
		return root
	}

	first, err := c.Flatten(build())
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Flatten(build())
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Robot.Links) != 1 || len(second.Robot.Links) != 1 {
		t.Fatalf("runs leaked state: %d then %d links", len(first.Robot.Links), len(second.Robot.Links))
	}
	if second.Robot.Links[0].Name != "part" {
		t.Errorf("second run link name %q; state leaked into naming", second.Robot.Links[0].Name)
	}
}
