package urdf

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestWriteDocumentShape(t *testing.T) {
	r := NewRobot("test_robot")
	r.AddLink(&Link{
		Name: "base",
		Visual: &Visual{
			Origin:   NewOrigin(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{0, 0, 0}),
			Geometry: &Geometry{Mesh: &MeshRef{Filename: "meshes/base.obj"}},
		},
		Collision: &Collision{
			Origin:   NewOrigin(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{0, 0, 0}),
			Geometry: &Geometry{Mesh: &MeshRef{Filename: "meshes/base.obj"}},
		},
		Inertial: DefaultInertial(1.0, 0.1),
	})
	r.AddLink(&Link{
		Name: "wheel",
		Visual: &Visual{
			Origin:   NewOrigin(mgl64.Vec3{}, mgl64.Vec3{}),
			Geometry: &Geometry{Cylinder: &Cylinder{Radius: 0.1, Length: 0.2}},
		},
		Inertial: DefaultInertial(1.0, 0.1),
	})
	r.AddJoint(&Joint{
		Name:   "wheel_joint",
		Type:   "revolute",
		Origin: NewOrigin(mgl64.Vec3{0, 0, 0.5}, mgl64.Vec3{}),
		Parent: LinkRef{Link: "base"},
		Child:  LinkRef{Link: "wheel"},
		Axis:   FormatAxis([3]float64{0, 0, 1}),
		Limit:  &Limit{Lower: -1, Upper: 1, Effort: 100, Velocity: 1},
	})

	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`<robot name="test_robot">`,
		`<link name="base">`,
		`<mesh filename="meshes/base.obj">`,
		`<cylinder radius="0.1" length="0.2">`,
		`<mass value="1">`,
		`<inertia ixx="0.1" ixy="0" ixz="0" iyy="0.1" iyz="0" izz="0.1">`,
		`<joint name="wheel_joint" type="revolute">`,
		`<parent link="base">`,
		`<child link="wheel">`,
		`<axis xyz="0 0 1">`,
		`<limit lower="-1" upper="1" effort="100" velocity="1">`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document missing %q:\n%s", want, out)
		}
	}

	// Fixed joints must not grow axis/limit blocks.
	var reparsed Robot
	if err := xml.Unmarshal(buf.Bytes(), &reparsed); err != nil {
		t.Fatalf("output is not well-formed xml: %v", err)
	}
	if len(reparsed.Links) != 2 || len(reparsed.Joints) != 1 {
		t.Errorf("reparsed %d links / %d joints; expected 2 / 1", len(reparsed.Links), len(reparsed.Joints))
	}
}

func TestFixedJointOmitsAxisAndLimit(t *testing.T) {
	r := NewRobot("fixed")
	r.AddJoint(&Joint{
		Name:   "j",
		Type:   "fixed",
		Origin: NewOrigin(mgl64.Vec3{}, mgl64.Vec3{}),
		Parent: LinkRef{Link: "a"},
		Child:  LinkRef{Link: "b"},
	})
	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if strings.Contains(buf.String(), "<axis") || strings.Contains(buf.String(), "<limit") {
		t.Errorf("fixed joint grew axis/limit block:\n%s", buf.String())
	}
}

func TestGeometryShallowCopy(t *testing.T) {
	g := &Geometry{Sphere: &Sphere{Radius: 0.25}}
	c := g.ShallowCopy()
	if c == g {
		t.Fatal("copy returned same pointer")
	}
	if c.Sphere != g.Sphere {
		t.Error("shallow copy must share geometry parameters")
	}
}
