package fbxexport

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/capturekit/usd2urdf/convert"
	"github.com/capturekit/usd2urdf/scene"
	"github.com/capturekit/usd2urdf/urdf"
)

func testResult() *convert.Result {
	base := scene.NewNode("/base", "base", scene.KindMesh)
	base.Mesh = &scene.MeshData{
		Points:            [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		FaceVertexCounts:  []int{3},
		FaceVertexIndices: []int{0, 1, 2},
	}
	door := scene.NewNode("/base/door", "door", scene.KindMesh)
	door.Mesh = &scene.MeshData{
		Points:            [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}},
		FaceVertexCounts:  []int{3},
		FaceVertexIndices: []int{0, 1, 2},
	}

	robot := urdf.NewRobot("cabinet")
	robot.AddJoint(&urdf.Joint{
		Name:   "door_joint",
		Type:   "fixed",
		Parent: urdf.LinkRef{Link: "base"},
		Child:  urdf.LinkRef{Link: "door"},
	})

	return &convert.Result{
		Robot: robot,
		Records: []*convert.LinkRecord{
			{Name: "base", Node: base, Composed: mgl64.Ident4()},
			{Name: "door", Node: door, Composed: mgl64.Translate3D(0.5, 0, 0)},
		},
	}
}

func TestExportProducesBinaryDocument(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(testResult(), "cabinet.fbx", &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty document")
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("Kaydara FBX Binary")) {
		t.Errorf("missing binary FBX magic, got %q", buf.Bytes()[:18])
	}
	for _, want := range []string{"base", "door", "Vertices"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("document does not mention %q", want)
		}
	}
}

func TestExportEmptyMeshKeepsModel(t *testing.T) {
	res := testResult()
	res.Records[1].Node.Mesh = &scene.MeshData{}

	var buf bytes.Buffer
	if err := Export(res, "cabinet.fbx", &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("door")) {
		t.Error("transform-only link dropped from document")
	}
}
