package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/mux"

	"github.com/capturekit/usd2urdf/convert"
	"github.com/capturekit/usd2urdf/scene"
	"github.com/capturekit/usd2urdf/urdf"
)

func setupResult() {
	robot := urdf.NewRobot("cabinet")
	robot.AddLink(&urdf.Link{Name: "base"})
	robot.AddLink(&urdf.Link{Name: "door"})
	robot.AddJoint(&urdf.Joint{
		Name:   "door_joint",
		Type:   "revolute",
		Origin: urdf.NewOrigin(mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{}),
		Parent: urdf.LinkRef{Link: "base"},
		Child:  urdf.LinkRef{Link: "door"},
	})

	base := scene.NewNode("/base", "base", scene.KindMesh)
	door := scene.NewNode("/base/door", "door", scene.KindMesh)

	serverResult = &convert.Result{
		Robot: robot,
		Records: []*convert.LinkRecord{
			{Name: "base", Node: base, Composed: mgl64.Ident4()},
			{Name: "door", Node: door, Composed: mgl64.Translate3D(0.5, 0, 0)},
		},
		Skipped: []string{"broken: no geometry"},
	}
}

func TestHandlerAjaxRobot(t *testing.T) {
	setupResult()

	rec := httptest.NewRecorder()
	HandlerAjaxRobot(rec, httptest.NewRequest("GET", "/json/robot", nil))

	var got jRobot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if got.Name != "cabinet" || got.Links != 2 || got.Joints != 1 {
		t.Errorf("summary %+v", got)
	}
	if len(got.Skipped) != 1 {
		t.Errorf("skipped %v", got.Skipped)
	}
}

func TestHandlerAjaxLink(t *testing.T) {
	setupResult()

	r := mux.NewRouter()
	r.HandleFunc("/json/robot/links/{link}", HandlerAjaxLink)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/json/robot/links/door", nil))

	var got jLink
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if got.Name != "door" || got.XYZ != [3]float64{0.5, 0, 0} {
		t.Errorf("link view %+v", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/json/robot/links/nope", nil))
	var jerr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &jerr); err != nil || jerr.Error == "" {
		t.Errorf("expected json error, got %q", rec.Body.String())
	}
}

func TestHandlerAjaxJoints(t *testing.T) {
	setupResult()

	rec := httptest.NewRecorder()
	HandlerAjaxJoints(rec, httptest.NewRequest(http.MethodGet, "/json/robot/joints", nil))

	var got []jJoint
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(got) != 1 || got[0].Parent != "base" || got[0].Child != "door" || got[0].Origin != "0.5 0 0" {
		t.Errorf("joints %+v", got)
	}
}
