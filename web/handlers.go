package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/capturekit/usd2urdf/convert"
	"github.com/capturekit/usd2urdf/transform"
	"github.com/capturekit/usd2urdf/webutils"
)

type jRobot struct {
	Name    string   `json:"name"`
	Links   int      `json:"links"`
	Joints  int      `json:"joints"`
	Skipped []string `json:"skipped,omitempty"`
}

type jLink struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Kind string     `json:"kind"`
	XYZ  [3]float64 `json:"xyz"`
	RPY  [3]float64 `json:"rpy"`
}

type jJoint struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Origin string `json:"origin"`
}

func linkView(rec *convert.LinkRecord) jLink {
	xyz, rpy := transform.Decompose(rec.Composed)
	return jLink{
		Name: rec.Name,
		Path: rec.Node.Path,
		Kind: rec.Node.Kind.String(),
		XYZ:  [3]float64{xyz.X(), xyz.Y(), xyz.Z()},
		RPY:  [3]float64{rpy.X(), rpy.Y(), rpy.Z()},
	}
}

func HandlerAjaxRobot(w http.ResponseWriter, r *http.Request) {
	webutils.WriteJson(w, &jRobot{
		Name:    serverResult.Robot.Name,
		Links:   len(serverResult.Robot.Links),
		Joints:  len(serverResult.Robot.Joints),
		Skipped: serverResult.Skipped,
	})
}

func HandlerAjaxLinks(w http.ResponseWriter, r *http.Request) {
	links := make([]jLink, 0, len(serverResult.Records))
	for _, rec := range serverResult.Records {
		links = append(links, linkView(rec))
	}
	webutils.WriteJson(w, links)
}

func HandlerAjaxLink(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["link"]
	for _, rec := range serverResult.Records {
		if rec.Name == name {
			webutils.WriteJson(w, linkView(rec))
			return
		}
	}
	webutils.WriteError(w, errors.Errorf("No link %q", name))
}

func HandlerAjaxJoints(w http.ResponseWriter, r *http.Request) {
	joints := make([]jJoint, 0, len(serverResult.Robot.Joints))
	for _, j := range serverResult.Robot.Joints {
		joints = append(joints, jJoint{
			Name:   j.Name,
			Type:   j.Type,
			Parent: j.Parent.Link,
			Child:  j.Child.Link,
			Origin: j.Origin.XYZ,
		})
	}
	webutils.WriteJson(w, joints)
}
