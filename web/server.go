// Package web serves a finished conversion for inspection: a JSON
// summary of the articulated body plus direct file access to the
// output directory (robot.urdf, meshes, materials, textures).
package web

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/capturekit/usd2urdf/convert"
)

var serverResult *convert.Result

func StartServer(addr string, res *convert.Result, outDir string) error {
	serverResult = res

	r := mux.NewRouter()
	r.HandleFunc("/json/robot", HandlerAjaxRobot)
	r.HandleFunc("/json/robot/links", HandlerAjaxLinks)
	r.HandleFunc("/json/robot/links/{link}", HandlerAjaxLink)
	r.HandleFunc("/json/robot/joints", HandlerAjaxJoints)

	r.PathPrefix("/").Handler(http.FileServer(http.Dir(outDir)))

	h := handlers.RecoveryHandler()(r)
	h = handlers.LoggingHandler(os.Stdout, h)

	log.Printf("[web] Starting server %v", addr)

	return http.ListenAndServe(addr, h)
}
