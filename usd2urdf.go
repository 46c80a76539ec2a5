package main

import (
	"flag"
	"log"
	"path/filepath"
	"strings"

	"github.com/capturekit/usd2urdf/config"
	"github.com/capturekit/usd2urdf/convert"
	"github.com/capturekit/usd2urdf/fbxexport"
	"github.com/capturekit/usd2urdf/scene"
	"github.com/capturekit/usd2urdf/scene/gltfscene"
	"github.com/capturekit/usd2urdf/scene/usda"
	"github.com/capturekit/usd2urdf/utils"
	"github.com/capturekit/usd2urdf/web"
)

func readScene(path string) (*scene.Node, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return gltfscene.ParseFile(path)
	default:
		return usda.ParseFile(path)
	}
}

func main() {
	var scenePath, out, configPath, addr string
	var fbx, dump bool
	flag.StringVar(&scenePath, "scene", "", "Path to scene file (.usda, .gltf, .glb)")
	flag.StringVar(&out, "out", "output", "Output directory")
	flag.StringVar(&configPath, "config", "", "Path to conversion profile (yaml)")
	flag.BoolVar(&fbx, "fbx", false, "Also export robot.fbx next to robot.urdf")
	flag.BoolVar(&dump, "dump", false, "Dump the parsed scene tree to the log")
	flag.StringVar(&addr, "serve", "", "Serve the output for inspection on this address (\":8000\")")
	flag.Parse()

	if scenePath == "" {
		flag.PrintDefaults()
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	root, err := readScene(scenePath)
	if err != nil {
		log.Fatal(err)
	}
	if dump {
		utils.LogDump(root)
	}

	res, err := convert.New(cfg).Convert(root, out)
	if err != nil {
		log.Fatal(err)
	}

	if fbx {
		fbxPath := filepath.Join(out, "robot.fbx")
		if err := fbxexport.Save(res, fbxPath); err != nil {
			log.Fatal(err)
		}
		log.Printf("[main] wrote %s", fbxPath)
	}

	if addr != "" {
		if err := web.StartServer(addr, res, out); err != nil {
			log.Fatal(err)
		}
	}
}
