// Package usda reads the text scene-description format into the scene
// object model. It covers the subset the converter consumes: typed prim
// blocks, transform ops, mesh buffers, material/shader graphs with
// connections, material bindings and physics joints. Everything else
// (layer metadata, dictionaries, variant sets) is skipped structurally.
package usda

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/capturekit/usd2urdf/scene"
)

// ParseFile reads a layer from disk. Asset references inside it resolve
// relative to the file's directory.
func ParseFile(path string) (*scene.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read layer %q", path)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse builds a scene tree from layer text. baseDir anchors relative
// asset references; empty leaves them as written.
func Parse(data []byte, baseDir string) (*scene.Node, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("#usda")) {
		return nil, errors.New("Not a text layer: missing #usda header")
	}

	toks, err := tokenize(data)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	roots, err := p.parseLayer()
	if err != nil {
		return nil, err
	}

	return buildScene(roots, baseDir)
}
