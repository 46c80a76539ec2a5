// Package urdf models the output robot-description document and
// serializes it as pretty-printed XML.
package urdf

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

const FileName = "robot.urdf"

type Robot struct {
	XMLName xml.Name `xml:"robot"`
	Name    string   `xml:"name,attr"`
	Links   []*Link  `xml:"link"`
	Joints  []*Joint `xml:"joint"`
}

type Link struct {
	Name      string     `xml:"name,attr"`
	Visual    *Visual    `xml:"visual"`
	Collision *Collision `xml:"collision"`
	Inertial  *Inertial  `xml:"inertial"`
}

type Visual struct {
	Origin   *Origin   `xml:"origin"`
	Geometry *Geometry `xml:"geometry"`
}

type Collision struct {
	Origin   *Origin   `xml:"origin"`
	Geometry *Geometry `xml:"geometry"`
}

type Geometry struct {
	Mesh     *MeshRef  `xml:"mesh"`
	Cylinder *Cylinder `xml:"cylinder"`
	Sphere   *Sphere   `xml:"sphere"`
	Cone     *Cone     `xml:"cone"`
}

// ShallowCopy shares no struct memory with g but references the same
// geometry parameters; used to mirror the visual geometry into the
// collision block.
func (g *Geometry) ShallowCopy() *Geometry {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

type MeshRef struct {
	Filename string `xml:"filename,attr"`
}

type Cylinder struct {
	Radius float64 `xml:"radius,attr"`
	Length float64 `xml:"length,attr"`
}

type Sphere struct {
	Radius float64 `xml:"radius,attr"`
}

type Cone struct {
	Radius float64 `xml:"radius,attr"`
	Length float64 `xml:"length,attr"`
}

type Inertial struct {
	Mass    Mass    `xml:"mass"`
	Inertia Inertia `xml:"inertia"`
}

type Mass struct {
	Value float64 `xml:"value,attr"`
}

type Inertia struct {
	IXX float64 `xml:"ixx,attr"`
	IXY float64 `xml:"ixy,attr"`
	IXZ float64 `xml:"ixz,attr"`
	IYY float64 `xml:"iyy,attr"`
	IYZ float64 `xml:"iyz,attr"`
	IZZ float64 `xml:"izz,attr"`
}

// DefaultInertial is the placeholder inertial block; real inertia
// computation is out of scope.
func DefaultInertial(mass, diagonal float64) *Inertial {
	return &Inertial{
		Mass: Mass{Value: mass},
		Inertia: Inertia{
			IXX: diagonal,
			IYY: diagonal,
			IZZ: diagonal,
		},
	}
}

type Joint struct {
	Name   string  `xml:"name,attr"`
	Type   string  `xml:"type,attr"`
	Origin *Origin `xml:"origin"`
	Parent LinkRef `xml:"parent"`
	Child  LinkRef `xml:"child"`
	Axis   *Axis   `xml:"axis"`
	Limit  *Limit  `xml:"limit"`
}

type LinkRef struct {
	Link string `xml:"link,attr"`
}

type Axis struct {
	XYZ string `xml:"xyz,attr"`
}

type Limit struct {
	Lower    float64 `xml:"lower,attr"`
	Upper    float64 `xml:"upper,attr"`
	Effort   float64 `xml:"effort,attr"`
	Velocity float64 `xml:"velocity,attr"`
}

type Origin struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

func NewOrigin(xyz, rpy mgl64.Vec3) *Origin {
	return &Origin{
		XYZ: formatVec3(xyz),
		RPY: formatVec3(rpy),
	}
}

func formatVec3(v mgl64.Vec3) string {
	return fmt.Sprintf("%g %g %g", v[0], v[1], v[2])
}

func FormatAxis(a [3]float64) *Axis {
	return &Axis{XYZ: fmt.Sprintf("%g %g %g", a[0], a[1], a[2])}
}

func NewRobot(name string) *Robot {
	return &Robot{Name: name}
}

func (r *Robot) AddLink(l *Link)   { r.Links = append(r.Links, l) }
func (r *Robot) AddJoint(j *Joint) { r.Joints = append(r.Joints, j) }

// Write serializes the document with an XML declaration and two-space
// indentation.
func (r *Robot) Write(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "failed to write xml header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(err, "failed to encode robot document")
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Save writes the document as robot.urdf inside outDir, creating the
// directory if absent.
func (r *Robot) Save(outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0777); err != nil {
		return "", errors.Wrapf(err, "failed to create output directory %q", outDir)
	}
	path := filepath.Join(outDir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %q", path)
	}
	defer f.Close()
	if err := r.Write(f); err != nil {
		return "", err
	}
	return path, nil
}
