// Package transform maintains the composed parent-to-root transform
// stack used during scene traversal and decomposes transforms into the
// translation + roll/pitch/yaw form the structural description needs.
package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Stack composes local transforms while descending the tree. Depth
// equals the current tree depth; every Push during a subtree visit
// must be matched by a Pop before returning to the parent.
type Stack struct {
	frames []mgl64.Mat4
}

func NewStack() *Stack {
	return &Stack{frames: make([]mgl64.Mat4, 0, 16)}
}

// Push multiplies local onto the current top frame (or uses it
// directly when the stack is empty) and pushes the result.
func (s *Stack) Push(local mgl64.Mat4) {
	s.frames = append(s.frames, s.Current().Mul4(local))
}

func (s *Stack) Pop() {
	if len(s.frames) == 0 {
		panic("transform: pop on empty stack")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Current returns the top composed frame, or identity when empty.
func (s *Stack) Current() mgl64.Mat4 {
	if len(s.frames) == 0 {
		return mgl64.Ident4()
	}
	return s.frames[len(s.frames)-1]
}

func (s *Stack) Depth() int {
	return len(s.frames)
}

// Relative returns the transform of child expressed in the parent
// frame. Intervening transparent groups contribute to both composed
// frames, so this delta is the only correct joint origin.
func Relative(parent, child mgl64.Mat4) mgl64.Mat4 {
	return parent.Inv().Mul4(child)
}

// Translation extracts the translation column of m.
func Translation(m mgl64.Mat4) mgl64.Vec3 {
	return m.Col(3).Vec3()
}

// QuatToEuler converts a quaternion to roll/pitch/yaw radians. The
// asin argument is clamped so near-gimbal-lock inputs cannot produce
// a domain error.
func QuatToEuler(q mgl64.Quat) (e mgl64.Vec3) {
	sinrCosp := 2 * (q.W*q.X() + q.Y()*q.Z())
	cosrCosp := 1 - 2*(q.X()*q.X()+q.Y()*q.Y())
	e[0] = math.Atan2(sinrCosp, cosrCosp)

	sinp := 2 * (q.W*q.Y() - q.Z()*q.X())
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	e[1] = math.Asin(sinp)

	sinyCosp := 2 * (q.W*q.Z() + q.X()*q.Y())
	cosyCosp := 1 - 2*(q.Y()*q.Y()+q.Z()*q.Z())
	e[2] = math.Atan2(sinyCosp, cosyCosp)

	return e
}

// Decompose splits m into translation and roll/pitch/yaw.
func Decompose(m mgl64.Mat4) (xyz, rpy mgl64.Vec3) {
	xyz = Translation(m)
	rpy = QuatToEuler(mgl64.Mat4ToQuat(m))
	return xyz, rpy
}
