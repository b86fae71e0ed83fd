package bvh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-nav/internal/geometry"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

// ErrCorruptTree is returned when a packed tree fails validation.
var ErrCorruptTree = errors.New("corrupt bvh")

// Packed is the flat serialized form of a Tree. Triangles are stored as
// 9 floats each, nodes as 6 bound floats plus 4 link ints.
type Packed struct {
	Verts     []float32 `msgpack:"v"`
	Materials []uint16  `msgpack:"m"`
	Sources   []uint8   `msgpack:"s"`
	Instances []uint32  `msgpack:"i"`
	Bounds    []float32 `msgpack:"b"`
	Links     []int32   `msgpack:"l"`
	Faces     []int32   `msgpack:"f"`
}

// Pack flattens the tree for serialization.
func (t *Tree) Pack() *Packed {
	n := len(t.Triangles)
	p := &Packed{
		Verts:     make([]float32, 0, n*9),
		Materials: make([]uint16, n),
		Sources:   make([]uint8, n),
		Instances: make([]uint32, n),
		Bounds:    make([]float32, 0, len(t.Nodes)*6),
		Links:     make([]int32, 0, len(t.Nodes)*4),
		Faces:     append([]int32(nil), t.Faces...),
	}
	for i := range t.Triangles {
		tri := &t.Triangles[i]
		p.Verts = append(p.Verts,
			tri.A.X, tri.A.Y, tri.A.Z,
			tri.B.X, tri.B.Y, tri.B.Z,
			tri.C.X, tri.C.Y, tri.C.Z)
		p.Materials[i] = uint16(tri.Material)
		p.Sources[i] = uint8(tri.Source)
		p.Instances[i] = tri.Instance
	}
	for i := range t.Nodes {
		nd := &t.Nodes[i]
		p.Bounds = append(p.Bounds,
			nd.Bounds.Min.X, nd.Bounds.Min.Y, nd.Bounds.Min.Z,
			nd.Bounds.Max.X, nd.Bounds.Max.Y, nd.Bounds.Max.Z)
		p.Links = append(p.Links, nd.Left, nd.Right, nd.Start, nd.Count)
	}
	return p
}

// Unpack rebuilds a tree and checks that every index is in range.
func Unpack(p *Packed) (*Tree, error) {
	if len(p.Verts)%9 != 0 {
		return nil, fmt.Errorf("%w: vertex array length %d", ErrCorruptTree, len(p.Verts))
	}
	n := len(p.Verts) / 9
	if len(p.Materials) != n || len(p.Sources) != n || len(p.Instances) != n || len(p.Faces) != n {
		return nil, fmt.Errorf("%w: attribute arrays do not match %d triangles", ErrCorruptTree, n)
	}
	if len(p.Bounds)%6 != 0 || len(p.Links)%4 != 0 || len(p.Bounds)/6 != len(p.Links)/4 {
		return nil, fmt.Errorf("%w: node arrays mismatched", ErrCorruptTree)
	}
	nodes := len(p.Bounds) / 6
	if (n == 0) != (nodes == 0) {
		return nil, fmt.Errorf("%w: %d triangles with %d nodes", ErrCorruptTree, n, nodes)
	}

	t := &Tree{
		Triangles: make([]geometry.Triangle, n),
		Nodes:     make([]Node, nodes),
		Faces:     append([]int32(nil), p.Faces...),
	}
	for i := range t.Triangles {
		v := p.Verts[i*9 : i*9+9]
		t.Triangles[i] = geometry.Triangle{
			A:        math.Vec3{X: v[0], Y: v[1], Z: v[2]},
			B:        math.Vec3{X: v[3], Y: v[4], Z: v[5]},
			C:        math.Vec3{X: v[6], Y: v[7], Z: v[8]},
			Material: geometry.Material(p.Materials[i]),
			Source:   geometry.SourceType(p.Sources[i]),
			Instance: p.Instances[i],
		}
	}
	for _, f := range t.Faces {
		if f < 0 || int(f) >= n {
			return nil, fmt.Errorf("%w: face index %d out of range", ErrCorruptTree, f)
		}
	}
	for i := range t.Nodes {
		b := p.Bounds[i*6 : i*6+6]
		l := p.Links[i*4 : i*4+4]
		nd := Node{
			Bounds: geometry.AABB{
				Min: math.Vec3{X: b[0], Y: b[1], Z: b[2]},
				Max: math.Vec3{X: b[3], Y: b[4], Z: b[5]},
			},
			Left: l[0], Right: l[1], Start: l[2], Count: l[3],
		}
		if nd.Count > 0 {
			if nd.Start < 0 || int(nd.Start+nd.Count) > n {
				return nil, fmt.Errorf("%w: node %d leaf range out of bounds", ErrCorruptTree, i)
			}
		} else if nd.Left <= int32(i) || nd.Right <= int32(i) || int(nd.Left) >= nodes || int(nd.Right) >= nodes {
			// Children always follow their parent in build order.
			return nil, fmt.Errorf("%w: node %d child out of range", ErrCorruptTree, i)
		}
		t.Nodes[i] = nd
	}
	return t, nil
}
