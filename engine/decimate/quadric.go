package decimate

import (
	"container/heap"
	"context"
	"errors"
	gomath "math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spaghettifunk/decimator/engine/math"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

var ErrEmptyMesh = errors.New("mesh has no triangles")

const (
	// boundaryWeight scales the planes that pin open borders in place.
	boundaryWeight = 1000.0
	// flipThreshold is the minimum cosine between a face normal before and after a collapse.
	flipThreshold = 0.2
	// cancelCheckInterval is how many collapses run between context checks.
	cancelCheckInterval = 1024
)

// Quadric implements Garland-Heckbert quadric error edge collapse. The order of
// collapses depends only on the input mesh, so the output is deterministic and
// the triangle count never grows as the ratio shrinks.
type Quadric struct {
	// PreserveBoundary adds constraint planes along open edges.
	PreserveBoundary bool
}

func NewQuadric() *Quadric {
	return &Quadric{PreserveBoundary: true}
}

func (q *Quadric) Name() string {
	return EngineQuadric
}

func (q *Quadric) Decimate(ctx context.Context, mesh *metadata.Mesh, ratio float64) (*metadata.Mesh, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}
	if mesh.TriangleCount() == 0 {
		return nil, ErrEmptyMesh
	}
	if err := checkFinite(mesh); err != nil {
		return nil, err
	}

	target := TargetTriangles(mesh.TriangleCount(), ratio)
	if target == mesh.TriangleCount() {
		return copyMesh(mesh), nil
	}

	c := newCollapser(mesh, q.PreserveBoundary)
	if err := c.run(ctx, target); err != nil {
		return nil, err
	}
	return c.mesh(mesh), nil
}

// quadric is the symmetric 4x4 error matrix stored as its upper triangle:
// a², ab, ac, ad, b², bc, bd, c², cd, d².
type quadric [10]float64

func planeQuadric(n r3.Vec, d, w float64) quadric {
	return quadric{
		w * n.X * n.X, w * n.X * n.Y, w * n.X * n.Z, w * n.X * d,
		w * n.Y * n.Y, w * n.Y * n.Z, w * n.Y * d,
		w * n.Z * n.Z, w * n.Z * d,
		w * d * d,
	}
}

func (q quadric) add(o quadric) quadric {
	for i := range q {
		q[i] += o[i]
	}
	return q
}

func (q quadric) eval(p r3.Vec) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// optimal solves for the position minimizing the error. It fails when the
// system is close to singular, e.g. on flat or cylindrical regions.
func (q quadric) optimal() (r3.Vec, bool) {
	a00, a01, a02 := q[0], q[1], q[2]
	a11, a12 := q[4], q[5]
	a22 := q[7]
	b0, b1, b2 := -q[3], -q[6], -q[8]

	det := a00*(a11*a22-a12*a12) - a01*(a01*a22-a12*a02) + a02*(a01*a12-a11*a02)
	scale := gomath.Max(gomath.Abs(a00), gomath.Max(gomath.Abs(a11), gomath.Abs(a22)))
	if scale == 0 || gomath.Abs(det) <= 1e-10*scale*scale*scale {
		return r3.Vec{}, false
	}

	x := (b0*(a11*a22-a12*a12) - a01*(b1*a22-a12*b2) + a02*(b1*a12-a11*b2)) / det
	y := (a00*(b1*a22-a12*b2) - b0*(a01*a22-a12*a02) + a02*(a01*b2-b1*a02)) / det
	z := (a00*(a11*b2-b1*a12) - a01*(a01*b2-b1*a02) + b0*(a01*a12-a11*a02)) / det
	p := r3.Vec{X: x, Y: y, Z: z}
	if gomath.IsNaN(x+y+z) || gomath.IsInf(x+y+z, 0) {
		return r3.Vec{}, false
	}
	return p, true
}

type candidate struct {
	cost     float64
	a, b     uint32
	va, vb   uint32
	position r3.Vec
}

// candidateHeap orders by cost, then by vertex pair, so ties never depend on
// insertion order.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].a != h[j].a {
		return h[i].a < h[j].a
	}
	return h[i].b < h[j].b
}
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

type edge [2]uint32

func newEdge(a, b uint32) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

type collapser struct {
	positions   []r3.Vec
	quadrics    []quadric
	vertexAlive []bool
	version     []uint32
	vertexFaces [][]int

	faces     [][3]uint32
	faceAlive []bool
	liveFaces int

	queue      candidateHeap
	deferred   []edge
	checkFlips bool
}

func newCollapser(mesh *metadata.Mesh, preserveBoundary bool) *collapser {
	nv := mesh.VertexCount()
	nf := mesh.TriangleCount()
	c := &collapser{
		positions:   make([]r3.Vec, nv),
		quadrics:    make([]quadric, nv),
		vertexAlive: make([]bool, nv),
		version:     make([]uint32, nv),
		vertexFaces: make([][]int, nv),
		faces:       make([][3]uint32, nf),
		faceAlive:   make([]bool, nf),
		liveFaces:   nf,
		checkFlips:  true,
	}
	for i, v := range mesh.Vertices {
		c.positions[i] = toR3(v)
	}

	edgeUse := make(map[edge]int)
	edgeFace := make(map[edge]int)
	for f := 0; f < nf; f++ {
		face := [3]uint32{mesh.Indices[3*f], mesh.Indices[3*f+1], mesh.Indices[3*f+2]}
		c.faces[f] = face
		c.faceAlive[f] = true
		for _, v := range face {
			c.vertexAlive[v] = true
			c.vertexFaces[v] = append(c.vertexFaces[v], f)
		}

		n, area := c.faceNormal(face)
		if area > 0 {
			p := planeQuadric(n, -r3.Dot(n, c.positions[face[0]]), area)
			for _, v := range face {
				c.quadrics[v] = c.quadrics[v].add(p)
			}
		}
		for k := 0; k < 3; k++ {
			e := newEdge(face[k], face[(k+1)%3])
			if e[0] == e[1] {
				continue
			}
			edgeUse[e]++
			edgeFace[e] = f
		}
	}

	edges := make([]edge, 0, len(edgeUse))
	for e := range edgeUse {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})

	if preserveBoundary {
		for _, e := range edges {
			if edgeUse[e] != 1 {
				continue
			}
			n, area := c.faceNormal(c.faces[edgeFace[e]])
			if area == 0 {
				continue
			}
			dir := r3.Sub(c.positions[e[1]], c.positions[e[0]])
			length := r3.Norm(dir)
			if length == 0 {
				continue
			}
			bn := r3.Unit(r3.Cross(dir, n))
			p := planeQuadric(bn, -r3.Dot(bn, c.positions[e[0]]), boundaryWeight*length*length)
			c.quadrics[e[0]] = c.quadrics[e[0]].add(p)
			c.quadrics[e[1]] = c.quadrics[e[1]].add(p)
		}
	}

	c.queue = make(candidateHeap, 0, len(edges))
	for _, e := range edges {
		c.queue = append(c.queue, c.candidate(e[0], e[1]))
	}
	heap.Init(&c.queue)
	return c
}

func (c *collapser) faceNormal(face [3]uint32) (r3.Vec, float64) {
	p0, p1, p2 := c.positions[face[0]], c.positions[face[1]], c.positions[face[2]]
	cross := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
	norm := r3.Norm(cross)
	if norm == 0 {
		return r3.Vec{}, 0
	}
	return r3.Scale(1/norm, cross), norm / 2
}

func (c *collapser) candidate(a, b uint32) candidate {
	q := c.quadrics[a].add(c.quadrics[b])
	p, ok := q.optimal()
	cost := gomath.Inf(1)
	if ok {
		cost = q.eval(p)
	}
	mid := r3.Scale(0.5, r3.Add(c.positions[a], c.positions[b]))
	for _, alt := range []r3.Vec{c.positions[a], c.positions[b], mid} {
		if e := q.eval(alt); e < cost {
			cost, p = e, alt
		}
	}
	return candidate{
		cost:     cost,
		a:        a,
		b:        b,
		va:       c.version[a],
		vb:       c.version[b],
		position: p,
	}
}

func (c *collapser) run(ctx context.Context, target int) error {
	progressed := false
	for iterations := 0; c.liveFaces > target; iterations++ {
		if iterations%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if c.queue.Len() == 0 {
			switch {
			case len(c.deferred) > 0 && progressed:
				progressed = false
			case len(c.deferred) > 0 && c.checkFlips:
				// Every remaining collapse folds a face; allow them so the target is reached.
				c.checkFlips = false
			default:
				return nil
			}
			c.requeueDeferred()
			continue
		}

		cand := heap.Pop(&c.queue).(candidate)
		if !c.vertexAlive[cand.a] || !c.vertexAlive[cand.b] ||
			c.version[cand.a] != cand.va || c.version[cand.b] != cand.vb {
			continue
		}
		if c.checkFlips && c.flips(cand.a, cand.b, cand.position) {
			c.deferred = append(c.deferred, edge{cand.a, cand.b})
			continue
		}
		c.collapse(cand.a, cand.b, cand.position)
		progressed = true
	}
	return nil
}

func (c *collapser) requeueDeferred() {
	seen := make(map[edge]bool, len(c.deferred))
	for _, e := range c.deferred {
		if seen[e] || !c.vertexAlive[e[0]] || !c.vertexAlive[e[1]] {
			continue
		}
		seen[e] = true
		heap.Push(&c.queue, c.candidate(e[0], e[1]))
	}
	c.deferred = c.deferred[:0]
}

// flips reports whether moving a and b to p turns any surviving face over.
func (c *collapser) flips(a, b uint32, p r3.Vec) bool {
	for _, v := range [2]uint32{a, b} {
		for _, f := range c.vertexFaces[v] {
			if !c.faceAlive[f] {
				continue
			}
			face := c.faces[f]
			if contains(face, a) && contains(face, b) {
				continue
			}
			before, area := c.faceNormal(face)
			if area == 0 {
				continue
			}
			moved := [3]r3.Vec{c.positions[face[0]], c.positions[face[1]], c.positions[face[2]]}
			for k, u := range face {
				if u == a || u == b {
					moved[k] = p
				}
			}
			cross := r3.Cross(r3.Sub(moved[1], moved[0]), r3.Sub(moved[2], moved[0]))
			norm := r3.Norm(cross)
			if norm == 0 || r3.Dot(before, cross)/norm < flipThreshold {
				return true
			}
		}
	}
	return false
}

// collapse merges b into a, moving a to p.
func (c *collapser) collapse(a, b uint32, p r3.Vec) {
	c.positions[a] = p
	c.quadrics[a] = c.quadrics[a].add(c.quadrics[b])
	c.vertexAlive[b] = false
	c.version[a]++
	c.version[b]++

	for _, f := range c.vertexFaces[b] {
		if !c.faceAlive[f] {
			continue
		}
		face := &c.faces[f]
		if contains(*face, a) {
			c.faceAlive[f] = false
			c.liveFaces--
			continue
		}
		for k := range face {
			if face[k] == b {
				face[k] = a
			}
		}
		c.vertexFaces[a] = append(c.vertexFaces[a], f)
	}
	c.vertexFaces[b] = nil

	live := c.vertexFaces[a][:0]
	for _, f := range c.vertexFaces[a] {
		if c.faceAlive[f] {
			live = append(live, f)
		}
	}
	c.vertexFaces[a] = live

	neighbours := make(map[uint32]bool)
	for _, f := range live {
		for _, u := range c.faces[f] {
			if u != a {
				neighbours[u] = true
			}
		}
	}
	ordered := make([]uint32, 0, len(neighbours))
	for u := range neighbours {
		ordered = append(ordered, u)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	for _, u := range ordered {
		e := newEdge(a, u)
		heap.Push(&c.queue, c.candidate(e[0], e[1]))
	}
}

// mesh rebuilds an indexed mesh from the surviving faces, keeping their original order.
func (c *collapser) mesh(template *metadata.Mesh) *metadata.Mesh {
	out := template.CloneEmpty()
	remap := make(map[uint32]uint32)
	out.Indices = make([]uint32, 0, 3*c.liveFaces)
	for f, face := range c.faces {
		if !c.faceAlive[f] {
			continue
		}
		for _, v := range face {
			idx, ok := remap[v]
			if !ok {
				idx = uint32(len(out.Vertices))
				remap[v] = idx
				out.Vertices = append(out.Vertices, fromR3(c.positions[v]))
			}
			out.Indices = append(out.Indices, idx)
		}
	}
	out.UpdateExtents()
	return out
}

func contains(face [3]uint32, v uint32) bool {
	return face[0] == v || face[1] == v || face[2] == v
}

func toR3(v math.Vec3) r3.Vec {
	return r3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func fromR3(v r3.Vec) math.Vec3 {
	return math.NewVec3(float32(v.X), float32(v.Y), float32(v.Z))
}
