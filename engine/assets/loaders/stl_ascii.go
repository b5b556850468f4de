package loaders

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spaghettifunk/decimator/engine/math"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

func decodeASCIISTL(data []byte) (*metadata.Mesh, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		mb      *metadata.MeshBuilder
		loop    []math.Vec3
		inLoop  bool
		lineNum int
	)

	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "solid":
			if mb == nil {
				template := &metadata.Mesh{
					Encoding: metadata.EncodingASCII,
					Name:     strings.Join(fields[1:], " "),
				}
				mb = metadata.NewMeshBuilder(template)
			}
		case "facet", "endsolid":
			// normals are recomputed on save
		case "outer":
			if inLoop {
				return nil, fmt.Errorf("%w: line %d: nested loop", ErrMalformed, lineNum)
			}
			inLoop = true
			loop = loop[:0]
		case "vertex":
			if !inLoop {
				return nil, fmt.Errorf("%w: line %d: vertex outside of a loop", ErrMalformed, lineNum)
			}
			v, err := parseVertex(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNum, err)
			}
			loop = append(loop, v)
		case "endloop":
			if !inLoop || mb == nil {
				return nil, fmt.Errorf("%w: line %d: endloop without loop", ErrMalformed, lineNum)
			}
			if len(loop) < 3 {
				return nil, fmt.Errorf("%w: line %d: facet has %d vertices", ErrMalformed, lineNum, len(loop))
			}
			// Polygons with more than three vertices are fanned.
			for i := 1; i+1 < len(loop); i++ {
				mb.AddTriangle(math.Triangle{loop[0], loop[i], loop[i+1]})
			}
			inLoop = false
		case "endfacet":
			if inLoop {
				return nil, fmt.Errorf("%w: line %d: endfacet inside a loop", ErrMalformed, lineNum)
			}
		default:
			return nil, fmt.Errorf("%w: line %d: unexpected keyword %q", ErrMalformed, lineNum, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if inLoop {
		return nil, fmt.Errorf("%w: unterminated loop", ErrMalformed)
	}
	if mb == nil {
		return nil, fmt.Errorf("%w: missing solid", ErrMalformed)
	}
	return mb.Mesh(), nil
}

func parseVertex(fields []string) (math.Vec3, error) {
	if len(fields) != 3 {
		return math.Vec3{}, fmt.Errorf("vertex needs 3 coordinates, got %d", len(fields))
	}
	var c [3]float32
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return math.Vec3{}, fmt.Errorf("invalid coordinate %q", f)
		}
		c[i] = float32(v)
	}
	return math.NewVec3(c[0], c[1], c[2]), nil
}

func encodeASCIISTL(w io.Writer, mesh *metadata.Mesh) error {
	bw := bufio.NewWriter(w)
	name := mesh.Name
	if name == "" {
		name = "mesh"
	}

	fmt.Fprintf(bw, "solid %s\n", name)
	for i := 0; i < mesh.TriangleCount(); i++ {
		t := mesh.Triangle(i)
		n := math.GeometryFaceNormal(t)
		fmt.Fprintf(bw, "  facet normal %s\n", formatVec3(n))
		fmt.Fprintf(bw, "    outer loop\n")
		for _, v := range t {
			fmt.Fprintf(bw, "      vertex %s\n", formatVec3(v))
		}
		fmt.Fprintf(bw, "    endloop\n")
		fmt.Fprintf(bw, "  endfacet\n")
	}
	fmt.Fprintf(bw, "endsolid %s\n", name)
	return bw.Flush()
}

func formatVec3(v math.Vec3) string {
	return formatFloat(v.X) + " " + formatFloat(v.Y) + " " + formatFloat(v.Z)
}

// formatFloat uses the shortest representation that parses back to the same float32.
func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'e', -1, 32)
}
