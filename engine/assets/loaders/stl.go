package loaders

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	gomath "math"
	"os"
	"strings"

	"github.com/spaghettifunk/decimator/engine/math"
	"github.com/spaghettifunk/decimator/engine/metadata"
)

const (
	stlCountSize  = 4
	stlFacetSize  = 50
	stlPrefixSize = metadata.STLHeaderSize + stlCountSize
)

var (
	ErrMalformed   = errors.New("malformed stl")
	ErrEmptyMesh   = errors.New("mesh has no triangles")
	ErrUnsupported = errors.New("unsupported stl encoding")
)

// OutputFormat selects the encoding used when saving.
type OutputFormat string

const (
	// FormatPreserve writes meshes back in the encoding they were read from.
	FormatPreserve OutputFormat = "preserve"
	FormatBinary   OutputFormat = "binary"
	FormatASCII    OutputFormat = "ascii"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPreserve:
		return FormatPreserve, nil
	case FormatBinary:
		return FormatBinary, nil
	case FormatASCII:
		return FormatASCII, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

type STLLoader struct {
	Format OutputFormat
}

func (sl *STLLoader) Load(path string) (*metadata.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeSTL(data)
}

func (sl *STLLoader) Save(path string, mesh *metadata.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := EncodeSTL(w, mesh, sl.encodingFor(mesh)); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (sl *STLLoader) Unload(mesh *metadata.Mesh) error {
	mesh.Release()
	return nil
}

func (sl *STLLoader) encodingFor(mesh *metadata.Mesh) metadata.Encoding {
	switch sl.Format {
	case FormatBinary:
		return metadata.EncodingBinary
	case FormatASCII:
		return metadata.EncodingASCII
	default:
		return mesh.Encoding
	}
}

// DecodeSTL parses a binary or ASCII STL document. A file is binary when its
// size matches the facet count in its header exactly; otherwise it must start
// with the `solid` keyword.
func DecodeSTL(data []byte) (*metadata.Mesh, error) {
	var (
		mesh *metadata.Mesh
		err  error
	)
	switch {
	case isBinarySTL(data):
		mesh, err = decodeBinarySTL(data)
	case hasSolidPrefix(data):
		mesh, err = decodeASCIISTL(data)
	case len(data) < stlPrefixSize:
		return nil, fmt.Errorf("%w: %d bytes is shorter than a binary header", ErrMalformed, len(data))
	default:
		n := binary.LittleEndian.Uint32(data[metadata.STLHeaderSize:])
		return nil, fmt.Errorf("%w: header declares %d facets but file holds %d bytes", ErrMalformed, n, len(data))
	}
	if err != nil {
		return nil, err
	}
	if mesh.TriangleCount() == 0 {
		return nil, ErrEmptyMesh
	}
	return mesh, nil
}

func isBinarySTL(data []byte) bool {
	if len(data) < stlPrefixSize {
		return false
	}
	n := uint64(binary.LittleEndian.Uint32(data[metadata.STLHeaderSize:]))
	return uint64(stlPrefixSize)+n*stlFacetSize == uint64(len(data))
}

func hasSolidPrefix(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) >= 5 && strings.EqualFold(string(trimmed[:5]), "solid")
}

func decodeBinarySTL(data []byte) (*metadata.Mesh, error) {
	template := &metadata.Mesh{Encoding: metadata.EncodingBinary}
	copy(template.Header[:], data[:metadata.STLHeaderSize])

	n := int(binary.LittleEndian.Uint32(data[metadata.STLHeaderSize:]))
	mb := metadata.NewMeshBuilder(template)
	for i := 0; i < n; i++ {
		rec := data[stlPrefixSize+i*stlFacetSize:]
		var t math.Triangle
		for v := range t {
			// Skip the stored normal; it is recomputed on save.
			off := 12 + 12*v
			t[v] = math.NewVec3(
				gomath.Float32frombits(binary.LittleEndian.Uint32(rec[off:])),
				gomath.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:])),
				gomath.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:])),
			)
		}
		mb.AddTriangle(t)
	}
	return mb.Mesh(), nil
}

// EncodeSTL writes mesh to w using the given encoding.
func EncodeSTL(w io.Writer, mesh *metadata.Mesh, enc metadata.Encoding) error {
	switch enc {
	case metadata.EncodingBinary:
		return encodeBinarySTL(w, mesh)
	case metadata.EncodingASCII:
		return encodeASCIISTL(w, mesh)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupported, enc)
	}
}

func encodeBinarySTL(w io.Writer, mesh *metadata.Mesh) error {
	header := binaryHeader(mesh)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	count := mesh.TriangleCount()
	if err := binary.Write(w, binary.LittleEndian, uint32(count)); err != nil {
		return err
	}

	var rec [stlFacetSize]byte
	for i := 0; i < count; i++ {
		t := mesh.Triangle(i)
		putVec3(rec[0:], math.GeometryFaceNormal(t))
		putVec3(rec[12:], t[0])
		putVec3(rec[24:], t[1])
		putVec3(rec[36:], t[2])
		binary.LittleEndian.PutUint16(rec[48:], 0)
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

// binaryHeader keeps the header read from a binary input. Meshes that came from
// ASCII get a generated one, which must not begin with `solid`.
func binaryHeader(mesh *metadata.Mesh) [metadata.STLHeaderSize]byte {
	if mesh.Encoding == metadata.EncodingBinary {
		return mesh.Header
	}
	var header [metadata.STLHeaderSize]byte
	text := "binary STL"
	if mesh.Name != "" {
		text += ": " + mesh.Name
	}
	copy(header[:], text)
	return header
}

func putVec3(b []byte, v math.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], gomath.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], gomath.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], gomath.Float32bits(v.Z))
}
