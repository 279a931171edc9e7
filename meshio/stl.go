// Package meshio decodes and encodes triangle meshes in the STL and PLY
// file formats.
//
// Decoders read the whole input before building the mesh so that declared
// counts can be checked against the input size before anything is
// allocated. Every decoder error is a *brep.Error of kind KindFormat or
// KindCapacity citing the byte offset or line involved.
package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/soypat/brep"
	"github.com/soypat/brep/internal/d3"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms3"
)

var (
	// ErrTruncated is matched by errors for inputs that end early.
	ErrTruncated = errors.New("truncated input")
	// ErrNoTriangles is matched by errors for inputs that hold no triangles.
	ErrNoTriangles = errors.New("no triangles")
	// ErrListSize is matched by errors for PLY list sizes outside [0, MaxPLYListSize].
	ErrListSize = errors.New("invalid list size")
)

const (
	// MaxSTLTriangles caps the triangle count of a binary STL.
	MaxSTLTriangles = 100_000_000

	stlHeaderSize   = 80
	stlTriangleSize = 50
	// stlSniffSize is how far past "solid" the ASCII detection looks for keywords.
	stlSniffSize = 255
)

// STLFormat is the encoding of an STL file.
type STLFormat uint8

const (
	STLBinary STLFormat = iota
	STLASCII
)

func (f STLFormat) String() string {
	if f == STLASCII {
		return "ascii"
	}
	return "binary"
}

// STLOptions configures STL decoding.
type STLOptions struct {
	// NoMerge keeps the three vertices of every triangle distinct.
	NoMerge bool
	// MergeEpsilon is the weld distance. Zero selects 1e-6.
	MergeEpsilon float32
	// NoNormals skips vertex normal computation.
	NoNormals bool
	// Progress is called while decoding and merging.
	Progress brep.ProgressFunc
}

// DefaultSTLOptions returns the options used by ReadSTL callers that have no
// preference.
func DefaultSTLOptions() STLOptions {
	return STLOptions{MergeEpsilon: 1e-6}
}

func formatErr(op string, cause error, format string, args ...any) *brep.Error {
	e := brep.Errorf(brep.KindFormat, op, format, args...)
	e.Err = cause
	return e
}

// DetectSTLFormat guesses the encoding of an STL file from its contents.
// An exact binary size match wins, then a header with non-text bytes, then
// a "solid" header followed by STL keywords and text where a binary file
// keeps its triangle count. Anything else is binary.
func DetectSTLFormat(data []byte) STLFormat {
	if len(data) >= stlHeaderSize+4 {
		count := uint64(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
		if count > 0 && uint64(len(data)) == stlHeaderSize+4+stlTriangleSize*count {
			return STLBinary
		}
	}
	header := data[:min(len(data), stlHeaderSize)]
	if !textual(header, false) {
		return STLBinary
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) < 5 || !strings.EqualFold(string(trimmed[:5]), "solid") {
		return STLBinary
	}
	sniff := trimmed[5:min(len(trimmed), 5+stlSniffSize)]
	if !bytes.Contains(sniff, []byte("facet")) && !bytes.Contains(sniff, []byte("endsolid")) {
		return STLBinary
	}
	// A truncated binary file can carry a text header. Its triangle count
	// and first triangle hold control bytes that ASCII never does.
	if len(data) > stlHeaderSize && !textual(data[stlHeaderSize:min(len(data), stlHeaderSize+4+stlTriangleSize)], true) {
		return STLBinary
	}
	return STLASCII
}

// textual reports whether b holds no control characters other than
// whitespace. Bytes above 0x7e are accepted only if high is set.
func textual(b []byte, high bool) bool {
	for _, c := range b {
		switch {
		case c == '\n' || c == '\r' || c == '\t':
		case c < 0x20 || c == 0x7f:
			return false
		case c > 0x7e && !high:
			return false
		}
	}
	return true
}

// ReadSTL decodes the STL file at path.
func ReadSTL(path string, opts STLOptions) (*mesh.Data, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, brep.Wrap(err, brep.KindValidation, "meshio.ReadSTL")
	}
	return decodeSTL(data, path, opts)
}

// DecodeSTL decodes an STL stream, binary or ASCII.
func DecodeSTL(r io.Reader, opts STLOptions) (*mesh.Data, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, brep.Wrap(err, brep.KindValidation, "meshio.DecodeSTL")
	}
	return decodeSTL(data, "stl", opts)
}

func decodeSTL(data []byte, name string, opts STLOptions) (*mesh.Data, error) {
	if opts.MergeEpsilon == 0 {
		opts.MergeEpsilon = DefaultSTLOptions().MergeEpsilon
	}
	var (
		m   *mesh.Data
		err error
	)
	if DetectSTLFormat(data) == STLASCII {
		m, err = decodeASCIISTL(data, name, opts.Progress)
	} else {
		m, err = decodeBinarySTL(data, name, opts.Progress)
	}
	if err != nil {
		return nil, err
	}
	if m.FaceCount() == 0 {
		return nil, formatErr(name, ErrNoTriangles, "file holds no triangles").
			WithHint("check the file was exported with geometry")
	}
	if !opts.NoMerge {
		if _, err := m.MergeDuplicateVertices(opts.MergeEpsilon, opts.Progress); err != nil {
			return nil, err
		}
	}
	return finish(m, name, opts.NoNormals)
}

// finish computes normals and checks the decoded mesh.
func finish(m *mesh.Data, name string, noNormals bool) (*mesh.Data, error) {
	if !noNormals && !m.HasNormals() {
		m.ComputeNormals()
	}
	m.ShrinkToFit()
	if err := m.Validate(); err != nil {
		e := brep.Errorf(brep.KindInternal, name, "decoded mesh is invalid: %v", err).
			WithHint("try re-exporting the file")
		e.Err = brep.ErrInvalidMesh
		return nil, e
	}
	return m, nil
}

func decodeBinarySTL(data []byte, name string, progress brep.ProgressFunc) (*mesh.Data, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, formatErr(name, ErrTruncated, "binary STL of %d bytes is shorter than its %d byte header", len(data), stlHeaderSize+4)
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	if count > MaxSTLTriangles {
		return nil, brep.Errorf(brep.KindCapacity, name, "binary STL declares %d triangles, limit is %d", count, MaxSTLTriangles).
			WithHint("the file is corrupt or not a binary STL")
	}
	want := stlHeaderSize + 4 + stlTriangleSize*int(count)
	if len(data) < want {
		return nil, formatErr(name, ErrTruncated, "binary STL declares %d triangles needing %d bytes, file has %d", count, want, len(data)).
			WithHint("the file was cut short; try re-exporting it")
	}
	m := mesh.New(3*int(count), int(count))
	tick := brep.NewTicker(name, progress, int(count))
	var t stlTriangle
	for i := 0; i < int(count); i++ {
		off := stlHeaderSize + 4 + i*stlTriangleSize
		t.get(data[off:])
		if bad3F32(t.Vertex1) || bad3F32(t.Vertex2) || bad3F32(t.Vertex3) {
			return nil, brep.Errorf(brep.KindFormat, name, "triangle %d at byte %d has a non-finite vertex", i, off)
		}
		a := m.AddVertex(vecFrom3F32(t.Vertex1))
		b := m.AddVertex(vecFrom3F32(t.Vertex2))
		c := m.AddVertex(vecFrom3F32(t.Vertex3))
		m.AddFace(a, b, c)
		if err := tick.Tick(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func decodeASCIISTL(data []byte, name string, progress brep.ProgressFunc) (*mesh.Data, error) {
	const (
		expectSolid = iota
		expectFacet
		expectLoop
		expectVertex1
		expectVertex2
		expectVertex3
		expectEndloop
		expectEndfacet
		expectEOF
	)
	want := [...]string{"solid", "facet normal", "outer loop", "vertex", "vertex", "vertex", "endloop", "endfacet", "end of file"}
	m := mesh.New(0, 0)
	tick := brep.NewTicker(name, progress, len(data)/256)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	state := expectSolid
	line := 0
	var tri [3]ms3.Vec
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		unexpected := func() error {
			return brep.Errorf(brep.KindFormat, name, "line %d: expected %q, got %q", line, want[state], sc.Text()).
				WithHint("the file is not a well formed ASCII STL")
		}
		kw := strings.ToLower(fields[0])
		switch state {
		case expectSolid:
			if kw != "solid" {
				return nil, unexpected()
			}
		case expectFacet:
			if kw == "endsolid" {
				state = expectEOF
				continue
			}
			if kw != "facet" || len(fields) < 2 || strings.ToLower(fields[1]) != "normal" {
				return nil, unexpected()
			}
			// The stored normal is recomputed from the vertices.
			if _, err := parseVec(fields[2:], line, name); err != nil {
				return nil, err
			}
		case expectLoop:
			if kw != "outer" || len(fields) != 2 || strings.ToLower(fields[1]) != "loop" {
				return nil, unexpected()
			}
		case expectVertex1, expectVertex2, expectVertex3:
			if kw != "vertex" {
				return nil, unexpected()
			}
			v, err := parseVec(fields[1:], line, name)
			if err != nil {
				return nil, err
			}
			tri[state-expectVertex1] = v
		case expectEndloop:
			if kw != "endloop" {
				return nil, unexpected()
			}
		case expectEndfacet:
			if kw != "endfacet" {
				return nil, unexpected()
			}
			a := m.AddVertex(tri[0])
			b := m.AddVertex(tri[1])
			c := m.AddVertex(tri[2])
			m.AddFace(a, b, c)
			if err := tick.Tick(); err != nil {
				return nil, err
			}
			state = expectFacet
			continue
		case expectEOF:
			// Some exporters concatenate solids.
			if kw != "solid" {
				return nil, unexpected()
			}
			state = expectFacet
			continue
		}
		state++
	}
	if err := sc.Err(); err != nil {
		return nil, formatErr(name, nil, "line %d: %v", line+1, err)
	}
	if state != expectFacet && state != expectEOF {
		return nil, formatErr(name, ErrTruncated, "line %d: input ended while expecting %q", line, want[state])
	}
	return m, nil
}

func parseVec(fields []string, line int, name string) (ms3.Vec, error) {
	if len(fields) != 3 {
		return ms3.Vec{}, brep.Errorf(brep.KindFormat, name, "line %d: expected 3 coordinates, got %d", line, len(fields))
	}
	var f [3]float32
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return ms3.Vec{}, brep.Errorf(brep.KindFormat, name, "line %d: invalid coordinate %q", line, s)
		}
		f[i] = float32(v)
	}
	return vecFrom3F32(f), nil
}

// WriteBinarySTL writes triangles as a binary STL with normals computed
// from the vertex winding.
func WriteBinarySTL(w io.Writer, tris []ms3.Triangle) error {
	if uint64(len(tris)) > MaxSTLTriangles {
		return brep.Errorf(brep.KindCapacity, "meshio.WriteBinarySTL", "%d triangles exceed the limit of %d", len(tris), MaxSTLTriangles)
	}
	header := stlHeader{Count: uint32(len(tris))}
	copy(header.Header[:], "binary STL")
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &header); err != nil {
		return err
	}
	var b [stlTriangleSize]byte
	for _, tri := range tris {
		d := stlTriangle{
			Normal:  vecTo3F32(d3.TriNormal(tri[0], tri[1], tri[2])),
			Vertex1: vecTo3F32(tri[0]),
			Vertex2: vecTo3F32(tri[1]),
			Vertex3: vecTo3F32(tri[2]),
		}
		d.put(b[:])
		if _, err := bw.Write(b[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteASCIISTL writes triangles as an ASCII STL solid with the given name.
func WriteASCIISTL(w io.Writer, name string, tris []ms3.Triangle) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "solid %s\n", name)
	for _, tri := range tris {
		n := d3.TriNormal(tri[0], tri[1], tri[2])
		fmt.Fprintf(bw, "  facet normal %g %g %g\n    outer loop\n", n.X, n.Y, n.Z)
		for _, v := range tri {
			fmt.Fprintf(bw, "      vertex %g %g %g\n", v.X, v.Y, v.Z)
		}
		bw.WriteString("    endloop\n  endfacet\n")
	}
	fmt.Fprintf(bw, "endsolid %s\n", name)
	return bw.Flush()
}

// WriteSTL writes the mesh as a binary STL.
func WriteSTL(w io.Writer, m *mesh.Data) error {
	return WriteBinarySTL(w, m.Triangles())
}

// stlHeader defines the STL file header.
type stlHeader struct {
	Header [stlHeaderSize]uint8
	Count  uint32
}

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
	_       uint16 // Attribute byte count
}

func (t stlTriangle) put(b []byte) {
	_ = b[stlTriangleSize-1]
	put3F32(b, t.Normal)
	put3F32(b[12:], t.Vertex1)
	put3F32(b[24:], t.Vertex2)
	put3F32(b[36:], t.Vertex3)
	binary.LittleEndian.PutUint16(b[48:], 0)
}

func (t *stlTriangle) get(b []byte) {
	_ = b[stlTriangleSize-1]
	get3F32(b, &t.Normal)
	get3F32(b[12:], &t.Vertex1)
	get3F32(b[24:], &t.Vertex2)
	get3F32(b[36:], &t.Vertex3)
}

func put3F32(b []byte, f [3]float32) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(f[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(f[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(f[2]))
}

func get3F32(b []byte, f *[3]float32) {
	_ = b[11] // early bounds check
	f[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	f[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	f[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
}

func bad3F32(f [3]float32) bool {
	return math32.IsNaN(f[0]) || math32.IsInf(f[0], 0) ||
		math32.IsNaN(f[1]) || math32.IsInf(f[1], 0) ||
		math32.IsNaN(f[2]) || math32.IsInf(f[2], 0)
}

func vecFrom3F32(f [3]float32) ms3.Vec { return ms3.Vec{X: f[0], Y: f[1], Z: f[2]} }

func vecTo3F32(v ms3.Vec) [3]float32 { return [3]float32{v.X, v.Y, v.Z} }
