package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/soypat/brep"
	"github.com/soypat/brep/mesh"
	"github.com/soypat/glgl/math/ms2"
	"github.com/soypat/glgl/math/ms3"
)

// MaxPLYListSize caps the length of a PLY list property. Larger or negative
// sizes are rejected before any allocation.
const MaxPLYListSize = 10_000_000

// PLYFormat is the encoding of a PLY body.
type PLYFormat uint8

const (
	PLYASCII PLYFormat = iota
	PLYBinaryLittleEndian
	PLYBinaryBigEndian
)

func (f PLYFormat) String() string {
	switch f {
	case PLYASCII:
		return "ascii"
	case PLYBinaryLittleEndian:
		return "binary_little_endian"
	case PLYBinaryBigEndian:
		return "binary_big_endian"
	}
	return "unknown"
}

func (f PLYFormat) order() binary.ByteOrder {
	if f == PLYBinaryBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// PLYOptions configures PLY decoding.
type PLYOptions struct {
	// NoNormals skips vertex normal computation when the file has none.
	NoNormals bool
	Progress  brep.ProgressFunc
}

type plyType uint8

const (
	plyInvalid plyType = iota
	plyInt8
	plyUint8
	plyInt16
	plyUint16
	plyInt32
	plyUint32
	plyFloat32
	plyFloat64
)

func parsePLYType(s string) plyType {
	switch s {
	case "char", "int8":
		return plyInt8
	case "uchar", "uint8":
		return plyUint8
	case "short", "int16":
		return plyInt16
	case "ushort", "uint16":
		return plyUint16
	case "int", "int32":
		return plyInt32
	case "uint", "uint32":
		return plyUint32
	case "float", "float32":
		return plyFloat32
	case "double", "float64":
		return plyFloat64
	}
	return plyInvalid
}

func (t plyType) size() int {
	switch t {
	case plyInt8, plyUint8:
		return 1
	case plyInt16, plyUint16:
		return 2
	case plyInt32, plyUint32, plyFloat32:
		return 4
	case plyFloat64:
		return 8
	}
	return 0
}

func (t plyType) integer() bool { return t >= plyInt8 && t <= plyUint32 }

type plyProperty struct {
	name      string
	typ       plyType
	list      bool
	countType plyType
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	format   PLYFormat
	elements []plyElement
	// size is the header length in bytes, end_header line included.
	size int
}

// ReadPLY decodes the PLY file at path.
func ReadPLY(path string, opts PLYOptions) (*mesh.Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, brep.Wrap(err, brep.KindValidation, "meshio.ReadPLY")
	}
	defer f.Close()
	return decodePLY(f, path, opts)
}

// DecodePLY decodes a PLY stream in any of the three PLY encodings. Vertex
// positions, normals and texture coordinates are read from the "vertex"
// element and polygons from the vertex_indices list of the "face" element.
// Polygons are fan triangulated. Other elements and properties are skipped.
func DecodePLY(r io.Reader, opts PLYOptions) (*mesh.Data, error) {
	return decodePLY(r, "ply", opts)
}

func decodePLY(r io.Reader, name string, opts PLYOptions) (*mesh.Data, error) {
	br := bufio.NewReader(r)
	h, err := readPLYHeader(br, name)
	if err != nil {
		return nil, err
	}
	var body plyBody
	if h.format == PLYASCII {
		sc := bufio.NewScanner(br)
		sc.Buffer(make([]byte, 0, 4096), 1<<20)
		sc.Split(bufio.ScanWords)
		body = &plyASCIIBody{sc: sc, name: name}
	} else {
		body = &plyBinaryBody{r: br, order: h.format.order(), off: int64(h.size), name: name}
	}

	total := 0
	for _, e := range h.elements {
		total += e.count
	}
	tick := brep.NewTicker(name, opts.Progress, total)
	m := mesh.New(0, 0)
	var normals []ms3.Vec
	var uvs []ms2.Vec
	for _, e := range h.elements {
		var err error
		switch e.name {
		case "vertex":
			normals, uvs, err = readPLYVertices(body, name, e, m, tick)
		case "face":
			err = readPLYFaces(body, name, e, m, tick)
		default:
			err = skipPLYElement(body, e, tick)
		}
		if err != nil {
			return nil, err
		}
	}
	if m.FaceCount() == 0 {
		return nil, formatErr(name, ErrNoTriangles, "file holds no faces")
	}
	nv := uint32(m.VertexCount())
	for i, idx := range m.Indices {
		if idx >= nv {
			return nil, brep.Errorf(brep.KindFormat, name, "face %d references vertex %d of %d", i/3, idx, nv)
		}
	}
	if normals != nil {
		m.Normals = normals
	}
	if uvs != nil {
		m.UVs = uvs
	}
	return finish(m, name, opts.NoNormals)
}

func readPLYHeader(br *bufio.Reader, name string) (plyHeader, error) {
	var h plyHeader
	line := 0
	formatSeen := false
	for {
		s, err := br.ReadString('\n')
		h.size += len(s)
		line++
		if err != nil {
			if err == io.EOF {
				return h, formatErr(name, ErrTruncated, "line %d: input ended before end_header", line)
			}
			return h, brep.Wrap(err, brep.KindValidation, name)
		}
		fields := strings.Fields(s)
		if line == 1 {
			if len(fields) != 1 || fields[0] != "ply" {
				return h, brep.Errorf(brep.KindFormat, name, "line 1: missing ply magic, got %q", strings.TrimSpace(s)).
					WithHint("the file is not a PLY file")
			}
			continue
		}
		if len(fields) == 0 {
			continue
		}
		bad := func(format string, args ...any) error {
			return brep.Errorf(brep.KindFormat, name, "line %d: "+format, append([]any{line}, args...)...)
		}
		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			if len(fields) != 3 {
				return h, bad("malformed format line %q", strings.TrimSpace(s))
			}
			switch fields[1] {
			case "ascii":
				h.format = PLYASCII
			case "binary_little_endian":
				h.format = PLYBinaryLittleEndian
			case "binary_big_endian":
				h.format = PLYBinaryBigEndian
			default:
				return h, bad("unknown format %q", fields[1])
			}
			formatSeen = true
		case "element":
			if len(fields) != 3 {
				return h, bad("malformed element line %q", strings.TrimSpace(s))
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return h, bad("invalid element count %q", fields[2])
			}
			h.elements = append(h.elements, plyElement{name: fields[1], count: n})
		case "property":
			if len(h.elements) == 0 {
				return h, bad("property before any element")
			}
			var p plyProperty
			switch {
			case len(fields) == 5 && fields[1] == "list":
				p = plyProperty{name: fields[4], list: true, countType: parsePLYType(fields[2]), typ: parsePLYType(fields[3])}
				if !p.countType.integer() {
					return h, bad("list count type %q is not an integer type", fields[2])
				}
			case len(fields) == 3:
				p = plyProperty{name: fields[2], typ: parsePLYType(fields[1])}
			default:
				return h, bad("malformed property line %q", strings.TrimSpace(s))
			}
			if p.typ == plyInvalid {
				return h, bad("unknown property type in %q", strings.TrimSpace(s))
			}
			e := &h.elements[len(h.elements)-1]
			e.props = append(e.props, p)
		case "end_header":
			if !formatSeen {
				return h, bad("end_header before format")
			}
			return h, nil
		default:
			return h, bad("unknown header keyword %q", fields[0])
		}
	}
}

// plyBody reads property values from a PLY body.
type plyBody interface {
	scalar(t plyType) (float64, error)
	// listSize reads a list count and checks it against MaxPLYListSize.
	listSize(t plyType) (int, error)
}

func checkListSize(name string, n float64, where string) (int, error) {
	if n < 0 || n > MaxPLYListSize || n != math.Trunc(n) {
		e := brep.Errorf(brep.KindCapacity, name, "%s: invalid list size %.0f, must be within [0, %d]", where, n, MaxPLYListSize).
			WithHint("the file is corrupt")
		e.Err = ErrListSize
		return 0, e
	}
	return int(n), nil
}

type plyASCIIBody struct {
	sc    *bufio.Scanner
	token int
	name  string
}

func (b *plyASCIIBody) scalar(t plyType) (float64, error) {
	if !b.sc.Scan() {
		if err := b.sc.Err(); err != nil {
			return 0, formatErr(b.name, nil, "body token %d: %v", b.token+1, err)
		}
		return 0, formatErr(b.name, ErrTruncated, "body ended at token %d", b.token+1)
	}
	b.token++
	v, err := strconv.ParseFloat(b.sc.Text(), 64)
	if err != nil {
		return 0, brep.Errorf(brep.KindFormat, b.name, "body token %d: invalid number %q", b.token, b.sc.Text())
	}
	if t.integer() && v != math.Trunc(v) {
		return 0, brep.Errorf(brep.KindFormat, b.name, "body token %d: %q is not an integer", b.token, b.sc.Text())
	}
	return v, nil
}

func (b *plyASCIIBody) listSize(t plyType) (int, error) {
	n, err := b.scalar(t)
	if err != nil {
		return 0, err
	}
	return checkListSize(b.name, n, fmt.Sprintf("body token %d", b.token))
}

type plyBinaryBody struct {
	r     *bufio.Reader
	order binary.ByteOrder
	buf   [8]byte
	off   int64
	name  string
}

func (b *plyBinaryBody) scalar(t plyType) (float64, error) {
	sz := t.size()
	if _, err := io.ReadFull(b.r, b.buf[:sz]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, formatErr(b.name, ErrTruncated, "byte %d: body ended reading a %d byte value", b.off, sz)
		}
		return 0, brep.Wrap(err, brep.KindValidation, b.name)
	}
	b.off += int64(sz)
	p := b.buf[:sz]
	switch t {
	case plyInt8:
		return float64(int8(p[0])), nil
	case plyUint8:
		return float64(p[0]), nil
	case plyInt16:
		return float64(int16(b.order.Uint16(p))), nil
	case plyUint16:
		return float64(b.order.Uint16(p)), nil
	case plyInt32:
		return float64(int32(b.order.Uint32(p))), nil
	case plyUint32:
		return float64(b.order.Uint32(p)), nil
	case plyFloat32:
		return float64(math.Float32frombits(b.order.Uint32(p))), nil
	case plyFloat64:
		return math.Float64frombits(b.order.Uint64(p)), nil
	}
	return 0, brep.Errorf(brep.KindInternal, b.name, "unhandled property type %d", t)
}

func (b *plyBinaryBody) listSize(t plyType) (int, error) {
	off := b.off
	n, err := b.scalar(t)
	if err != nil {
		return 0, err
	}
	return checkListSize(b.name, n, fmt.Sprintf("byte %d", off))
}

func skipPLYProperty(body plyBody, p plyProperty) error {
	if !p.list {
		_, err := body.scalar(p.typ)
		return err
	}
	n, err := body.listSize(p.countType)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := body.scalar(p.typ); err != nil {
			return err
		}
	}
	return nil
}

func skipPLYElement(body plyBody, e plyElement, tick *brep.Ticker) error {
	for i := 0; i < e.count; i++ {
		for _, p := range e.props {
			if err := skipPLYProperty(body, p); err != nil {
				return err
			}
		}
		if err := tick.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// allocHint bounds up front allocations by a declared element count.
func allocHint(n int) int { return min(n, 1<<20) }

func readPLYVertices(body plyBody, name string, e plyElement, m *mesh.Data, tick *brep.Ticker) (normals []ms3.Vec, uvs []ms2.Vec, err error) {
	// Slots 0-2 position, 3-5 normal, 6-7 texture coordinate.
	slot := make([]int, len(e.props))
	var have [8]bool
	for i, p := range e.props {
		slot[i] = -1
		if p.list {
			continue
		}
		switch p.name {
		case "x", "y", "z":
			slot[i] = int(p.name[0] - 'x')
		case "nx", "ny", "nz":
			slot[i] = 3 + int(p.name[1]-'x')
		case "u", "s", "texture_u", "texture_s":
			slot[i] = 6
		case "v", "t", "texture_v", "texture_t":
			slot[i] = 7
		}
		if slot[i] >= 0 {
			have[slot[i]] = true
		}
	}
	if !have[0] || !have[1] || !have[2] {
		return nil, nil, brep.Errorf(brep.KindFormat, name, "vertex element lacks x, y or z property")
	}
	hasNormals := have[3] && have[4] && have[5]
	hasUVs := have[6] && have[7]
	m.Positions = make([]ms3.Vec, 0, allocHint(e.count))
	if hasNormals {
		normals = make([]ms3.Vec, 0, allocHint(e.count))
	}
	if hasUVs {
		uvs = make([]ms2.Vec, 0, allocHint(e.count))
	}
	var vals [8]float32
	for i := 0; i < e.count; i++ {
		for k, p := range e.props {
			if slot[k] < 0 {
				if err := skipPLYProperty(body, p); err != nil {
					return nil, nil, err
				}
				continue
			}
			v, err := body.scalar(p.typ)
			if err != nil {
				return nil, nil, err
			}
			vals[slot[k]] = float32(v)
		}
		pos := ms3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}
		if bad3F32(vecTo3F32(pos)) {
			return nil, nil, brep.Errorf(brep.KindFormat, name, "vertex %d has a non-finite position", i)
		}
		m.AddVertex(pos)
		if hasNormals {
			normals = append(normals, ms3.Vec{X: vals[3], Y: vals[4], Z: vals[5]})
		}
		if hasUVs {
			uvs = append(uvs, ms2.Vec{X: vals[6], Y: vals[7]})
		}
		if err := tick.Tick(); err != nil {
			return nil, nil, err
		}
	}
	return normals, uvs, nil
}

func readPLYFaces(body plyBody, name string, e plyElement, m *mesh.Data, tick *brep.Ticker) error {
	m.Indices = make([]uint32, 0, 3*allocHint(e.count))
	var poly []uint32
	for i := 0; i < e.count; i++ {
		for _, p := range e.props {
			if !p.list || (p.name != "vertex_indices" && p.name != "vertex_index") {
				if err := skipPLYProperty(body, p); err != nil {
					return err
				}
				continue
			}
			n, err := body.listSize(p.countType)
			if err != nil {
				return err
			}
			poly = poly[:0]
			for k := 0; k < n; k++ {
				v, err := body.scalar(p.typ)
				if err != nil {
					return err
				}
				if v < 0 || v >= math.MaxUint32 {
					return brep.Errorf(brep.KindFormat, name, "face %d has invalid vertex index %v", i, v)
				}
				poly = append(poly, uint32(v))
			}
			for k := 2; k < len(poly); k++ {
				m.AddFace(poly[0], poly[k-1], poly[k])
			}
		}
		if err := tick.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// WritePLY encodes m as a PLY file. Normals and texture coordinates are
// written when the mesh carries them.
func WritePLY(w io.Writer, m *mesh.Data, format PLYFormat) error {
	if format > PLYBinaryBigEndian {
		return brep.Errorf(brep.KindValidation, "meshio.WritePLY", "unknown format %d", format)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "ply\nformat %s 1.0\ncomment written by brep\n", format)
	fmt.Fprintf(&hdr, "element vertex %d\nproperty float x\nproperty float y\nproperty float z\n", m.VertexCount())
	if m.HasNormals() {
		hdr.WriteString("property float nx\nproperty float ny\nproperty float nz\n")
	}
	if m.HasUVs() {
		hdr.WriteString("property float u\nproperty float v\n")
	}
	fmt.Fprintf(&hdr, "element face %d\nproperty list uchar uint vertex_indices\nend_header\n", m.FaceCount())
	bw.Write(hdr.Bytes())

	row := make([]float32, 0, 8)
	for i, p := range m.Positions {
		row = append(row[:0], p.X, p.Y, p.Z)
		if m.HasNormals() {
			n := m.Normals[i]
			row = append(row, n.X, n.Y, n.Z)
		}
		if m.HasUVs() {
			uv := m.UVs[i]
			row = append(row, uv.X, uv.Y)
		}
		if format == PLYASCII {
			for k, f := range row {
				if k > 0 {
					bw.WriteByte(' ')
				}
				bw.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
			}
			bw.WriteByte('\n')
		} else if err := binary.Write(bw, format.order(), row); err != nil {
			return err
		}
	}
	for i := 0; i < m.FaceCount(); i++ {
		a, b, c := m.Face(i)
		if format == PLYASCII {
			fmt.Fprintf(bw, "3 %d %d %d\n", a, b, c)
			continue
		}
		bw.WriteByte(3)
		if err := binary.Write(bw, format.order(), [3]uint32{a, b, c}); err != nil {
			return err
		}
	}
	return bw.Flush()
}
