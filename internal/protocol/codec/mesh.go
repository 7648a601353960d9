package codec

import (
	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/vmihailenco/msgpack/v4"
)

// ObjMesh is a Wavefront-style polygon mesh. Face entries index into
// Vertices starting at zero.
type ObjMesh struct {
	Material  string      `msgpack:"material,omitempty"`
	Vertices  [][]float64 `msgpack:"vertices"`
	Normals   [][]float64 `msgpack:"normals,omitempty"`
	TexCoords [][]float64 `msgpack:"texcoords,omitempty"`
	Faces     [][]int     `msgpack:"faces"`
}

// PlyMesh is a Stanford PLY polygon mesh with optional per-vertex colors.
type PlyMesh struct {
	Comments []string    `msgpack:"comments,omitempty"`
	Vertices [][]float64 `msgpack:"vertices"`
	Colors   [][]uint8   `msgpack:"colors,omitempty"`
	Faces    [][]int     `msgpack:"faces"`
}

func checkFaces(d *schema.Descriptor, vertices [][]float64, faces [][]int) error {
	for i, v := range vertices {
		if len(v) != 3 {
			return mismatch(d, "vertex %d has %d coordinates", i, len(v))
		}
	}
	for i, face := range faces {
		if len(face) < 3 {
			return mismatch(d, "face %d has %d vertices", i, len(face))
		}
		for _, idx := range face {
			if idx < 0 || idx >= len(vertices) {
				return mismatch(d, "face %d references vertex %d of %d", i, idx, len(vertices))
			}
		}
	}
	return nil
}

// Validate checks vertex arity and face indices.
func (m *ObjMesh) Validate(d *schema.Descriptor) error {
	if len(m.Normals) > 0 && len(m.Normals) != len(m.Vertices) {
		return mismatch(d, "%d normals for %d vertices", len(m.Normals), len(m.Vertices))
	}
	return checkFaces(d, m.Vertices, m.Faces)
}

// Validate checks vertex arity, face indices and color count.
func (m *PlyMesh) Validate(d *schema.Descriptor) error {
	if len(m.Colors) > 0 && len(m.Colors) != len(m.Vertices) {
		return mismatch(d, "%d colors for %d vertices", len(m.Colors), len(m.Vertices))
	}
	return checkFaces(d, m.Vertices, m.Faces)
}

type mesh interface {
	Validate(d *schema.Descriptor) error
}

func asMesh(v any, d *schema.Descriptor) (mesh, error) {
	kind := d.WireKind()
	switch m := v.(type) {
	case ObjMesh:
		if kind == schema.TypeObj {
			return &m, nil
		}
	case *ObjMesh:
		if kind == schema.TypeObj && m != nil {
			return m, nil
		}
	case PlyMesh:
		if kind == schema.TypePly {
			return &m, nil
		}
	case *PlyMesh:
		if kind == schema.TypePly && m != nil {
			return m, nil
		}
	}
	return nil, mismatch(d, "expected %s mesh, got %T", kind, v)
}

func appendMesh(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	m, err := asMesh(v, d)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(d); err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, mismatch(d, "marshal mesh: %v", err)
	}
	return putBlob(out, b)
}

func readMesh(r *reader, d *schema.Descriptor) (any, error) {
	b, err := r.blob()
	if err != nil {
		return nil, err
	}
	var m mesh
	if d.WireKind() == schema.TypeObj {
		m = &ObjMesh{}
	} else {
		m = &PlyMesh{}
	}
	if err := msgpack.Unmarshal(b, m); err != nil {
		return nil, mismatch(d, "unmarshal mesh: %v", err)
	}
	if err := m.Validate(d); err != nil {
		return nil, err
	}
	return m, nil
}
