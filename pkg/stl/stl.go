// Package stl extracts iso-surfaces from volumes and writes them as STL.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"ctslicesto3d/internal/models"
)

// Triangle represents a triangle in 3D space
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

const headerSize = 80

var header = "ctslicesto3d binary STL"

// MeshTriangles flattens an indexed mesh into triangles with unit face normals.
func MeshTriangles(m *models.Mesh) []Triangle {
	tris := make([]Triangle, 0, len(m.Faces))
	for i, f := range m.Faces {
		n := m.FaceNormal(i)
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		tris = append(tris, Triangle{
			Normal:  vec32(n),
			Vertex1: vec32(m.Vertices[f[0]]),
			Vertex2: vec32(m.Vertices[f[1]]),
			Vertex3: vec32(m.Vertices[f[2]]),
		})
	}
	return tris
}

func vec32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// SaveToSTL saves triangles as a binary STL file, creating parent
// directories as needed.
func SaveToSTL(path string, triangles []Triangle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := WriteBinary(w, triangles); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush STL file: %w", err)
	}
	return file.Close()
}

// WriteBinary encodes triangles in the binary STL layout: an 80 byte
// header, a little-endian uint32 triangle count and 50 bytes per triangle.
func WriteBinary(w io.Writer, triangles []Triangle) error {
	var head [headerSize]byte
	copy(head[:], header)
	if _, err := w.Write(head[:]); err != nil {
		return fmt.Errorf("failed to write STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}

	var buf [50]byte
	for i, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, f := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
				off += 4
			}
		}
		// attribute byte count stays zero
		buf[48], buf[49] = 0, 0
		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("failed to write triangle %d: %w", i, err)
		}
	}
	return nil
}

// ReadBinary decodes a binary STL stream.
func ReadBinary(r io.Reader) ([]Triangle, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("failed to read STL header: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read triangle count: %w", err)
	}

	triangles := make([]Triangle, 0, count)
	var buf [50]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}
		var vs [4][3]float32
		off := 0
		for v := range vs {
			for k := range vs[v] {
				vs[v][k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
				off += 4
			}
		}
		triangles = append(triangles, Triangle{Normal: vs[0], Vertex1: vs[1], Vertex2: vs[2], Vertex3: vs[3]})
	}
	return triangles, nil
}

// WriteASCII encodes triangles as an ASCII STL solid.
func WriteASCII(w io.Writer, name string, triangles []Triangle) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "solid %s\n", name)
	for _, t := range triangles {
		fmt.Fprintf(bw, "  facet normal %e %e %e\n", t.Normal[0], t.Normal[1], t.Normal[2])
		fmt.Fprintln(bw, "    outer loop")
		for _, v := range [3][3]float32{t.Vertex1, t.Vertex2, t.Vertex3} {
			fmt.Fprintf(bw, "      vertex %e %e %e\n", v[0], v[1], v[2])
		}
		fmt.Fprintln(bw, "    endloop")
		fmt.Fprintln(bw, "  endfacet")
	}
	fmt.Fprintf(bw, "endsolid %s\n", name)
	return bw.Flush()
}
