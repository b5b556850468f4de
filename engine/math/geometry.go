package math

/**
 * @brief Computes the unit face normal of a counter-clockwise triangle.
 * Degenerate triangles yield the zero vector.
 */
func GeometryFaceNormal(t Triangle) Vec3 {
	edge1 := t[1].Sub(t[0])
	edge2 := t[2].Sub(t[0])
	return edge1.Cross(edge2).Normalized()
}

/**
 * @brief Computes the extents of a set of positions.
 */
func GeometryExtents(points []Vec3) Extents3D {
	e := NewExtents3DEmpty()
	for _, p := range points {
		e = e.Extend(p)
	}
	return e
}
