// Package phylo builds neighbor-joining trees and pairwise distance matrices
// from cached alignments.
package phylo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Node is a tree node. Leaves have a Name and no children; internal nodes
// are unnamed.
type Node struct {
	Name     string
	Length   float64
	Children []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Leaves returns the leaf names in left-to-right order.
func (n *Node) Leaves() []string {
	if n.IsLeaf() {
		return []string{n.Name}
	}
	var out []string
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Newick serializes the tree rooted at n, terminated by ';'. Branch lengths
// use five decimals; the root carries none.
func (n *Node) Newick() string {
	var b strings.Builder
	n.write(&b, true)
	b.WriteByte(';')
	return b.String()
}

func (n *Node) write(b *strings.Builder, root bool) {
	if n.IsLeaf() {
		b.WriteString(quoteName(n.Name))
	} else {
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.write(b, false)
		}
		b.WriteByte(')')
	}
	if !root {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(math.Max(0, n.Length), 'f', 5, 64))
	}
}

// quoteName single-quotes names containing Newick punctuation or whitespace.
func quoteName(name string) string {
	if !strings.ContainsAny(name, "()[]':;, \t\n") {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ErrDegenerate is returned when a tree cannot be built from the input.
var ErrDegenerate = errors.New("degenerate distance matrix")

// NeighborJoining builds an unrooted tree from a symmetric distance matrix.
// The last three clusters are joined at a common centre, which becomes the
// root of the returned tree. Two taxa are joined directly.
func NeighborJoining(names []string, dist [][]float64) (*Node, error) {
	n := len(names)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 taxa, got %d", ErrDegenerate, n)
	}
	if len(dist) != n {
		return nil, fmt.Errorf("%w: %d names but %d matrix rows", ErrDegenerate, n, len(dist))
	}
	d := make([][]float64, n)
	for i, row := range dist {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns", ErrDegenerate, i, len(row))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite distance", ErrDegenerate)
			}
		}
		d[i] = append([]float64(nil), row...)
	}

	nodes := make([]*Node, n)
	for i, name := range names {
		nodes[i] = &Node{Name: name}
	}

	if n == 2 {
		nodes[0].Length = d[0][1] / 2
		nodes[1].Length = d[0][1] / 2
		return &Node{Children: nodes}, nil
	}

	for len(nodes) > 3 {
		m := len(nodes)
		r := make([]float64, m)
		for i := range m {
			for j := range m {
				r[i] += d[i][j]
			}
		}

		bi, bj := 0, 1
		best := math.Inf(1)
		for i := 0; i < m; i++ {
			for j := i + 1; j < m; j++ {
				q := float64(m-2)*d[i][j] - r[i] - r[j]
				if q < best {
					best, bi, bj = q, i, j
				}
			}
		}

		li := d[bi][bj]/2 + (r[bi]-r[bj])/float64(2*(m-2))
		lj := d[bi][bj] - li
		nodes[bi].Length = li
		nodes[bj].Length = lj
		joined := &Node{Children: []*Node{nodes[bi], nodes[bj]}}

		next := make([]*Node, 0, m-1)
		nd := make([][]float64, 0, m-1)
		var keep []int
		for k := range m {
			if k != bi && k != bj {
				keep = append(keep, k)
			}
		}
		for _, k := range keep {
			next = append(next, nodes[k])
			row := make([]float64, 0, m-1)
			for _, l := range keep {
				row = append(row, d[k][l])
			}
			row = append(row, (d[bi][k]+d[bj][k]-d[bi][bj])/2)
			nd = append(nd, row)
		}
		last := make([]float64, 0, m-1)
		for _, k := range keep {
			last = append(last, (d[bi][k]+d[bj][k]-d[bi][bj])/2)
		}
		last = append(last, 0)
		nd = append(nd, last)

		nodes = append(next, joined)
		d = nd
	}

	a, b, c := nodes[0], nodes[1], nodes[2]
	a.Length = (d[0][1] + d[0][2] - d[1][2]) / 2
	b.Length = (d[0][1] + d[1][2] - d[0][2]) / 2
	c.Length = (d[0][2] + d[1][2] - d[0][1]) / 2
	return &Node{Children: []*Node{a, b, c}}, nil
}
