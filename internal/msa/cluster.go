package msa

// HammingFraction returns the fraction of positions at which a and b differ.
// Positions beyond the shorter string count as mismatches.
func HammingFraction(a, b string) float64 {
	n := max(len(a), len(b))
	if n == 0 {
		return 0
	}
	diff := n - min(len(a), len(b))
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(n)
}

type cluster struct {
	id          int
	left, right *cluster
	size        int
}

// ClusterOrder returns a permutation of seqs given by average-linkage
// hierarchical clustering on Hamming fraction. Leaves are listed left to
// right, with the lower cluster id on the left of every merge. Fewer than
// two sequences give the identity permutation.
func ClusterOrder(seqs []Sequence) []int {
	n := len(seqs)
	if n < 2 {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}

	// dist is keyed by cluster id; merged clusters get ids n, n+1, ...
	dist := make(map[[2]int]float64, n*n)
	key := func(a, b int) [2]int {
		if a > b {
			a, b = b, a
		}
		return [2]int{a, b}
	}

	active := make([]*cluster, n)
	for i := range active {
		active[i] = &cluster{id: i, size: 1}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist[key(i, j)] = HammingFraction(seqs[i].Seq, seqs[j].Seq)
		}
	}

	next := n
	for len(active) > 1 {
		bi, bj := 0, 1
		best := dist[key(active[0].id, active[1].id)]
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				if d := dist[key(active[i].id, active[j].id)]; d < best {
					best, bi, bj = d, i, j
				}
			}
		}

		a, b := active[bi], active[bj]
		if a.id > b.id {
			a, b = b, a
		}
		merged := &cluster{id: next, left: a, right: b, size: a.size + b.size}
		next++

		rest := make([]*cluster, 0, len(active)-1)
		for k, c := range active {
			if k == bi || k == bj {
				continue
			}
			da := dist[key(a.id, c.id)]
			db := dist[key(b.id, c.id)]
			dist[key(merged.id, c.id)] = (da*float64(a.size) + db*float64(b.size)) / float64(merged.size)
			rest = append(rest, c)
		}
		active = append(rest, merged)
	}

	order := make([]int, 0, n)
	var walk func(c *cluster)
	walk = func(c *cluster) {
		if c.left == nil {
			order = append(order, c.id)
			return
		}
		walk(c.left)
		walk(c.right)
	}
	walk(active[0])
	return order
}
