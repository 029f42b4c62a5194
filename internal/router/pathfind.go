package router

import "errors"

// ErrNoPath reports that no conversion route exists between two assets.
// Callers must check for it before acting on a path; it is a routing outcome,
// not a failure of the router.
var ErrNoPath = errors.New("no conversion path between assets")

// FindPath returns a shortest-hop conversion path via breadth-first search.
// When several edges reach a node at the same depth, preferredVenue edges
// win the tie. from == to yields the empty path; unreachable targets yield
// ErrNoPath.
func (r *Router) FindPath(from, to, preferredVenue string) (Path, error) {
	if from == to {
		return Path{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type node struct {
		asset string
		path  Path
	}

	visited := map[string]bool{from: true}
	queue := []node{{asset: from}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		edges := r.edgesFrom(current.asset)

		// Preferred-venue edges first so equal-depth ties resolve toward the
		// preferred venue: BFS marks a node visited on first reach.
		if preferredVenue != "" {
			ordered := make([]Edge, 0, len(edges))
			for _, e := range edges {
				if e.Venue == preferredVenue {
					ordered = append(ordered, e)
				}
			}
			for _, e := range edges {
				if e.Venue != preferredVenue {
					ordered = append(ordered, e)
				}
			}
			edges = ordered
		}

		for _, e := range edges {
			if visited[e.ToAsset] {
				continue
			}
			next := make(Path, len(current.path), len(current.path)+1)
			copy(next, current.path)
			next = append(next, e)

			if e.ToAsset == to {
				return next, nil
			}
			visited[e.ToAsset] = true
			queue = append(queue, node{asset: e.ToAsset, path: next})
		}
	}

	return nil, ErrNoPath
}

// FindAllPaths enumerates every acyclic path from one asset to another with
// at most maxHops hops, by bounded depth-first search. Used for route
// comparison and arbitrage discovery.
func (r *Router) FindAllPaths(from, to string, maxHops int) []Path {
	if from == to || maxHops <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []Path
	onPath := map[string]bool{from: true}

	var walk func(asset string, path Path)
	walk = func(asset string, path Path) {
		if len(path) >= maxHops {
			return
		}
		for _, e := range r.edgesFrom(asset) {
			if onPath[e.ToAsset] {
				continue // revisiting an asset would make the path cyclic
			}
			next := make(Path, len(path), len(path)+1)
			copy(next, path)
			next = append(next, e)

			if e.ToAsset == to {
				results = append(results, next)
				continue
			}
			onPath[e.ToAsset] = true
			walk(e.ToAsset, next)
			delete(onPath, e.ToAsset)
		}
	}
	walk(from, nil)

	return results
}
