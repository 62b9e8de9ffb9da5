package tdma

// reach.go builds the graph of which stations hear each other on the medium.
// Two stations are joined by an edge when they are within the medium's maximum range.
// The graph is used to report stations nobody can hear and to count hops between
// stations; frames themselves are never relayed.

import (
	"fmt"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"golang.org/x/exp/slices"
	"math"
	"strings"
)

// ReachGraph is the in-range graph of the stations on a medium
type ReachGraph struct {
	g        *simple.WeightedUndirectedGraph
	names    map[int]string
	cachedSP map[int]path.Shortest
}

// BuildReachGraph links every pair of endpoints of md that are within range.
// Node ids are the endpoints' station ids.
func BuildReachGraph(md *Medium) *ReachGraph {
	rg := new(ReachGraph)
	rg.g = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	rg.names = make(map[int]string)
	rg.cachedSP = make(map[int]path.Shortest)

	for idx := 0; idx < md.NumEndpoints(); idx++ {
		station := md.Endpoint(idx).Station()
		if rg.g.Node(int64(station)) == nil {
			rg.g.AddNode(simple.Node(station))
		}
	}

	// weight every edge 1 so that shortest paths count hops
	for i := 0; i < md.NumEndpoints(); i++ {
		a := md.Endpoint(i)
		for j := i + 1; j < md.NumEndpoints(); j++ {
			b := md.Endpoint(j)
			if a.Station() == b.Station() || !md.InRange(a.Mobility(), b.Mobility()) {
				continue
			}
			rg.g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(a.Station()), T: simple.Node(b.Station()), W: 1.0})
		}
	}
	return rg
}

// SetName labels a station for Path
func (rg *ReachGraph) SetName(station int, name string) {
	rg.names[station] = name
}

// Neighbors lists, in increasing order, the stations within range of station
func (rg *ReachGraph) Neighbors(station int) []int {
	nbrs := []int{}
	if rg.g.Node(int64(station)) == nil {
		return nbrs
	}
	nodes := rg.g.From(int64(station))
	for nodes.Next() {
		nbrs = append(nbrs, int(nodes.Node().ID()))
	}
	slices.Sort(nbrs)
	return nbrs
}

// Isolated lists the stations within range of no other station
func (rg *ReachGraph) Isolated() []int {
	isolated := []int{}
	nodes := rg.g.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		if rg.g.From(id).Len() == 0 {
			isolated = append(isolated, int(id))
		}
	}
	slices.Sort(isolated)
	return isolated
}

// Components returns the sets of stations connected through in-range links,
// each sorted, ordered by their smallest station
func (rg *ReachGraph) Components() [][]int {
	comps := [][]int{}
	for _, cc := range topo.ConnectedComponents(rg.g) {
		comps = append(comps, convertNodeSeq(cc))
	}
	for _, comp := range comps {
		slices.Sort(comp)
	}
	slices.SortFunc(comps, func(a, b []int) int { return a[0] - b[0] })
	return comps
}

// Hops is the fewest in-range links from src to dst, or -1 when dst cannot be reached
func (rg *ReachGraph) Hops(src, dst int) int {
	route := rg.route(src, dst)
	if len(route) == 0 {
		return -1
	}
	return len(route) - 1
}

// Path names the stations on a fewest-hop path from src to dst
func (rg *ReachGraph) Path(src, dst int) string {
	route := rg.route(src, dst)
	names := make([]string, len(route))
	for idx, station := range route {
		name, present := rg.names[station]
		if !present {
			name = fmt.Sprintf("%d", station)
		}
		names[idx] = name
	}
	return strings.Join(names, ",")
}

func (rg *ReachGraph) route(src, dst int) []int {
	if rg.g.Node(int64(src)) == nil || rg.g.Node(int64(dst)) == nil {
		return []int{}
	}
	spTree, present := rg.cachedSP[src]
	if !present {
		spTree = path.DijkstraFrom(simple.Node(src), rg.g)
		rg.cachedSP[src] = spTree
	}
	nodeSeq, _ := spTree.To(int64(dst))
	return convertNodeSeq(nodeSeq)
}

// convertNodeSeq extracts station ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := []int{}
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}
