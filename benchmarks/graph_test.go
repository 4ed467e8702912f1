package benchmarks

import (
	"fmt"
	"testing"

	"github.com/randalmurphal/dagflow/pkg/dagflow"
)

func passNode(_ dagflow.Context, p dagflow.Params) (any, error) {
	v, _ := p.First()
	return v, nil
}

func nodeName(n int) string {
	return fmt.Sprintf("node%d", n)
}

func newGraph(mode dagflow.Mode) *dagflow.Graph {
	return dagflow.NewGraph(mode, dagflow.WithObserver(dagflow.NopObserver{}))
}

func mustAdd(g *dagflow.Graph, u dagflow.Unit) *dagflow.Node {
	n, err := g.AddNode(u)
	if err != nil {
		panic(err)
	}
	return n
}

func mustEdge(g *dagflow.Graph, dependent, dependency *dagflow.Node) {
	if err := g.AddEdge(dependent, dependency); err != nil {
		panic(err)
	}
}

// buildChain builds root -> node0 -> ... -> node{n-1} -> final.
func buildChain(n int) *dagflow.Graph {
	g := newGraph(dagflow.Parallel)
	prev := mustAdd(g, dagflow.Root[int]())
	for i := range n {
		next := mustAdd(g, dagflow.NewUnit(nodeName(i), passNode))
		mustEdge(g, next, prev)
		prev = next
	}
	mustEdge(g, mustAdd(g, dagflow.Terminal[int]()), prev)
	return g
}

// buildFan builds root fanning out to width nodes that all feed a join.
func buildFan(mode dagflow.Mode, width int) *dagflow.Graph {
	g := newGraph(mode)
	root := mustAdd(g, dagflow.Root[int]())
	join := mustAdd(g, dagflow.NewUnit("join", func(_ dagflow.Context, p dagflow.Params) (any, error) {
		return len(p), nil
	}))
	for i := range width {
		n := mustAdd(g, dagflow.NewUnit(nodeName(i), passNode))
		mustEdge(g, n, root)
		mustEdge(g, join, n)
	}
	mustEdge(g, mustAdd(g, dagflow.Terminal[int]()), join)
	return g
}

func BenchmarkNewGraph(b *testing.B) {
	for b.Loop() {
		newGraph(dagflow.Parallel)
	}
}

func BenchmarkBuildChain_10(b *testing.B) {
	for b.Loop() {
		buildChain(10)
	}
}

func BenchmarkBuildChain_100(b *testing.B) {
	for b.Loop() {
		buildChain(100)
	}
}

// AddEdge runs a cycle check, so building a long chain is quadratic.
func BenchmarkBuildChain_500(b *testing.B) {
	for b.Loop() {
		buildChain(500)
	}
}

func BenchmarkBuildFan_100(b *testing.B) {
	for b.Loop() {
		buildFan(dagflow.Parallel, 100)
	}
}

func BenchmarkValidate_100(b *testing.B) {
	g := buildChain(100)
	for b.Loop() {
		_ = g.Validate()
	}
}

func BenchmarkAdjacencyMatrix_100(b *testing.B) {
	g := buildFan(dagflow.Parallel, 100)
	for b.Loop() {
		g.BuildAdjacencyMatrix()
	}
}
