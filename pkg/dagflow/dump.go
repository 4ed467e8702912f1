package dagflow

import (
	"fmt"
	"strings"
	"time"
)

// DumpAdjacencyMatrix renders the graph's nodes and adjacency matrix.
//
//	==========ADJACENCY MATRIX==========
//	nodes:
//	(0)root, (1)s1, (2)final
//	------------------------------------
//	matrix:
//	(0): [0, 1, 0]
//	(1): [0, 0, 1]
//	(2): [0, 0, 0]
func DumpAdjacencyMatrix(g *Graph) string {
	nodes, m := g.BuildAdjacencyMatrix()
	title := banner("ADJACENCY MATRIX")

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString("nodes:\n")
	for i, n := range nodes {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%d)%s", i, n.Name())
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", len(title)) + "\n")
	b.WriteString("matrix:\n")
	for i, row := range m {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		fmt.Fprintf(&b, "(%d): [%s]\n", i, strings.Join(cells, ", "))
	}
	return b.String()
}

// DumpResult renders a Result's run identity, per-node history and output.
func DumpResult(r *Result) string {
	title := banner("RUN HISTORY")

	var b strings.Builder
	b.WriteString(title + "\n")
	fmt.Fprintf(&b, "runId=%s\n", r.RunID)
	fmt.Fprintf(&b, "graphId=%s\n", r.GraphID)
	fmt.Fprintf(&b, "mode=%s\n", r.Mode)
	b.WriteString(strings.Repeat("-", len(title)) + "\n")
	b.WriteString("histories:\n")
	for _, t := range r.History {
		fmt.Fprintf(&b, "Node[%s:%s] %s\n", t.Node.Name, t.State, formatTrace(t))
	}
	if len(r.Pending) > 0 {
		fmt.Fprintf(&b, "pending: %s\n", strings.Join(r.Pending, ", "))
	}
	b.WriteString(strings.Repeat("=", len(title)) + "\n")
	b.WriteString("result:\n")
	if r.Err != nil {
		b.WriteString("error: " + r.Err.Error())
	} else {
		fmt.Fprint(&b, r.Output)
	}
	return b.String()
}

func banner(title string) string {
	pad := strings.Repeat("=", 10)
	return pad + title + pad
}

func formatTrace(t Trace) string {
	parts := make([]string, 0, len(t.Entered)+1)
	for _, tr := range t.Transitions() {
		parts = append(parts, fmt.Sprintf("%s=%s", strings.ToLower(tr.State.String()), tr.At.Format(time.RFC3339Nano)))
	}
	if len(t.FailedDependencies) > 0 {
		parts = append(parts, "failed="+strings.Join(t.FailedDependencies, "|"))
	}
	return fmt.Sprintf("Trace[%s, duration=%s]", strings.Join(parts, ","), t.Duration())
}
