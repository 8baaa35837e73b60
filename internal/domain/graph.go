package domain

// GraphNode is a node of the pipeline graph blueprint.
type GraphNode struct {
	ID            string   `json:"id"`
	Label         string   `json:"label,omitempty"`
	RequiresHuman *bool    `json:"requires_human,omitempty"`
	Order         *int     `json:"order,omitempty"`
	Type          string   `json:"type,omitempty"`
	X             *float64 `json:"x,omitempty"`
	Y             *float64 `json:"y,omitempty"`
}

// GraphEdge connects two graph nodes.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// GraphBlueprint is the node-graph document displayed by the console.
type GraphBlueprint struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

var defaultGraphNodes = []struct {
	id, label string
	kind      AgentCategory
}{
	{"InputAgent", "Input", AgentCategoryStem},
	{"TaskDecomposer", "Task Decomposer", AgentCategoryStem},
	{"WorkflowOrchestrator", "Workflow Orchestrator", AgentCategoryStem},
	{"ResearchAgent", "Research", AgentCategoryTool},
	{"AnalysisAgent", "Analysis", AgentCategoryTool},
	{"ValidationAgent", "Validation", AgentCategoryTool},
	{"OutputAgent", "Output", AgentCategoryStem},
}

// DefaultGraph returns the built-in linear pipeline layout.
func DefaultGraph() GraphBlueprint {
	g := GraphBlueprint{
		Nodes: make([]GraphNode, 0, len(defaultGraphNodes)),
		Edges: make([]GraphEdge, 0, len(defaultGraphNodes)-1),
	}
	for i, n := range defaultGraphNodes {
		order := i
		x := float64(40 + i*220)
		y := float64(40)
		g.Nodes = append(g.Nodes, GraphNode{
			ID:    n.id,
			Label: n.label,
			Type:  string(n.kind),
			Order: &order,
			X:     &x,
			Y:     &y,
		})
		if i > 0 {
			g.Edges = append(g.Edges, GraphEdge{Source: defaultGraphNodes[i-1].id, Target: n.id})
		}
	}
	return g
}

// OrDefault fills the parts of g that are empty from the default graph.
// Nodes and edges fall back independently.
func (g *GraphBlueprint) OrDefault() GraphBlueprint {
	def := DefaultGraph()
	if g == nil {
		return def
	}
	out := *g
	if len(out.Nodes) == 0 {
		out.Nodes = def.Nodes
	}
	if len(out.Edges) == 0 {
		out.Edges = def.Edges
	}
	return out
}

// NodeIDs returns node ids in blueprint order.
func (g GraphBlueprint) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
