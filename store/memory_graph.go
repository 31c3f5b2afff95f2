package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/medrag"
)

// MemoryGraph is an in-memory knowledge graph keyed by node type and name.
// Nodes with the same type and name merge into one node, so repeated
// ingestion of the same entity stays idempotent.
type MemoryGraph struct {
	mu      sync.RWMutex
	nodes   map[string]*medrag.GraphNode
	byType  map[string][]string
	byKey   map[string]string
	edges   []medrag.GraphEdge
	touches map[string][]int
}

var _ medrag.GraphStore = (*MemoryGraph)(nil)

// NewMemoryGraph creates an empty MemoryGraph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes:   make(map[string]*medrag.GraphNode),
		byType:  make(map[string][]string),
		byKey:   make(map[string]string),
		touches: make(map[string][]int),
	}
}

func nodeKey(nodeType, name string) string {
	return nodeType + "\x00" + strings.ToLower(strings.TrimSpace(name))
}

// AddNode inserts a node, merging with an existing node of the same type
// and name. The merged node keeps its original ID; new properties overwrite
// old ones. The node's ID field is updated to the stored ID.
func (m *MemoryGraph) AddNode(ctx context.Context, node *medrag.GraphNode) error {
	if node == nil || node.Name == "" || node.Type == "" {
		return fmt.Errorf("graph node requires a type and a name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeKey(node.Type, node.Name)
	if id, exists := m.byKey[key]; exists {
		existing := m.nodes[id]
		for k, v := range node.Properties {
			if existing.Properties == nil {
				existing.Properties = make(map[string]any)
			}
			existing.Properties[k] = v
		}
		node.ID = id
		return nil
	}

	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	stored := *node
	m.nodes[stored.ID] = &stored
	m.byType[stored.Type] = append(m.byType[stored.Type], stored.ID)
	m.byKey[key] = stored.ID
	return nil
}

// AddEdge inserts a directed edge between two existing nodes.
func (m *MemoryGraph) AddEdge(ctx context.Context, edge *medrag.GraphEdge) error {
	if edge == nil || edge.Type == "" {
		return fmt.Errorf("graph edge requires a type")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[edge.Source]; !ok {
		return fmt.Errorf("edge source node not found: %s", edge.Source)
	}
	if _, ok := m.nodes[edge.Target]; !ok {
		return fmt.Errorf("edge target node not found: %s", edge.Target)
	}

	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	idx := len(m.edges)
	m.edges = append(m.edges, *edge)
	m.touches[edge.Source] = append(m.touches[edge.Source], idx)
	m.touches[edge.Target] = append(m.touches[edge.Target], idx)
	return nil
}

// NodeExists reports whether any node of nodeType has a name containing
// nameContains, case-insensitively.
func (m *MemoryGraph) NodeExists(ctx context.Context, nodeType, nameContains string) (bool, error) {
	needle := strings.ToLower(strings.TrimSpace(nameContains))
	if needle == "" {
		return false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.byType[nodeType] {
		if strings.Contains(strings.ToLower(m.nodes[id].Name), needle) {
			return true, nil
		}
	}
	return false, nil
}

// RelationExists reports whether an edge of one of relTypes connects a
// fromType node whose name contains fromName to a toType node whose name
// contains toName. An empty relTypes matches any edge type.
func (m *MemoryGraph) RelationExists(ctx context.Context, fromType, fromName string, relTypes []string, toType, toName string) (bool, error) {
	from := strings.ToLower(strings.TrimSpace(fromName))
	to := strings.ToLower(strings.TrimSpace(toName))
	if from == "" || to == "" {
		return false, nil
	}

	wantRel := make(map[string]bool, len(relTypes))
	for _, rt := range relTypes {
		wantRel[rt] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, edge := range m.edges {
		if len(wantRel) > 0 && !wantRel[edge.Type] {
			continue
		}
		src := m.nodes[edge.Source]
		dst := m.nodes[edge.Target]
		if src == nil || dst == nil {
			continue
		}
		if src.Type != fromType || dst.Type != toType {
			continue
		}
		if strings.Contains(strings.ToLower(src.Name), from) &&
			strings.Contains(strings.ToLower(dst.Name), to) {
			return true, nil
		}
	}
	return false, nil
}

// ProcedureContext returns the direct neighborhood of the first procedure
// whose name contains the given text, or nil when none matches.
func (m *MemoryGraph) ProcedureContext(ctx context.Context, procedure string) (*medrag.ProcedureContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	proc := m.findProcedure(procedure)
	if proc == nil {
		return nil, nil
	}

	pc := &medrag.ProcedureContext{Procedure: proc.Name}
	if desc, ok := proc.Properties["description"].(string); ok {
		pc.Description = desc
	}

	type orderedStep struct {
		name  string
		order int
	}
	var steps []orderedStep

	for _, idx := range m.touches[proc.ID] {
		edge := m.edges[idx]
		if edge.Source != proc.ID {
			continue
		}
		neighbor := m.nodes[edge.Target]
		if neighbor == nil {
			continue
		}
		switch neighbor.Type {
		case medrag.NodeStep:
			if edge.Type == medrag.RelInvolves {
				steps = append(steps, orderedStep{name: neighbor.Name, order: intProperty(neighbor.Properties, "order", len(steps))})
			}
		case medrag.NodeAnatomy:
			if edge.Type == medrag.RelInvolves || edge.Type == medrag.RelTargets {
				pc.Anatomy = appendUnique(pc.Anatomy, neighbor.Name)
			}
		case medrag.NodeInstrument:
			if edge.Type == medrag.RelRequires || edge.Type == medrag.RelUses {
				pc.Instruments = appendUnique(pc.Instruments, neighbor.Name)
			}
		case medrag.NodeComplication:
			if edge.Type == medrag.RelMayCause {
				pc.Complications = appendUnique(pc.Complications, neighbor.Name)
			}
		case medrag.NodeTechnique:
			if edge.Type == medrag.RelUsesTechnique {
				pc.Techniques = appendUnique(pc.Techniques, neighbor.Name)
			}
		case medrag.NodeMedication:
			if edge.Type == medrag.RelMedication {
				pc.Medications = appendUnique(pc.Medications, neighbor.Name)
			}
		}
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].order < steps[j].order })
	for _, s := range steps {
		pc.Steps = append(pc.Steps, s.name)
	}
	return pc, nil
}

// RelatedProcedures finds other procedures reachable from the given one
// within maxDepth hops, treating edges as undirected. Results are ordered
// by distance, then name.
func (m *MemoryGraph) RelatedProcedures(ctx context.Context, procedure string, maxDepth int) ([]medrag.RelatedProcedure, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	start := m.findProcedure(procedure)
	if start == nil {
		return nil, nil
	}

	type frontierNode struct {
		id    string
		depth int
	}
	visited := map[string]bool{start.ID: true}
	frontier := []frontierNode{{id: start.ID, depth: 0}}
	var related []medrag.RelatedProcedure

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, idx := range m.touches[cur.id] {
			edge := m.edges[idx]
			next := edge.Target
			if next == cur.id {
				next = edge.Source
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			node := m.nodes[next]
			if node != nil && node.Type == medrag.NodeProcedure {
				related = append(related, medrag.RelatedProcedure{
					Procedure: node.Name,
					Distance:  cur.depth + 1,
				})
			}
			frontier = append(frontier, frontierNode{id: next, depth: cur.depth + 1})
		}
	}

	sort.SliceStable(related, func(i, j int) bool {
		if related[i].Distance != related[j].Distance {
			return related[i].Distance < related[j].Distance
		}
		return related[i].Procedure < related[j].Procedure
	})
	return related, nil
}

// Stats summarizes node and edge counts by type.
func (m *MemoryGraph) Stats(ctx context.Context) (*medrag.GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &medrag.GraphStats{
		Nodes:         make(map[string]int),
		Relationships: make(map[string]int),
	}
	for _, node := range m.nodes {
		stats.Nodes[node.Type]++
		stats.TotalNodes++
	}
	for _, edge := range m.edges {
		stats.Relationships[edge.Type]++
		stats.TotalRelationships++
	}
	return stats, nil
}

// Close is a no-op for the in-memory graph.
func (m *MemoryGraph) Close() error { return nil }

// findProcedure returns the procedure with an exact case-insensitive name
// match when one exists, otherwise the first containment match. Callers
// must hold the read lock.
func (m *MemoryGraph) findProcedure(name string) *medrag.GraphNode {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}

	var partial *medrag.GraphNode
	for _, id := range m.byType[medrag.NodeProcedure] {
		node := m.nodes[id]
		lower := strings.ToLower(node.Name)
		if lower == needle {
			return node
		}
		if partial == nil && strings.Contains(lower, needle) {
			partial = node
		}
	}
	return partial
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func intProperty(props map[string]any, key string, fallback int) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
