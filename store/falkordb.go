package store

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/smallnest/medrag"
)

var labelRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// FalkorGraph implements the knowledge graph on a FalkorDB server, speaking
// GRAPH.QUERY over the redis protocol. Every query returns scalars (names
// and counts), so no node decoding is needed.
type FalkorGraph struct {
	client    redis.UniversalClient
	graphName string
}

var _ medrag.GraphStore = (*FalkorGraph)(nil)

// NewFalkorGraph connects to a FalkorDB server.
// Format: falkordb://host:port/graph_name
func NewFalkorGraph(connectionString string) (*FalkorGraph, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	addr := u.Host
	if addr == "" {
		return nil, fmt.Errorf("invalid connection string: missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "surgical"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	return &FalkorGraph{
		client:    client,
		graphName: graphName,
	}, nil
}

// NewFalkorGraphWithClient wraps an existing redis client. Useful for
// testing and for sharing a connection pool.
func NewFalkorGraphWithClient(client redis.UniversalClient, graphName string) *FalkorGraph {
	if graphName == "" {
		graphName = "surgical"
	}
	return &FalkorGraph{client: client, graphName: graphName}
}

// AddNode merges a node by label and name, then sets its properties. The
// node's id property survives merging: an existing node keeps its id, a new
// node gets the caller's or a generated one, and either way the stored id is
// written back to node.ID so edges can match on it.
func (f *FalkorGraph) AddNode(ctx context.Context, node *medrag.GraphNode) error {
	if node == nil || node.Name == "" || node.Type == "" {
		return fmt.Errorf("graph node requires a type and a name")
	}

	label := sanitizeLabel(node.Type)
	props := map[string]any{"name": node.Name}
	if node.ID != "" {
		props["id"] = node.ID
	}
	for k, v := range node.Properties {
		props[sanitizeLabel(k)] = v
	}

	assigned := node.ID
	if assigned == "" {
		assigned = uuid.NewString()
	}

	query := fmt.Sprintf("MERGE (n:%s {name: '%s'}) SET n.id = coalesce(n.id, '%s'), n += %s RETURN n.id",
		label, escapeString(node.Name), escapeString(assigned), propsToCypher(props))
	rows, err := f.query(ctx, query)
	if err != nil {
		return err
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		if id := asString(rows[0][0]); id != "" {
			node.ID = id
			return nil
		}
	}
	node.ID = assigned
	return nil
}

// AddEdge merges an edge between two nodes matched by id.
func (f *FalkorGraph) AddEdge(ctx context.Context, edge *medrag.GraphEdge) error {
	if edge == nil || edge.Type == "" {
		return fmt.Errorf("graph edge requires a type")
	}

	relType := sanitizeLabel(edge.Type)
	query := fmt.Sprintf("MATCH (a {id: '%s'}), (b {id: '%s'}) MERGE (a)-[r:%s]->(b)",
		escapeString(edge.Source), escapeString(edge.Target), relType)
	if len(edge.Properties) > 0 {
		props := make(map[string]any, len(edge.Properties))
		for k, v := range edge.Properties {
			props[sanitizeLabel(k)] = v
		}
		query += " SET r += " + propsToCypher(props)
	}
	_, err := f.query(ctx, query)
	return err
}

// NodeExists reports whether a node of nodeType has a name containing
// nameContains, case-insensitively.
func (f *FalkorGraph) NodeExists(ctx context.Context, nodeType, nameContains string) (bool, error) {
	needle := strings.ToLower(strings.TrimSpace(nameContains))
	if needle == "" {
		return false, nil
	}

	query := fmt.Sprintf("MATCH (n:%s) WHERE toLower(n.name) CONTAINS '%s' RETURN count(n)",
		sanitizeLabel(nodeType), escapeString(needle))
	rows, err := f.query(ctx, query)
	if err != nil {
		return false, err
	}
	return firstInt(rows) > 0, nil
}

// RelationExists reports whether an edge of one of relTypes connects a
// fromType node to a toType node, matching names by case-insensitive
// containment.
func (f *FalkorGraph) RelationExists(ctx context.Context, fromType, fromName string, relTypes []string, toType, toName string) (bool, error) {
	from := strings.ToLower(strings.TrimSpace(fromName))
	to := strings.ToLower(strings.TrimSpace(toName))
	if from == "" || to == "" {
		return false, nil
	}

	relPart := ""
	if len(relTypes) > 0 {
		clean := make([]string, len(relTypes))
		for i, rt := range relTypes {
			clean[i] = sanitizeLabel(rt)
		}
		relPart = ":" + strings.Join(clean, "|")
	}

	query := fmt.Sprintf(
		"MATCH (a:%s)-[r%s]->(b:%s) WHERE toLower(a.name) CONTAINS '%s' AND toLower(b.name) CONTAINS '%s' RETURN count(r)",
		sanitizeLabel(fromType), relPart, sanitizeLabel(toType),
		escapeString(from), escapeString(to))
	rows, err := f.query(ctx, query)
	if err != nil {
		return false, err
	}
	return firstInt(rows) > 0, nil
}

// ProcedureContext collects the direct neighborhood of one procedure via
// per-relation name queries, or returns nil when the procedure is unknown.
func (f *FalkorGraph) ProcedureContext(ctx context.Context, procedure string) (*medrag.ProcedureContext, error) {
	name, desc, err := f.resolveProcedure(ctx, procedure)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}

	pc := &medrag.ProcedureContext{Procedure: name, Description: desc}
	escaped := escapeString(name)

	neighborhood := []struct {
		query string
		dest  *[]string
	}{
		{fmt.Sprintf("MATCH (p:Procedure {name: '%s'})-[:%s]->(s:Step) RETURN s.name ORDER BY s.order", escaped, medrag.RelInvolves), &pc.Steps},
		{fmt.Sprintf("MATCH (p:Procedure {name: '%s'})-[:%s|%s]->(a:Anatomy) RETURN DISTINCT a.name", escaped, medrag.RelInvolves, medrag.RelTargets), &pc.Anatomy},
		{fmt.Sprintf("MATCH (p:Procedure {name: '%s'})-[:%s|%s]->(i:Instrument) RETURN DISTINCT i.name", escaped, medrag.RelRequires, medrag.RelUses), &pc.Instruments},
		{fmt.Sprintf("MATCH (p:Procedure {name: '%s'})-[:%s]->(c:Complication) RETURN DISTINCT c.name", escaped, medrag.RelMayCause), &pc.Complications},
		{fmt.Sprintf("MATCH (p:Procedure {name: '%s'})-[:%s]->(t:Technique) RETURN DISTINCT t.name", escaped, medrag.RelUsesTechnique), &pc.Techniques},
		{fmt.Sprintf("MATCH (p:Procedure {name: '%s'})-[:%s]->(m:Medication) RETURN DISTINCT m.name", escaped, medrag.RelMedication), &pc.Medications},
	}
	for _, nq := range neighborhood {
		rows, err := f.query(ctx, nq.query)
		if err != nil {
			return nil, err
		}
		*nq.dest = stringColumn(rows)
	}
	return pc, nil
}

// RelatedProcedures finds other procedures within maxDepth undirected hops,
// ordered by distance then name.
func (f *FalkorGraph) RelatedProcedures(ctx context.Context, procedure string, maxDepth int) ([]medrag.RelatedProcedure, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	name, _, err := f.resolveProcedure(ctx, procedure)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}

	query := fmt.Sprintf(
		"MATCH path = (p:Procedure {name: '%s'})-[*1..%d]-(q:Procedure) WHERE p <> q RETURN q.name, min(length(path)) AS dist ORDER BY dist, q.name",
		escapeString(name), maxDepth)
	rows, err := f.query(ctx, query)
	if err != nil {
		return nil, err
	}

	related := make([]medrag.RelatedProcedure, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		related = append(related, medrag.RelatedProcedure{
			Procedure: asString(row[0]),
			Distance:  int(asInt(row[1])),
		})
	}
	return related, nil
}

// Stats counts nodes and edges by label.
func (f *FalkorGraph) Stats(ctx context.Context) (*medrag.GraphStats, error) {
	stats := &medrag.GraphStats{
		Nodes:         make(map[string]int),
		Relationships: make(map[string]int),
	}

	rows, err := f.query(ctx, "MATCH (n) RETURN labels(n)[0], count(n)")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		n := int(asInt(row[1]))
		stats.Nodes[asString(row[0])] = n
		stats.TotalNodes += n
	}

	rows, err = f.query(ctx, "MATCH ()-[r]->() RETURN type(r), count(r)")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		n := int(asInt(row[1]))
		stats.Relationships[asString(row[0])] = n
		stats.TotalRelationships += n
	}
	return stats, nil
}

// Close closes the underlying redis client.
func (f *FalkorGraph) Close() error {
	return f.client.Close()
}

// resolveProcedure returns the stored name and description of the procedure
// best matching the given text, preferring an exact case-insensitive match
// over containment. An empty name means no match.
func (f *FalkorGraph) resolveProcedure(ctx context.Context, procedure string) (string, string, error) {
	needle := escapeString(strings.ToLower(strings.TrimSpace(procedure)))
	if needle == "" {
		return "", "", nil
	}

	for _, op := range []string{"=", "CONTAINS"} {
		query := fmt.Sprintf("MATCH (p:Procedure) WHERE toLower(p.name) %s '%s' RETURN p.name, p.description LIMIT 1",
			op, needle)
		rows, err := f.query(ctx, query)
		if err != nil {
			return "", "", err
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			name := asString(rows[0][0])
			desc := ""
			if len(rows[0]) > 1 {
				desc = asString(rows[0][1])
			}
			return name, desc, nil
		}
	}
	return "", "", nil
}

// query runs a cypher statement and returns the result rows. The header and
// statistics sections of the reply are discarded.
func (f *FalkorGraph) query(ctx context.Context, cypher string) ([][]any, error) {
	res, err := f.client.Do(ctx, "GRAPH.QUERY", f.graphName, cypher).Result()
	if err != nil {
		return nil, fmt.Errorf("graph query failed: %w", err)
	}

	reply, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", res)
	}

	// Replies are [header, rows, statistics] for reads and [statistics]
	// for pure writes.
	if len(reply) != 3 {
		return nil, nil
	}

	rawRows, ok := reply[1].([]any)
	if !ok {
		return nil, nil
	}
	rows := make([][]any, 0, len(rawRows))
	for _, raw := range rawRows {
		if row, ok := raw.([]any); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func sanitizeLabel(l string) string {
	clean := labelRegex.ReplaceAllString(l, "_")
	if clean == "" {
		return "Entity"
	}
	return clean
}

// escapeString makes a value safe for single-quoted cypher literals.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

// propsToCypher renders a property map as a cypher map literal.
func propsToCypher(props map[string]any) string {
	parts := make([]string, 0, len(props))
	for k, v := range props {
		switch x := v.(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s: '%s'", k, escapeString(x)))
		case bool, int, int64, float64:
			parts = append(parts, fmt.Sprintf("%s: %v", k, x))
		default:
			parts = append(parts, fmt.Sprintf("%s: '%s'", k, escapeString(fmt.Sprint(x))))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// firstInt extracts the first cell of the first row as an integer.
func firstInt(rows [][]any) int64 {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0
	}
	return asInt(rows[0][0])
}

// stringColumn extracts the first cell of every row as a string, skipping
// empty cells.
func stringColumn(rows [][]any) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if s := asString(row[0]); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
