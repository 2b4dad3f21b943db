// Package graph runs named states in sequence over a typed state value.
// Each step either executes work and follows its single edge, or evaluates a
// condition and follows the branch it names.
package graph

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/ai-conclave/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeCondition NodeType = "condition"
	NodeTypeCustom    NodeType = "custom"
)

// NodeFunc is the function executed by a node
type NodeFunc[S any] func(context.Context, S) (S, error)

// ConditionFunc evaluates a condition and returns a branch key
type ConditionFunc[S any] func(context.Context, S) (string, error)

// Node represents a node in the execution graph
type Node[S any] struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc[S]
	Condition ConditionFunc[S] // only for condition nodes
	Next      string
	NextMap   map[string]string // condition result -> next node
}

// Graph is a sequential state machine over S.
type Graph[S any] struct {
	nodes     map[string]*Node[S]
	order     []string
	startNode string
	endNode   string
	maxVisits int
}

// NewGraph creates a new graph
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:     make(map[string]*Node[S]),
		maxVisits: 10,
	}
}

func (g *Graph[S]) validateNode(node *Node[S]) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}
	if node.Type == NodeTypeCondition && node.Condition == nil {
		panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
	}
}

// AddNode adds a node to the graph
func (g *Graph[S]) AddNode(node *Node[S]) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}
	g.validateNode(node)

	g.nodes[node.Name] = node
	g.order = append(g.order, node.Name)

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
	if node.Type == NodeTypeEnd {
		g.endNode = node.Name
	}
}

// SetStartNode sets the start node
func (g *Graph[S]) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetEndNode sets the end node
func (g *Graph[S]) SetEndNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.endNode = name
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph[S]) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// GetNode returns a node by name
func (g *Graph[S]) GetNode(name string) (*Node[S], error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// Nodes returns node names in insertion order.
func (g *Graph[S]) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Validate checks that every edge points at a known node and that the graph
// has a start and an end.
func (g *Graph[S]) Validate() error {
	if g.startNode == "" {
		return fmt.Errorf("start node not set")
	}
	if g.endNode == "" {
		return fmt.Errorf("end node not set")
	}
	for _, name := range g.order {
		node := g.nodes[name]
		switch {
		case node.Type == NodeTypeEnd:
		case node.Type == NodeTypeCondition:
			if len(node.NextMap) == 0 {
				return fmt.Errorf("condition node %s has no branches", name)
			}
			for key, next := range node.NextMap {
				if _, ok := g.nodes[next]; !ok {
					return fmt.Errorf("branch %q of node %s points at unknown node %s", key, name, next)
				}
			}
		default:
			if node.Next == "" {
				return fmt.Errorf("no next node specified for node %s", name)
			}
			if _, ok := g.nodes[node.Next]; !ok {
				return fmt.Errorf("node %s points at unknown node %s", name, node.Next)
			}
		}
	}
	return nil
}

// Execute runs the graph from the start node until the end node has run.
// Every visited node gets its own span. A node visited more than maxVisits
// times aborts the run.
func (g *Graph[S]) Execute(ctx context.Context, state S) (S, error) {
	if g.startNode == "" {
		return state, fmt.Errorf("start node not set")
	}

	visited := make(map[string]int)
	current := g.startNode
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, exists := g.nodes[current]
		if !exists {
			return state, fmt.Errorf("node %s not found", current)
		}

		visited[current]++
		if visited[current] > g.maxVisits {
			return state, fmt.Errorf("infinite loop detected at node %s", current)
		}

		next, newState, err := g.step(ctx, node, state)
		if err != nil {
			return state, err
		}
		state = newState

		if node.Type == NodeTypeEnd || node.Name == g.endNode {
			return state, nil
		}
		current = next
	}
}

func (g *Graph[S]) step(ctx context.Context, node *Node[S], state S) (string, S, error) {
	ctx, span := telemetry.Start(ctx, "graph.node",
		attribute.String("graph.node", node.Name),
		attribute.String("graph.node_type", string(node.Type)),
	)

	switch node.Type {
	case NodeTypeCondition:
		result, err := node.Condition(ctx, state)
		if err != nil {
			err = fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
			telemetry.End(span, err)
			return "", state, err
		}
		next := node.NextMap[result]
		if next == "" {
			err = fmt.Errorf("no branch %q at node %s", result, node.Name)
			telemetry.End(span, err)
			return "", state, err
		}
		span.SetAttributes(attribute.String("graph.branch", result))
		telemetry.End(span, nil)
		return next, state, nil

	default:
		if node.Execute != nil {
			newState, err := node.Execute(ctx, state)
			if err != nil {
				err = fmt.Errorf("error executing node %s: %w", node.Name, err)
				telemetry.End(span, err)
				return "", state, err
			}
			state = newState
		}
		telemetry.End(span, nil)
		if node.Type == NodeTypeEnd || node.Name == g.endNode {
			return "", state, nil
		}
		if node.Next == "" {
			return "", state, fmt.Errorf("no next node specified for node %s", node.Name)
		}
		return node.Next, state, nil
	}
}

// Builder helps build graphs fluently
type Builder[S any] struct {
	graph *Graph[S]
}

// NewBuilder creates a new graph builder
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{graph: NewGraph[S]()}
}

// AddNode adds a node to the graph
func (b *Builder[S]) AddNode(name string, nodeType NodeType, execute NodeFunc[S]) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node
func (b *Builder[S]) AddConditionNode(name string, condition ConditionFunc[S], nextMap map[string]string) *Builder[S] {
	b.graph.AddNode(&Node[S]{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	node.Next = to
	return b
}

// Chain connects the named nodes in order.
func (b *Builder[S]) Chain(names ...string) *Builder[S] {
	for i := 0; i+1 < len(names); i++ {
		b.AddEdge(names[i], names[i+1])
	}
	return b
}

// SetStart sets the start node
func (b *Builder[S]) SetStart(name string) *Builder[S] {
	b.graph.SetStartNode(name)
	return b
}

// SetEnd sets the end node
func (b *Builder[S]) SetEnd(name string) *Builder[S] {
	b.graph.SetEndNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder[S]) SetMaxVisits(maxVisits int) *Builder[S] {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// Build validates and returns the constructed graph
func (b *Builder[S]) Build() (*Graph[S], error) {
	if err := b.graph.Validate(); err != nil {
		return nil, err
	}
	return b.graph, nil
}
