package compile

import (
	"strconv"

	"github.com/awalterschulze/gographviz"

	"github.com/loomkit/loom/pkg/core"
)

const graphName = "workflow"

// ExportDOT renders a workflow's state graph as Graphviz DOT, mostly
// for operator inspection of what the miner deployed.
func ExportDOT(wf *core.SynthesizedWorkflow) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(graphName); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	for _, id := range wf.StateOrder {
		state := wf.States[id]
		attrs := map[string]string{
			"label": strconv.Quote(id),
			"shape": shapeOf(state.Kind),
		}
		if err := g.AddNode(graphName, strconv.Quote(id), attrs); err != nil {
			return "", err
		}
	}

	for _, id := range wf.StateOrder {
		state := wf.States[id]
		if state.Next != "" {
			if err := g.AddEdge(strconv.Quote(id), strconv.Quote(state.Next), true, nil); err != nil {
				return "", err
			}
		}
		for _, rule := range state.Choices {
			attrs := map[string]string{"label": strconv.Quote(rule.Guard)}
			if err := g.AddEdge(strconv.Quote(id), strconv.Quote(rule.Target), true, attrs); err != nil {
				return "", err
			}
		}
		if state.Default != "" && !hasChoiceTarget(state, state.Default) {
			attrs := map[string]string{"label": strconv.Quote("default")}
			if err := g.AddEdge(strconv.Quote(id), strconv.Quote(state.Default), true, attrs); err != nil {
				return "", err
			}
		}
	}

	return g.String(), nil
}

func hasChoiceTarget(state *core.State, target string) bool {
	for _, rule := range state.Choices {
		if rule.Target == target {
			return true
		}
	}
	return false
}

func shapeOf(kind core.StateKind) string {
	switch kind {
	case core.StateValidation:
		return "parallelogram"
	case core.StateChoice:
		return "diamond"
	case core.StateEnd:
		return "doublecircle"
	default:
		return "box"
	}
}
