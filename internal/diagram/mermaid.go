package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a Model as a Mermaid flowchart string.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	// Render nodes with shapes based on kind.
	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	// Render edges.
	for _, edge := range model.Edges {
		b.WriteString(fmt.Sprintf("    %s --> %s\n",
			mermaidSafeID(edge.From), mermaidSafeID(edge.To)))
	}

	// Status class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	// Apply status classes.
	for _, node := range model.Nodes {
		if node.Status == nil {
			continue
		}
		if cls := mermaidStatusClass(node.Status.Status); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := node.Label

	switch node.Kind {
	case NodeKindApproval:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindSession:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindWorkflow:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindResolve, NodeKindReject:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // action, notify, log
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidStatusClass maps a status string to a Mermaid class name.
func mermaidStatusClass(status string) string {
	switch status {
	case "completed":
		return "completed"
	case "failed":
		return "failed"
	case "running":
		return "running"
	case "pending":
		return "pending"
	case "skipped":
		return "skipped"
	default:
		return ""
	}
}
