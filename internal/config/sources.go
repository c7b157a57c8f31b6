package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type includeRef struct {
	Value  string
	Source Source
}

func nodeSource(file string, n *yaml.Node) Source {
	return Source{Kind: SourceFile, File: file, Line: n.Line, Column: n.Column}
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc != nil && doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return doc
}

// recordSources stores the position of every value under node, keyed by
// dotted path. Sequence items that carry a name (rules) are keyed by that
// name rather than by index, so positions stay correct after rules from
// several files are merged.
func recordSources(node *yaml.Node, file, prefix string, out map[string]Source) {
	if node == nil {
		return
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			path := node.Content[i].Value
			if prefix != "" {
				path = prefix + "." + path
			}
			val := node.Content[i+1]
			out[path] = nodeSource(file, val)
			recordSources(val, file, path, out)
		}
	case yaml.SequenceNode:
		if prefix != "" {
			out[prefix] = nodeSource(file, node)
		}
		for i, item := range node.Content {
			path := fmt.Sprintf("%s[%d]", prefix, i)
			if name := mappingName(item); name != "" {
				path = prefix + "." + name
			}
			out[path] = nodeSource(file, item)
			recordSources(item, file, path, out)
		}
	}
}

// mappingName returns the scalar "name" field of a mapping node.
func mappingName(node *yaml.Node) string {
	if node == nil || node.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "name" && node.Content[i+1].Kind == yaml.ScalarNode {
			return node.Content[i+1].Value
		}
	}
	return ""
}

// includeRefs returns the entries of the top-level include key, which may
// be a single string or a list.
func includeRefs(root *yaml.Node, file string) []includeRef {
	if root == nil || root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "include" {
			continue
		}
		val := root.Content[i+1]
		items := []*yaml.Node{val}
		if val.Kind == yaml.SequenceNode {
			items = val.Content
		}
		var refs []includeRef
		for _, item := range items {
			if item.Kind == yaml.ScalarNode {
				refs = append(refs, includeRef{Value: item.Value, Source: nodeSource(file, item)})
			}
		}
		return refs
	}
	return nil
}
