package flatconf

import (
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Decode reads a YAML document and converts it with FromNode.
func Decode(r io.Reader) (any, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &ShapeError{Reason: "empty document"}
		}
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return FromNode(&doc)
}

// FromNode converts a parsed YAML tree into a configuration value made of
// bool, Number, string, []any and map[string]any.
//
// Aliases are resolved and merge keys ("<<") are applied. Null scalars,
// non-scalar keys and keys that collide once rendered as strings are
// rejected with a *ShapeError carrying the source line.
func FromNode(n *yaml.Node) (any, error) {
	c := &nodeConverter{active: make(map[*yaml.Node]bool)}
	return c.convert(n, "")
}

type nodeConverter struct {
	// active holds the nodes on the current descent so alias cycles are
	// reported instead of recursing forever.
	active map[*yaml.Node]bool
}

func (c *nodeConverter) convert(n *yaml.Node, path string) (any, error) {
	if n == nil {
		return nil, &ShapeError{Path: path, Reason: "null value"}
	}
	if c.active[n] {
		return nil, &ShapeError{Path: path, Line: n.Line, Reason: "alias refers to itself"}
	}
	c.active[n] = true
	defer delete(c.active, n)

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, &ShapeError{Path: path, Reason: "empty document"}
		}
		return c.convert(n.Content[0], path)
	case yaml.AliasNode:
		return c.convert(n.Alias, path)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for i, item := range n.Content {
			v, err := c.convert(item, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		return c.mapping(n, path)
	case yaml.ScalarNode:
		return scalarValue(n, path)
	default:
		return nil, &ShapeError{Path: path, Line: n.Line, Reason: fmt.Sprintf("unsupported yaml node kind %d", n.Kind)}
	}
}

func (c *nodeConverter) mapping(n *yaml.Node, path string) (map[string]any, error) {
	out := make(map[string]any, len(n.Content)/2)
	var merges []*yaml.Node

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := resolveAlias(n.Content[i]), n.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, &ShapeError{Path: path, Line: keyNode.Line, Reason: "mapping key is not a scalar"}
		}
		if keyNode.ShortTag() == "!!merge" {
			merges = append(merges, valueNode)
			continue
		}

		key := keyNode.Value
		if _, dup := out[key]; dup {
			return nil, &ShapeError{Path: path, Key: key, Line: keyNode.Line, Reason: "duplicate key after string conversion"}
		}
		v, err := c.convert(valueNode, path+"/"+key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}

	// Explicit keys win over merged ones.
	for _, m := range merges {
		sources := []*yaml.Node{resolveAlias(m)}
		if sources[0].Kind == yaml.SequenceNode {
			sources = sources[0].Content
		}
		for _, src := range sources {
			v, err := c.convert(src, path)
			if err != nil {
				return nil, err
			}
			merged, ok := v.(map[string]any)
			if !ok {
				return nil, &ShapeError{Path: path, Line: m.Line, Reason: "merge value is not a mapping"}
			}
			for k, mv := range merged {
				if _, exists := out[k]; !exists {
					out[k] = mv
				}
			}
		}
	}
	return out, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func scalarValue(n *yaml.Node, path string) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, &ShapeError{Path: path, Line: n.Line, Reason: "null value"}
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, &ShapeError{Path: path, Line: n.Line, Reason: err.Error()}
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return Number(strconv.FormatInt(i, 10)), nil
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return nil, &ShapeError{Path: path, Line: n.Line, Reason: fmt.Sprintf("integer %q out of range", n.Value)}
		}
		return Number(strconv.FormatUint(u, 10)), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, &ShapeError{Path: path, Line: n.Line, Reason: err.Error()}
		}
		return Number(FormatFloat(f, 64)), nil
	default:
		// Strings, timestamps and binary blobs travel as their source text.
		return n.Value, nil
	}
}

// MarshalYAML emits the literal as a plain YAML number.
func (n Number) MarshalYAML() (any, error) {
	s := string(n)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: s}, nil
	}
	switch s {
	case "nan":
		s = ".nan"
	case "inf":
		s = ".inf"
	case "-inf":
		s = "-.inf"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}, nil
}
