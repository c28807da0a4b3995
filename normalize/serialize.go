package normalize

import (
	"bytes"

	yaml "go.yaml.in/yaml/v3"
)

// Serialize renders header and body back into file bytes: a "---"
// fenced header block (if header is non-empty) followed by the body.
// The header's key order is exactly the slice order passed in — callers
// that need identity-first or digest ordering must call EnsureFirst /
// SortedForDigest themselves first.
func Serialize(header Header, body []byte) []byte {
	var buf bytes.Buffer
	if len(header) > 0 {
		buf.WriteString(Delimiter)
		buf.WriteByte('\n')
		buf.Write(headerToYAML(header))
		buf.WriteString(Delimiter)
		buf.WriteByte('\n')
	}
	buf.Write(body)
	return buf.Bytes()
}

func headerToYAML(header Header) []byte {
	node := headerToNode(header)
	out, err := yaml.Marshal(node)
	if err != nil {
		// A Header built exclusively from nodeToValue/Header literals
		// cannot fail to marshal; surface it loudly in tests if it ever does.
		panic(err)
	}
	return out
}

func headerToNode(header Header) *yaml.Node {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, kv := range header {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Key}
		mapping.Content = append(mapping.Content, keyNode, valueToNode(kv.Value))
	}
	return mapping
}

func valueToNode(v Value) *yaml.Node {
	switch v.Kind {
	case KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case KindSequence:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Sequence {
			seq.Content = append(seq.Content, valueToNode(item))
		}
		return seq
	case KindMapping:
		return headerToNode(v.Mapping)
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Scalar}
	}
}
