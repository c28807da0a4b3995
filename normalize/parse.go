package normalize

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	yaml "go.yaml.in/yaml/v3"
)

// Delimiter is the front-matter fence Cast recognizes, one of the
// conventions front-matter tools (Hugo, Jekyll, Obsidian) share.
const Delimiter = "---"

// Document is the parsed-but-not-yet-canonicalized form of a vault
// file: a header block (if any) plus the raw body bytes, both already
// converted to LF line endings.
type Document struct {
	HasHeader bool
	Header    Header
	Body      []byte
}

// Parse decodes raw file bytes into a Document. It fails with a
// non-nil error on invalid UTF-8 or an unparsable header block; the
// callers in apply and index wrap either failure as casterr.Encoding.
// A file with no leading "---" fence is valid and treated as body-only.
func Parse(raw []byte) (*Document, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	content := toLF(raw)

	header, body, hasHeader, err := splitHeader(content)
	if err != nil {
		return nil, err
	}
	return &Document{HasHeader: hasHeader, Header: header, Body: body}, nil
}

// toLF converts CRLF and lone CR line endings to LF.
func toLF(in []byte) []byte {
	in = bytes.ReplaceAll(in, []byte("\r\n"), []byte("\n"))
	in = bytes.ReplaceAll(in, []byte("\r"), []byte("\n"))
	return in
}

func splitHeader(content []byte) (Header, []byte, bool, error) {
	fence := []byte(Delimiter)
	if !bytes.HasPrefix(content, fence) {
		return nil, content, false, nil
	}
	rest := content[len(fence):]
	if len(rest) == 0 || (rest[0] != '\n' && rest[0] != '\r') {
		// "---" followed by more dashes or text (e.g. a markdown rule
		// inside the body) is not a fence.
		return nil, content, false, nil
	}
	rest = rest[1:]

	end := bytes.Index(rest, []byte("\n"+Delimiter))
	if end == -1 {
		return nil, nil, false, fmt.Errorf("unterminated header block: missing closing %q", Delimiter)
	}
	rawHeader := rest[:end]
	afterFence := rest[end+1+len(fence):]
	// Consume the newline that ends the closing fence line, if any.
	if len(afterFence) > 0 && afterFence[0] == '\n' {
		afterFence = afterFence[1:]
	}

	header, err := parseYAMLHeader(rawHeader)
	if err != nil {
		return nil, nil, false, fmt.Errorf("parsing header block: %w", err)
	}
	return header, afterFence, true, nil
}

func parseYAMLHeader(raw []byte) (Header, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return Header{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("header block must be a mapping, got kind %d", root.Kind)
	}
	return nodeToHeader(root)
}

func nodeToHeader(mapping *yaml.Node) (Header, error) {
	out := make(Header, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valNode := mapping.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("header keys must be scalars, got kind %d", keyNode.Kind)
		}
		val, err := nodeToValue(valNode)
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Key: keyNode.Value, Value: val})
	}
	return out, nil
}

func nodeToValue(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return Value{Kind: KindNull}, nil
		}
		return Value{Kind: KindScalar, Scalar: n.Value}, nil
	case yaml.SequenceNode:
		seq := make([]Value, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := nodeToValue(item)
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, v)
		}
		return Value{Kind: KindSequence, Sequence: seq}, nil
	case yaml.MappingNode:
		h, err := nodeToHeader(n)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindMapping, Mapping: h}, nil
	default:
		return Value{}, fmt.Errorf("unsupported header value kind %d", n.Kind)
	}
}
