package flatconf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxLineLength is the line buffer of the child's reader, including the
// newline and the terminating NUL.
const MaxLineLength = 200

// LongLines returns the paths of entries the child's reader would truncate.
func LongLines(entries []Entry) []string {
	var paths []string
	for _, e := range entries {
		if len(e.Path)+1+len(e.Payload) > MaxLineLength-2 {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Document is an encoded configuration read back into path lookups.
type Document struct {
	entries []Entry
	index   map[string]string
}

// Parse reads an encoding produced by Encode. Each line is split at its
// first space; later duplicates of a path overwrite earlier ones, as in
// the child's reader.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{index: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		path, payload, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLine, lineNo, line)
		}
		doc.entries = append(doc.entries, Entry{Path: path, Payload: payload})
		doc.index[path] = payload
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading encoded config: %w", err)
	}
	return doc, nil
}

// Entries returns the lines in file order.
func (d *Document) Entries() []Entry {
	return d.entries
}

// Type returns the type tag of the node at path ("" is the root).
func (d *Document) Type(path string) (string, error) {
	typ, ok := d.index[path+"/"+markerType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPathNotFound, displayPath(path))
	}
	return typ, nil
}

// Length returns the child count of a dict or list node.
func (d *Document) Length(path string) (int, error) {
	raw, ok := d.index[path+"/"+markerLength]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPathNotFound, displayPath(path))
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s: bad length %q", ErrMalformedLine, displayPath(path), raw)
	}
	return n, nil
}

// Keys returns the keys of a dict node in encoded order.
func (d *Document) Keys(path string) ([]string, error) {
	n, err := d.Length(path)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, ok := d.index[path+"/"+markerKeys+"["+strconv.Itoa(i)+"]"]
		if !ok {
			return nil, fmt.Errorf("%w: %s: key %d", ErrPathNotFound, displayPath(path), i)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Scalar returns the literal value of a scalar node.
func (d *Document) Scalar(path string) (string, error) {
	v, ok := d.index[path+"/"]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPathNotFound, displayPath(path))
	}
	return v, nil
}

// Value rebuilds the configuration value rooted at path.
func (d *Document) Value(path string) (any, error) {
	typ, err := d.Type(path)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeBool:
		raw, err := d.Scalar(path)
		if err != nil {
			return nil, err
		}
		return raw == "1", nil
	case TypeNum:
		raw, err := d.Scalar(path)
		if err != nil {
			return nil, err
		}
		return Number(raw), nil
	case TypeStr:
		return d.Scalar(path)
	case TypeList:
		n, err := d.Length(path)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := d.Value(path + "[" + strconv.Itoa(i) + "]")
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case TypeDict:
		keys, err := d.Keys(path)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(keys))
		for _, key := range keys {
			v, err := d.Value(path + "/" + key)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown type %q", ErrMalformedLine, displayPath(path), typ)
	}
}
