package flatconf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Type tags written after ":type".
const (
	TypeBool = "bool"
	TypeNum  = "num"
	TypeStr  = "str"
	TypeDict = "dict"
	TypeList = "list"
)

// Marker names. Keys may not start with ':' so these never clash with
// mapping children.
const (
	markerType   = ":type"
	markerLength = ":length"
	markerKeys   = ":keys"
)

// Entry is one line of the encoding.
type Entry struct {
	Path    string
	Payload string
}

// String renders the entry as it appears in the encoded file.
func (e Entry) String() string {
	return e.Path + " " + e.Payload
}

// Entries flattens v starting at the root path.
func Entries(v any) ([]Entry, error) {
	return EntriesAt(v, "")
}

// EntriesAt flattens v as if it were located at root.
//
// Supported values are bool, Go integer and float kinds, Number,
// json.Number, string, slices and arrays of supported values, and maps
// whose keys render to valid key names via fmt.Sprint. Anything else,
// including nil, is a *ShapeError.
func EntriesAt(v any, root string) ([]Entry, error) {
	enc := &encoder{}
	if err := enc.encode(root, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return enc.entries, nil
}

// Encode flattens v and joins the entries with newlines, one per line.
func Encode(v any) ([]byte, error) {
	entries, err := Entries(v)
	if err != nil {
		return nil, err
	}
	return Join(entries), nil
}

// Join renders entries in order, separated by newlines.
func Join(entries []Entry) []byte {
	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(e.Path)
		buf.WriteByte(' ')
		buf.WriteString(e.Payload)
	}
	return buf.Bytes()
}

var (
	numberType     = reflect.TypeOf(Number(""))
	jsonNumberType = reflect.TypeOf(json.Number(""))
)

type encoder struct {
	entries []Entry
}

func (e *encoder) emit(path, payload string) {
	e.entries = append(e.entries, Entry{Path: path, Payload: payload})
}

func (e *encoder) scalar(path, typ, literal string) {
	e.emit(path+"/"+markerType, typ)
	e.emit(path+"/", literal)
}

func (e *encoder) encode(path string, v reflect.Value) error {
	if !v.IsValid() {
		return &ShapeError{Path: path, Reason: "null value"}
	}

	// Literal number types are strings underneath, check them first.
	if v.Type() == numberType || v.Type() == jsonNumberType {
		n := Number(v.String())
		if !n.valid() {
			return &ShapeError{Path: path, Reason: fmt.Sprintf("invalid number literal %q", v.String())}
		}
		e.scalar(path, TypeNum, string(n))
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return &ShapeError{Path: path, Reason: "null value"}
		}
		return e.encode(path, v.Elem())

	case reflect.Bool:
		literal := "0"
		if v.Bool() {
			literal = "1"
		}
		e.scalar(path, TypeBool, literal)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.scalar(path, TypeNum, strconv.FormatInt(v.Int(), 10))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.scalar(path, TypeNum, strconv.FormatUint(v.Uint(), 10))

	case reflect.Float32:
		e.scalar(path, TypeNum, FormatFloat(v.Float(), 32))

	case reflect.Float64:
		e.scalar(path, TypeNum, FormatFloat(v.Float(), 64))

	case reflect.String:
		s := v.String()
		if strings.ContainsAny(s, "\r\n") {
			return &ShapeError{Path: path, Reason: "string value contains a line break"}
		}
		e.scalar(path, TypeStr, s)

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return &ShapeError{Path: path, Reason: "null value"}
		}
		return e.list(path, v)

	case reflect.Map:
		if v.IsNil() {
			return &ShapeError{Path: path, Reason: "null value"}
		}
		return e.mapping(path, v)

	default:
		return &ShapeError{Path: path, Reason: fmt.Sprintf("unsupported value of type %s", v.Type())}
	}
	return nil
}

func (e *encoder) list(path string, v reflect.Value) error {
	n := v.Len()
	e.emit(path+"/"+markerType, TypeList)
	e.emit(path+"/"+markerLength, strconv.Itoa(n))
	for i := 0; i < n; i++ {
		if err := e.encode(path+"["+strconv.Itoa(i)+"]", v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) mapping(path string, v reflect.Value) error {
	children := make(map[string]reflect.Value, v.Len())
	keys := make([]string, 0, v.Len())
	var duplicates []string

	iter := v.MapRange()
	for iter.Next() {
		key := fmt.Sprint(iter.Key().Interface())
		if _, seen := children[key]; seen {
			duplicates = append(duplicates, key)
			continue
		}
		children[key] = iter.Value()
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Report the smallest offending key so errors are stable across runs.
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return &ShapeError{Path: path, Key: duplicates[0], Reason: "duplicate key after string conversion"}
	}
	for _, key := range keys {
		if !ValidKey(key) {
			return &ShapeError{Path: path, Key: key, Reason: "key must be non-empty and must not contain '/', '[', ']', spaces or a leading ':'"}
		}
	}

	e.emit(path+"/"+markerType, TypeDict)
	e.emit(path+"/"+markerLength, strconv.Itoa(len(keys)))
	for i, key := range keys {
		e.emit(path+"/"+markerKeys+"["+strconv.Itoa(i)+"]", key)
		if err := e.encode(path+"/"+key, children[key]); err != nil {
			return err
		}
	}
	return nil
}
