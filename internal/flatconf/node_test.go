package flatconf

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDecode_ScalarTypes(t *testing.T) {
	input := `
enabled: true
cores: [0, 1]
big: 18446744073709551615
ratio: 0.75
hex: 0x10
name: pv
quoted: "123"
when: 2024-01-02
`
	v, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	m := v.(map[string]any)

	checks := map[string]any{
		"enabled": true,
		"big":     Number("18446744073709551615"),
		"ratio":   Number("0.75"),
		"hex":     Number("16"),
		"name":    "pv",
		"quoted":  "123",
		"when":    "2024-01-02",
	}
	for key, want := range checks {
		if m[key] != want {
			t.Errorf("%s = %#v, want %#v", key, m[key], want)
		}
	}

	cores, ok := m["cores"].([]any)
	if !ok || len(cores) != 2 || cores[0] != Number("0") || cores[1] != Number("1") {
		t.Errorf("cores = %#v, want [0 1]", m["cores"])
	}
}

func TestDecode_AliasAndMerge(t *testing.T) {
	input := `
base: &base
  rx_queue: 1024
  tx_queue: 1024
nics:
  - <<: *base
    dev: eth0
  - <<: *base
    dev: eth1
    tx_queue: 512
`
	v, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	nics := v.(map[string]any)["nics"].([]any)
	second := nics[1].(map[string]any)
	if second["tx_queue"] != Number("512") {
		t.Errorf("tx_queue = %v, want explicit value 512", second["tx_queue"])
	}
	if second["rx_queue"] != Number("1024") {
		t.Errorf("rx_queue = %v, want merged value 1024", second["rx_queue"])
	}
	if _, ok := second["<<"]; ok {
		t.Error("merge key leaked into the mapping")
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"null value", "a: 1\nb: ~\n", 2},
		{"empty value", "a:\n", 1},
		{"duplicate after coercion", "1: a\n\"1\": b\n", 2},
		{"sequence key", "? [a, b]\n: c\n", 1},
		{"empty document", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			if !errors.Is(err, ErrInvalidShape) {
				t.Fatalf("Decode() error = %v, want ErrInvalidShape", err)
			}
			var shapeErr *ShapeError
			if errors.As(err, &shapeErr) && shapeErr.Line != tt.line {
				t.Errorf("Line = %d, want %d", shapeErr.Line, tt.line)
			}
		})
	}
}

func TestDecode_SyntaxError(t *testing.T) {
	_, err := Decode(strings.NewReader("a: [1, 2\n"))
	if err == nil {
		t.Fatal("Decode() error = nil, want syntax error")
	}
	if errors.Is(err, ErrInvalidShape) {
		t.Error("syntax errors should not be reported as shape errors")
	}
}

func TestNumber_MarshalYAML(t *testing.T) {
	tests := []struct {
		in   Number
		want string
	}{
		{Number("1024"), "v: 1024\n"},
		{Number("0.75"), "v: 0.75\n"},
		{Number("inf"), "v: .inf\n"},
	}

	for _, tt := range tests {
		out, err := yaml.Marshal(map[string]any{"v": tt.in})
		if err != nil {
			t.Fatalf("Marshal(%s) error = %v", tt.in, err)
		}
		if string(out) != tt.want {
			t.Errorf("Marshal(%s) = %q, want %q", tt.in, out, tt.want)
		}
	}
}
