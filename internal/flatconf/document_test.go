package flatconf

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_Lookups(t *testing.T) {
	input := strings.Join([]string{
		"/:type dict",
		"/:length 2",
		"/:keys[0] name",
		"/name/:type str",
		"/name/ hello world",
		"/:keys[1] cores",
		"/cores/:type list",
		"/cores/:length 1",
		"/cores[0]/:type num",
		"/cores[0]/ 3",
	}, "\n")

	doc, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got, _ := doc.Scalar("/name"); got != "hello world" {
		t.Errorf("Scalar(/name) = %q, want %q", got, "hello world")
	}
	if got, _ := doc.Type("/cores"); got != TypeList {
		t.Errorf("Type(/cores) = %q, want %q", got, TypeList)
	}
	keys, err := doc.Keys("")
	if err != nil || len(keys) != 2 || keys[0] != "name" || keys[1] != "cores" {
		t.Errorf("Keys() = %v, %v; want [name cores]", keys, err)
	}
	if _, err := doc.Type("/missing"); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Type(/missing) error = %v, want ErrPathNotFound", err)
	}
	if len(doc.Entries()) != 10 {
		t.Errorf("len(Entries()) = %d, want 10", len(doc.Entries()))
	}
}

func TestParse_MalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("/:type dict\n/:length\n"))
	if !errors.Is(err, ErrMalformedLine) {
		t.Fatalf("Parse() error = %v, want ErrMalformedLine", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q should name line 2", err)
	}
}
