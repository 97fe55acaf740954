package extract

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseEnv(t *testing.T) {
	got, err := ParseEnv([]byte(`
# comment
API_KEY=abc123
QUOTED="with spaces"
SINGLE='x=y'
export EXPORTED=1
EMPTY=
URL=https://host/?a=b
not a pair
 TRIMMED = value
`))
	want := []KV{
		{Key: "API_KEY", Value: "abc123"},
		{Key: "QUOTED", Value: "with spaces"},
		{Key: "SINGLE", Value: "x=y"},
		{Key: "EXPORTED", Value: "1"},
		{Key: "EMPTY", Value: ""},
		{Key: "URL", Value: "https://host/?a=b"},
		{Key: "TRIMMED", Value: "value"},
	}
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseEnv mismatch (-want +got):\n%s", diff)
	}
}

func TestParseProperties(t *testing.T) {
	got, err := ParseProperties([]byte(`
! bang comment
# hash comment
db.host=x
db.port: 5432
jdbc.url=jdbc:postgresql://db:5432/app
quoted="kept"
`))
	want := []KV{
		{Key: "db.host", Value: "x"},
		{Key: "db.port", Value: "5432"},
		{Key: "jdbc.url", Value: "jdbc:postgresql://db:5432/app"},
		{Key: "quoted", Value: `"kept"`},
	}
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseProperties mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLineTooLong(t *testing.T) {
	content := "A=1\nBIG=" + strings.Repeat("x", 2<<20) + "\nAFTER=2\n"

	kvs, err := ParseEnv([]byte(content))
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("wanted bufio.ErrTooLong got %v", err)
	}
	if kvs != nil {
		t.Errorf("wanted no entries from a truncated file got %+v", kvs)
	}

	if _, err := ParseProperties([]byte(content)); !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("wanted bufio.ErrTooLong got %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	got, err := ParseYAML([]byte(`
database:
  user: app
  port: 5432
  ssl: true
  ratio: 0.5
hosts:
  - a.example.com
  - name: b
empty:
`))
	if err != nil {
		t.Fatal(err)
	}
	want := []KV{
		{Key: "database.port", Value: "5432"},
		{Key: "database.ratio", Value: "0.5"},
		{Key: "database.ssl", Value: "true"},
		{Key: "database.user", Value: "app"},
		{Key: "empty", Value: ""},
		{Key: "hosts[0]", Value: "a.example.com"},
		{Key: "hosts[1].name", Value: "b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseYAML mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseYAML([]byte("a: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := ParseYAML([]byte("just a string")); err == nil {
		t.Error("expected error for scalar document")
	}
}
