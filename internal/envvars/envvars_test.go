package envvars

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/toeirei/launchpad/internal/model"
	"github.com/toeirei/launchpad/internal/security"
)

func boolPtr(b bool) *bool { return &b }

func referenceDecls() []model.EnvVarDecl {
	return []model.EnvVarDecl{
		{Key: "OPENAI_API_KEY", Sync: boolPtr(false)},
		{Key: "SECRET_KEY", GenerateValue: true},
		{Key: "API_KEY", GenerateValue: true},
		{Key: "PYTHON_VERSION", Value: "3.11.0"},
	}
}

func TestResolve_ReferenceDeclarations(t *testing.T) {
	r := Resolver{Sources: Map{"OPENAI_API_KEY": "sk-test"}}
	env, err := r.Resolve(referenceDecls())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	m := env.Map()
	if m["OPENAI_API_KEY"] != "sk-test" || m["PYTHON_VERSION"] != "3.11.0" {
		t.Fatalf("unexpected values: %v", m)
	}
	if m["SECRET_KEY"] == "" || m["API_KEY"] == "" || m["SECRET_KEY"] == m["API_KEY"] {
		t.Fatalf("expected two distinct generated values, got %q and %q", m["SECRET_KEY"], m["API_KEY"])
	}

	fps := env.Fingerprints()
	if _, ok := fps["PYTHON_VERSION"]; ok {
		t.Fatal("literal values should not be fingerprinted")
	}
	if len(fps) != 3 {
		t.Fatalf("expected 3 fingerprints, got %v", fps)
	}
	environ := strings.Join(env.Environ(), "\n")
	if !strings.Contains(environ, "PYTHON_VERSION=3.11.0") {
		t.Fatalf("unexpected environ: %s", environ)
	}
}

func TestResolve_GeneratesFreshValuesEachTime(t *testing.T) {
	r := Resolver{Sources: Map{"OPENAI_API_KEY": "sk-test"}}
	a, err := r.Resolve(referenceDecls())
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(referenceDecls())
	if err != nil {
		t.Fatal(err)
	}
	if a.Map()["SECRET_KEY"] == b.Map()["SECRET_KEY"] {
		t.Fatal("SECRET_KEY must be regenerated on every resolution")
	}
	if a.Map()["OPENAI_API_KEY"] != b.Map()["OPENAI_API_KEY"] {
		t.Fatal("external value must be stable")
	}
}

func TestResolve_MissingExternalFailsFast(t *testing.T) {
	decls := append(referenceDecls(), model.EnvVarDecl{Key: "ANOTHER", Sync: boolPtr(false)})
	_, err := Resolver{Sources: Map{"OPENAI_API_KEY": ""}}.Resolve(decls)
	if !errors.Is(err, ErrMissingValue) {
		t.Fatalf("expected ErrMissingValue, got %v", err)
	}
	var me *MissingError
	if !errors.As(err, &me) || strings.Join(me.Keys, ",") != "ANOTHER,OPENAI_API_KEY" {
		t.Fatalf("expected both keys reported, got %v", err)
	}
}

func TestResolve_GeneratorError(t *testing.T) {
	r := Resolver{
		Sources:  Map{"OPENAI_API_KEY": "x"},
		Generate: func() (security.Secret, error) { return nil, errors.New("boom") },
	}
	if _, err := r.Resolve(referenceDecls()); err == nil || !strings.Contains(err.Error(), "SECRET_KEY") {
		t.Fatalf("expected generator error naming the key, got %v", err)
	}
}

func TestRequire(t *testing.T) {
	if err := Require(Map{"OPENAI_API_KEY": "sk"}, "OPENAI_API_KEY"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Require(Map{"OPENAI_API_KEY": "  "}, "OPENAI_API_KEY"); !errors.Is(err, ErrMissingValue) {
		t.Fatalf("blank value must count as missing, got %v", err)
	}
	if err := Require(Map{}, "OPENAI_API_KEY"); !errors.Is(err, ErrMissingValue) {
		t.Fatalf("expected ErrMissingValue, got %v", err)
	}
}

func TestChain_FirstNonEmptyWins(t *testing.T) {
	c := Chain{Map{"A": ""}, Map{"A": "second"}, Map{"A": "third"}}
	v, ok, err := c.Lookup("A")
	if err != nil || !ok || v != "second" {
		t.Fatalf("expected second, got %q %v %v", v, ok, err)
	}
	if _, ok, _ := c.Lookup("B"); ok {
		t.Fatal("expected B to be absent")
	}
}

func TestProcess_Lookup(t *testing.T) {
	t.Setenv("LAUNCHPAD_TEST_VALUE", "on")
	v, ok, err := Process{}.Lookup("LAUNCHPAD_TEST_VALUE")
	if err != nil || !ok || v != "on" {
		t.Fatalf("unexpected lookup result %q %v %v", v, ok, err)
	}
}

func TestDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("OPENAI_API_KEY=sk-from-file\n# comment\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := Dotenv(path)
	if err != nil {
		t.Fatalf("Dotenv: %v", err)
	}
	if v, ok, _ := src.Lookup("OPENAI_API_KEY"); !ok || v != "sk-from-file" {
		t.Fatalf("unexpected value %q", v)
	}

	missing, err := Dotenv(filepath.Join(dir, "absent.env"))
	if err != nil {
		t.Fatalf("missing dotenv should not fail: %v", err)
	}
	if _, ok, _ := missing.Lookup("OPENAI_API_KEY"); ok {
		t.Fatal("expected empty source for a missing file")
	}
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	p := &Prompt{
		Out:        &out,
		isTerminal: func(int) bool { return true },
		read:       func(int) ([]byte, error) { return []byte(" sk-typed \n"), nil },
	}
	v, ok, err := p.Lookup("OPENAI_API_KEY")
	if err != nil || !ok || v != "sk-typed" {
		t.Fatalf("unexpected prompt result %q %v %v", v, ok, err)
	}
	if !strings.Contains(out.String(), "OPENAI_API_KEY: ") {
		t.Fatalf("expected prompt text, got %q", out.String())
	}

	p.isTerminal = func(int) bool { return false }
	if _, ok, _ := p.Lookup("OPENAI_API_KEY"); ok {
		t.Fatal("non-terminal prompt must report absent")
	}

	p.isTerminal = func(int) bool { return true }
	p.read = func(int) ([]byte, error) { return nil, errors.New("tty closed") }
	if _, _, err := p.Lookup("OPENAI_API_KEY"); err == nil {
		t.Fatal("expected read error")
	}
}
