package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/toeirei/launchpad/internal/model"
)

const referenceDescriptor = `services:
  - type: web
    name: voice-auth
    env: python
    plan: free
    buildCommand: pip install -r requirements.txt
    startCommand: gunicorn app:app --workers 2 --threads 2 --timeout 60 --bind 0.0.0.0:$PORT --access-logfile - --error-logfile -
    healthCheckPath: /
    envVars:
      - key: OPENAI_API_KEY
        sync: false
      - key: SECRET_KEY
        generateValue: true
      - key: API_KEY
        generateValue: true
      - key: PYTHON_VERSION
        value: 3.11.0
`

func mustParse(t *testing.T, in string) *Descriptor {
	t.Helper()
	d, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return d
}

func TestParse_ReferenceDescriptor(t *testing.T) {
	d := mustParse(t, referenceDescriptor)
	s, err := d.Service("")
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if s.Name != "voice-auth" || s.Type != "web" || s.Plan != "free" {
		t.Fatalf("unexpected service: %+v", s)
	}
	if s.HealthCheckPath != "/" {
		t.Fatalf("expected health path /, got %q", s.HealthCheckPath)
	}
	if got := RuntimeVersion(s); got != "3.11.0" {
		t.Fatalf("expected runtime 3.11.0, got %q", got)
	}
	ext := ExternalKeys(s)
	if len(ext) != 1 || ext[0] != "OPENAI_API_KEY" {
		t.Fatalf("unexpected external keys: %v", ext)
	}

	sources := map[string]model.EnvSource{}
	for _, ev := range s.EnvVars {
		sources[ev.Key] = ev.Source()
	}
	want := map[string]model.EnvSource{
		"OPENAI_API_KEY": model.EnvExternal,
		"SECRET_KEY":     model.EnvGenerated,
		"API_KEY":        model.EnvGenerated,
		"PYTHON_VERSION": model.EnvLiteral,
	}
	for k, v := range want {
		if sources[k] != v {
			t.Errorf("%s: expected source %s, got %s", k, v, sources[k])
		}
	}
}

func TestParse_DefaultsHealthCheckPath(t *testing.T) {
	d := mustParse(t, "services:\n  - type: web\n    name: a\n    startCommand: launchpad serve\n")
	if d.Services[0].HealthCheckPath != DefaultHealthCheckPath {
		t.Fatalf("expected default health path, got %q", d.Services[0].HealthCheckPath)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no services":    "services: []\n",
		"unknown field":  "services:\n  - type: web\n    name: a\n    startCommand: x\n    healthcheckPath: /\n",
		"no start":       "services:\n  - type: web\n    name: a\n",
		"bad type":       "services:\n  - type: lambda\n    name: a\n",
		"relative path":  "services:\n  - type: web\n    name: a\n    startCommand: x\n    healthCheckPath: health\n",
		"dup service":    "services:\n  - type: worker\n    name: a\n  - type: worker\n    name: a\n",
		"two sources":    "services:\n  - type: worker\n    name: a\n    envVars:\n      - key: K\n        value: v\n        generateValue: true\n",
		"no source":      "services:\n  - type: worker\n    name: a\n    envVars:\n      - key: K\n",
		"sync true":      "services:\n  - type: worker\n    name: a\n    envVars:\n      - key: K\n        sync: true\n",
		"bad key":        "services:\n  - type: worker\n    name: a\n    envVars:\n      - key: 1BAD\n        value: v\n",
		"duplicate key":  "services:\n  - type: worker\n    name: a\n    envVars:\n      - key: K\n        value: v\n      - key: K\n        value: w\n",
		"missing name":   "services:\n  - type: worker\n",
		"not yaml":       "services: [\n",
		"missing type":   "services:\n  - name: a\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(in)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestService_Lookup(t *testing.T) {
	d := mustParse(t, "services:\n  - type: worker\n    name: a\n  - type: worker\n    name: b\n")
	if _, err := d.Service(""); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ambiguous lookup to fail, got %v", err)
	}
	if s, err := d.Service("b"); err != nil || s.Name != "b" {
		t.Fatalf("expected service b, got %+v, %v", s, err)
	}
	if _, err := d.Service("c"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func mustFingerprint(t *testing.T, d *Descriptor) string {
	t.Helper()
	fp, err := d.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	return fp
}

func TestFingerprint_IgnoresFormatting(t *testing.T) {
	a := mustFingerprint(t, mustParse(t, referenceDescriptor))
	b := mustFingerprint(t, mustParse(t, "# comment\n"+strings.ReplaceAll(referenceDescriptor, "plan: free", "plan: 'free'")))
	if a != b {
		t.Fatalf("expected equal fingerprints, got %s and %s", a, b)
	}
	c := mustFingerprint(t, mustParse(t, strings.ReplaceAll(referenceDescriptor, "--workers 2", "--workers 3")))
	if a == c {
		t.Fatal("expected start command change to alter the fingerprint")
	}
}

type unencodable struct{}

func (unencodable) MarshalYAML() (any, error) { return nil, errors.New("no yaml form") }

func TestDigest_EncodeError(t *testing.T) {
	fp, err := digest(unencodable{})
	if err == nil || !strings.Contains(err.Error(), "no yaml form") {
		t.Fatalf("expected the encode error to surface, got %q, %v", fp, err)
	}
	if fp != "" {
		t.Fatalf("expected no digest on failure, got %q", fp)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	if err := os.WriteFile(path, []byte(referenceDescriptor), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Path() != path {
		t.Fatalf("expected path %q, got %q", path, d.Path())
	}
}

func TestLoad_ShippedExample(t *testing.T) {
	d, err := Load(filepath.Join("..", "..", "examples", "render.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ref := mustParse(t, referenceDescriptor)
	if mustFingerprint(t, d) != mustFingerprint(t, ref) {
		t.Fatal("examples/render.yaml drifted from the reference descriptor")
	}
}
