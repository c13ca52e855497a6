package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/toeirei/launchpad/internal/model"
)

const referenceManifest = `Flask==3.0.0
Flask-SQLAlchemy==3.1.1
SQLAlchemy==2.0.23
psycopg2-binary==2.9.9
openai==1.3.7
gunicorn==21.2.0
`

func TestParse_ReferenceManifest(t *testing.T) {
	m, err := Parse(strings.NewReader(referenceManifest))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(m.Dependencies) != 6 {
		t.Fatalf("expected 6 dependencies, got %d", len(m.Dependencies))
	}
	first := m.Dependencies[0]
	if first.Name != "Flask" || first.Version != "3.0.0" || first.Line != 1 {
		t.Fatalf("unexpected first record: %+v", first)
	}
}

func TestParse_CommentsExtrasMarkersAndContinuations(t *testing.T) {
	in := `# header comment

psycopg[pool,binary]==3.1.12 ; python_version >= "3.8"  # driver
requests==2.31.0 \
    # trailing
`
	m, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []model.Dependency{
		{Name: "psycopg", Version: "3.1.12", Extras: []string{"binary", "pool"}, Marker: `python_version >= "3.8"`, Line: 3},
		{Name: "requests", Version: "2.31.0", Line: 4},
	}
	if diff := cmp.Diff(want, m.Dependencies, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"bare name", "Flask\n", ErrUnpinned},
		{"range", "Flask>=2.0\n", ErrUnpinned},
		{"compatible release", "Flask~=2.0\n", ErrUnpinned},
		{"arbitrary equality", "Flask===2.0\n", ErrUnpinned},
		{"pin plus range", "Flask==2.0,<3\n", ErrUnpinned},
		{"wildcard", "Flask==2.*\n", ErrUnpinned},
		{"option", "-r other.txt\n", ErrInvalidLine},
		{"garbage", "this is not a requirement\n", ErrInvalidLine},
		{"empty version", "Flask==\n", ErrInvalidLine},
		{"duplicate normalised", "Flask-SQLAlchemy==3.1.1\nflask_sqlalchemy==3.1.1\n", ErrDuplicate},
		{"dangling continuation", "Flask==3.0.0 \\", ErrInvalidLine},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParse_CollectsAllLineErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("Flask\nrequests==2.31.0\nnumpy>=1\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	var le *LineError
	if !errors.As(err, &le) {
		t.Fatalf("expected a *LineError in %v", err)
	}
	if !strings.Contains(err.Error(), "line 1") || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected both failing lines to be reported, got: %v", err)
	}
}

func TestParseFile_SetsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requirements.txt")
	if err := os.WriteFile(path, []byte(referenceManifest), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if m.Path != path {
		t.Fatalf("expected path %q, got %q", path, m.Path)
	}
}

func TestParseFile_Missing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "nope.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestFingerprint_StableAcrossOrderingAndSpelling(t *testing.T) {
	a, err := Parse(strings.NewReader("Flask==3.0.0\nFlask_SQLAlchemy==3.1.1\n"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse(strings.NewReader("# reordered\nflask-sqlalchemy==3.1.1\nflask==3.0.0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("fingerprints differ: %s vs %s", Fingerprint(a), Fingerprint(b))
	}

	c, _ := Parse(strings.NewReader("Flask==3.0.1\nFlask_SQLAlchemy==3.1.1\n"))
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatal("expected a version bump to change the fingerprint")
	}
	if len(Fingerprint(a)) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", Fingerprint(a))
	}
}

func TestNormalizeName(t *testing.T) {
	for in, want := range map[string]string{
		"Flask_SQLAlchemy": "flask-sqlalchemy",
		"zope.interface":   "zope-interface",
		"a--b__c..d":       "a-b-c-d",
	} {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFile_ShippedExample(t *testing.T) {
	m, err := ParseFile(filepath.Join("..", "..", "examples", "requirements.txt"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	want := map[string]bool{"flask": true, "flask-sqlalchemy": true, "sqlalchemy": true, "psycopg2-binary": true, "openai": true, "gunicorn": true}
	for _, d := range m.Dependencies {
		delete(want, NormalizeName(d.Name))
	}
	if len(want) != 0 {
		t.Fatalf("examples/requirements.txt lacks %v", want)
	}
}
