package i18n

import (
	"io/fs"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitAndAvailableLocales(t *testing.T) {
	Init("en")
	if GetLang() != "en" {
		t.Fatalf("expected lang 'en', got %q", GetLang())
	}

	av := GetAvailableLocales()
	for _, k := range []string{"en", "de"} {
		if _, ok := av[k]; !ok {
			t.Fatalf("expected available locale %q to be present", k)
		}
	}
	if name := av["de"]; name != "Deutsch" {
		t.Fatalf("unexpected display name for de: %q", name)
	}
	if got := Locales(); len(got) < 2 || got[0] != "de" || got[1] != "en" {
		t.Fatalf("Locales not sorted: %v", got)
	}
}

func TestT_BasicAndFormatting(t *testing.T) {
	Init("en")

	if got := T("history.cli_no_builds"); got != "No builds recorded." {
		t.Fatalf("unexpected translation: %q", got)
	}
	if got := T("deploy.event_starting", 2, 2, "0.0.0.0:10000"); got != "starting 2 workers × 2 threads on 0.0.0.0:10000" {
		t.Fatalf("unexpected formatted translation: %q", got)
	}
	if got := T("no.such.message"); got != "no.such.message" {
		t.Fatalf("unknown ids should be returned unchanged, got %q", got)
	}
}

func TestInit_SwitchesAndFallsBack(t *testing.T) {
	t.Cleanup(func() { Init("en") })

	Init("de-AT")
	if GetLang() != "de" {
		t.Fatalf("expected regional German to match 'de', got %q", GetLang())
	}
	if got := T("history.cli_no_builds"); got != "Keine Builds vorhanden." {
		t.Fatalf("expected German text, got %q", got)
	}

	Init("xx")
	if GetLang() != "en" {
		t.Fatalf("unknown languages should fall back to en, got %q", GetLang())
	}
}

// Every locale must define exactly the ids the English catalog defines.
func TestLocales_SameIDs(t *testing.T) {
	load := func(name string) map[string]string {
		data, err := fs.ReadFile(localeFS, "locales/"+name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		m := map[string]string{}
		if err := yaml.Unmarshal(data, &m); err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		return m
	}
	en := load("en.yaml")

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if f.Name() == "en.yaml" {
			continue
		}
		other := load(f.Name())
		for id := range en {
			if _, ok := other[id]; !ok {
				t.Errorf("%s: missing %q", f.Name(), id)
			}
		}
		for id, text := range other {
			if _, ok := en[id]; !ok {
				t.Errorf("%s: unknown id %q", f.Name(), id)
			}
			if strings.Count(text, "%") != strings.Count(en[id], "%") {
				t.Errorf("%s: %q has different format verbs than en", f.Name(), id)
			}
		}
	}
}
