package bot

import "testing"

// lookup is the package translator; test functions shadow t.
var lookup = t

func TestTranslationsCoverSameKeys(t *testing.T) {
	for key := range translations["ru"] {
		if _, ok := translations["en"][key]; !ok {
			t.Fatalf("en is missing %q", key)
		}
	}
	for key := range translations["en"] {
		if _, ok := translations["ru"][key]; !ok {
			t.Fatalf("ru is missing %q", key)
		}
	}
}

func TestTranslateFallback(t *testing.T) {
	if got := lookup("de", "btn_cancel"); got != translations["ru"]["btn_cancel"] {
		t.Fatalf("unknown language should fall back to ru, got %q", got)
	}
	if got := lookup("en", "no_such_key"); got != "no_such_key" {
		t.Fatalf("unknown key should echo, got %q", got)
	}
	if got := tf("en", "submitted", 12); got != "Submission #12 sent for review." {
		t.Fatalf("unexpected format %q", got)
	}
}
