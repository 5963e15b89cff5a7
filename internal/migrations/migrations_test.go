package migrations

import (
	"strings"
	"testing"
)

func TestFilesArePaired(t *testing.T) {
	files, err := Files()
	if err != nil {
		t.Fatal(err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".up.sql"):
			ups[strings.TrimSuffix(f, ".up.sql")] = true
		case strings.HasSuffix(f, ".down.sql"):
			downs[strings.TrimSuffix(f, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", f)
		}
	}
	if len(ups) != 3 {
		t.Fatalf("up migrations = %d", len(ups))
	}
	for name := range ups {
		if !downs[name] {
			t.Errorf("%s has no down migration", name)
		}
	}
}

func TestRunRequiresURL(t *testing.T) {
	if err := Run("", "", Up); err == nil {
		t.Fatal("expected error for empty url")
	}
}
