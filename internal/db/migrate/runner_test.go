package migrate

import (
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		if err := Run(dsn, Up); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
			t.Errorf("Run(%q) err = %v", dsn, err)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, ok := range []string{"up", "down"} {
		if d, err := ParseDirection(ok); err != nil || string(d) != ok {
			t.Errorf("ParseDirection(%q) = %q, %v", ok, d, err)
		}
	}
	for _, bad := range []string{"", "UP", "sideways"} {
		if _, err := ParseDirection(bad); err == nil {
			t.Errorf("ParseDirection(%q) should fail", bad)
		}
	}
	if err := Run("postgres://localhost/test", Direction("left")); err == nil {
		t.Error("Run with invalid direction should fail")
	}
}

func TestFiles_UpAndDownPaired(t *testing.T) {
	files, err := Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no embedded migrations")
	}
	ups, downs := 0, 0
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".up.sql"):
			ups++
		case strings.HasSuffix(f, ".down.sql"):
			downs++
		default:
			t.Errorf("unexpected migration file %s", f)
		}
	}
	if ups != downs {
		t.Errorf("%d up migrations, %d down", ups, downs)
	}
}
