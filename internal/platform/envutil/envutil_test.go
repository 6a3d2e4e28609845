package envutil

import (
	"testing"
	"time"
)

func TestCSV(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://a.test , ,http://b.test")
	got := CSV("CORS_ORIGINS", nil)
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("CSV: got=%v", got)
	}

	t.Setenv("CORS_ORIGINS", "")
	def := []string{"http://localhost:5173"}
	if got := CSV("CORS_ORIGINS", def); len(got) != 1 || got[0] != def[0] {
		t.Fatalf("CSV default: got=%v", got)
	}
}

func TestSecondsFallsBackOnInvalid(t *testing.T) {
	t.Setenv("FILE_READY_TIMEOUT_SECONDS", "nope")
	if got := Seconds("FILE_READY_TIMEOUT_SECONDS", 120*time.Second); got != 120*time.Second {
		t.Fatalf("Seconds: want=%s got=%s", 120*time.Second, got)
	}
	t.Setenv("FILE_READY_TIMEOUT_SECONDS", "30")
	if got := Seconds("FILE_READY_TIMEOUT_SECONDS", 120*time.Second); got != 30*time.Second {
		t.Fatalf("Seconds: want=%s got=%s", 30*time.Second, got)
	}
}

func TestFirstString(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "")
	t.Setenv("FIREBASE_BUCKET", "legacy-bucket")
	if got := FirstString("", "STORAGE_BUCKET", "FIREBASE_BUCKET"); got != "legacy-bucket" {
		t.Fatalf("FirstString: want=%q got=%q", "legacy-bucket", got)
	}
}
