package instance

import "testing"

func TestIDPrefersConfigured(t *testing.T) {
	t.Setenv(EnvWorkerID, "from-env")
	if got := ID("worker-a"); got != "worker-a" {
		t.Fatalf("expected configured id, got %s", got)
	}
	if got := ID(""); got != "from-env" {
		t.Fatalf("expected env id, got %s", got)
	}
}

func TestIDGeneratesUniqueNames(t *testing.T) {
	t.Setenv(EnvWorkerID, "")
	if a, b := ID(""), ID(""); a == b {
		t.Fatalf("expected unique ids, got %s twice", a)
	}
}
