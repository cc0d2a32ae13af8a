package hostinfo

import "testing"

func TestAllowedCPUsNonEmpty(t *testing.T) {
	cpus, err := AllowedCPUs()
	if err != nil {
		t.Fatal(err)
	}
	if len(cpus) == 0 {
		t.Fatal("expected at least one allowed CPU")
	}
}

func TestLogicalCPUCountPositive(t *testing.T) {
	n, err := LogicalCPUCount()
	if err != nil {
		t.Fatal(err)
	}
	if n <= 0 {
		t.Fatalf("expected a positive CPU count, got %d", n)
	}
}
