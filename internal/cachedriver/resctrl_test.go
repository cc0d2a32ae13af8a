package cachedriver

import (
	"os"
	"path/filepath"
	"testing"
)

// setupFakeResctrl builds a temp directory with the info/L3 files a
// real resctrl mount would expose, standing in for the kernel
// pseudo-filesystem under test.
func setupFakeResctrl(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	infoDir := filepath.Join(root, "info", "L3")
	if err := os.MkdirAll(infoDir, 0755); err != nil {
		t.Fatal(err)
	}
	writes := map[string]string{
		"cbm_mask":     "fffff\n",
		"min_cbm_bits": "2\n",
		"num_closids":  "4\n",
	}
	for name, content := range writes {
		if err := os.WriteFile(filepath.Join(infoDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "schemata"), []byte("L3:0=fffff\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestInitDiscoversGeometry(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	info := d.Info()
	if info.CBMMask != 0xfffff {
		t.Fatalf("expected mask 0xfffff, got %#x", info.CBMMask)
	}
	if info.MinCBMBits != 2 {
		t.Fatalf("expected min_cbm_bits 2, got %d", info.MinCBMBits)
	}
	if d.MaxCOS() != 4 {
		t.Fatalf("expected 4 closids, got %d", d.MaxCOS())
	}
}

func TestResetCreatesAndWritesCOS(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	for cos := 0; cos < d.MaxCOS(); cos++ {
		mask, err := d.GetWays(cos)
		if err != nil {
			t.Fatalf("cos %d: %v", cos, err)
		}
		if mask != 0xfffff {
			t.Fatalf("cos %d: expected full mask, got %#x", cos, mask)
		}
	}
}

func TestSetWaysRejectsNonContiguousMask(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	err := d.SetWays(1, 0b10101)
	if err == nil {
		t.Fatal("expected an error for a non-contiguous mask")
	}
	if _, ok := err.(*InvalidMaskError); !ok {
		t.Fatalf("expected *InvalidMaskError, got %T", err)
	}
}

func TestSetWaysRejectsMaskTooNarrow(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := d.SetWays(1, 0b1); err == nil {
		t.Fatal("expected an error for a mask narrower than min_cbm_bits")
	}
}

func TestSetWaysRejectsMaskOutsideFullRange(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := d.SetWays(1, 0x1fffff); err == nil {
		t.Fatal("expected an error for a mask outside the full cache bitmask")
	}
}

func TestAssignCPUAndTaskRoundTrip(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := d.AssignCPU(2, 5); err != nil {
		t.Fatal(err)
	}
	cos, err := d.COSOfCPU(5)
	if err != nil {
		t.Fatal(err)
	}
	if cos != 2 {
		t.Fatalf("expected cpu 5 in cos 2, got %d", cos)
	}

	if err := d.AssignTask(3, 4242); err != nil {
		t.Fatal(err)
	}
	cos, err = d.COSOfTask(4242)
	if err != nil {
		t.Fatal(err)
	}
	if cos != 3 {
		t.Fatalf("expected pid 4242 in cos 3, got %d", cos)
	}
}

func TestAssignTaskMovesPIDBetweenCOS(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := d.AssignTask(2, 5551); err != nil {
		t.Fatal(err)
	}
	if err := d.AssignTask(1, 5551); err != nil {
		t.Fatal(err)
	}
	cos, err := d.COSOfTask(5551)
	if err != nil {
		t.Fatal(err)
	}
	if cos != 1 {
		t.Fatalf("expected pid 5551 to have moved to cos 1, got %d", cos)
	}
	tasks, err := d.readTasks(2)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range tasks {
		if p == 5551 {
			t.Fatalf("expected pid 5551 removed from its previous cos, still present in cos 2")
		}
	}
}

func TestAssignCPUMovesCPUBetweenCOS(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := d.AssignCPU(1, 7); err != nil {
		t.Fatal(err)
	}
	if err := d.AssignCPU(2, 7); err != nil {
		t.Fatal(err)
	}
	cos, err := d.COSOfCPU(7)
	if err != nil {
		t.Fatal(err)
	}
	if cos != 2 {
		t.Fatalf("expected cpu 7 to have moved to cos 2, got %d", cos)
	}
	mask, err := d.readCPUMask(1)
	if err != nil {
		t.Fatal(err)
	}
	if mask&(1<<7) != 0 {
		t.Fatalf("expected cpu 7 cleared from its previous cos, still set in cos 1 mask %#x", mask)
	}
}

func TestOperationsBeforeInitFail(t *testing.T) {
	d := NewResctrlDriver(setupFakeResctrl(t))
	if err := d.Reset(); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := d.GetWays(0); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
