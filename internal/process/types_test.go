package process

import (
	"errors"
	"testing"
)

func TestConflictsWith_Symmetric(t *testing.T) {
	for _, a := range Types() {
		for _, b := range Types() {
			if a.ConflictsWith(b) != b.ConflictsWith(a) {
				t.Errorf("%s.ConflictsWith(%s) = %v but %s.ConflictsWith(%s) = %v",
					a, b, a.ConflictsWith(b), b, a, b.ConflictsWith(a))
			}
		}
	}
}

func TestConflictsWith_Declared(t *testing.T) {
	tests := []struct {
		a, b Type
		want bool
	}{
		{CameraWarm, CameraCool, true},
		{CameraWarm, CameraCapture, false},
		{CameraCapture, CameraCapture, true},
		{DomeOpenShutter, DomeCloseShutter, true},
		{DomeOpenShutter, MountSlew, false},
		{MountSlew, MeridianFlip, true},
		{AutoFocus, FocuserMove, true},
		{AutoFocus, RotatorMove, false},
		{PlateSolve, PlateSolve, true},
		{GuiderCalibrate, MountSlew, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.a)+"/"+string(tt.b), func(t *testing.T) {
			if got := tt.a.ConflictsWith(tt.b); got != tt.want {
				t.Errorf("%s.ConflictsWith(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestBlocks_AllowMultiple(t *testing.T) {
	if !PlateSolve.AllowMultiple() {
		t.Fatal("PlateSolve.AllowMultiple() = false, want true")
	}
	if blocks(PlateSolve, PlateSolve) {
		t.Error("a running PlateSolve should not block another PlateSolve")
	}
	if !blocks(PlateSolve, MountSlew) {
		t.Error("AllowMultiple must not waive cross-type conflicts")
	}
	if !blocks(CameraCapture, CameraCapture) {
		t.Error("a running CameraCapture should block another CameraCapture")
	}
}

func TestCatalog(t *testing.T) {
	types := Types()
	if len(types) != 20 {
		t.Fatalf("len(Types()) = %d, want 20", len(types))
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Errorf("Types() not sorted at %d: %s >= %s", i, types[i-1], types[i])
		}
	}
	for _, typ := range types {
		if typ.Device() == "" || typ.Action() == "" {
			t.Errorf("%s has no device/action", typ)
		}
	}
	if MeridianFlip.Device() != "mount" || MeridianFlip.Action() != "meridian-flip" {
		t.Errorf("MeridianFlip = %s/%s, want mount/meridian-flip", MeridianFlip.Device(), MeridianFlip.Action())
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType("DomePark")
	if err != nil || got != DomePark {
		t.Errorf("ParseType(DomePark) = %v, %v", got, err)
	}

	if _, err := ParseType("WarpDrive"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("ParseType(WarpDrive) error = %v, want ErrUnknownType", err)
	}
}

func TestType_Conflicts(t *testing.T) {
	got := CameraCool.Conflicts()
	want := []Type{CameraCool, CameraWarm}
	if len(got) != len(want) {
		t.Fatalf("CameraCool.Conflicts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CameraCool.Conflicts()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
