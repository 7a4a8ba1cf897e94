package platform

import (
	"context"
	"runtime"
	"testing"
)

func TestRealDetector_Detect(t *testing.T) {
	if _, err := normalizeArch(runtime.GOARCH); err != nil {
		t.Skipf("no Cuberite ABI for %s", runtime.GOARCH)
	}

	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if !ValidABI(info.ABI) {
		t.Errorf("ABI = %q, not a Cuberite ABI", info.ABI)
	}

	if info.Platform != "" && info.Family == "" {
		t.Error("Family should be set when Platform is set")
	}
	if runtime.GOOS != "linux" && info.Platform != "" {
		t.Errorf("Platform should be empty on non-Linux, got %v", info.Platform)
	}
}

func TestRealDetector_Cancelled(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("distro detection only runs on linux")
	}
	if _, err := normalizeArch(runtime.GOARCH); err != nil {
		t.Skipf("no Cuberite ABI for %s", runtime.GOARCH)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// gopsutil may answer from cache without consulting ctx; either outcome
	// is acceptable as long as a returned Info is complete.
	info, err := NewDetector().Detect(ctx)
	if err == nil && info.ABI == "" {
		t.Error("ABI empty on successful detection")
	}
}

func TestInfo_GetDistro(t *testing.T) {
	tests := []struct {
		name string
		info *Info
		want *Distro
	}{
		{
			name: "Linux with distro info",
			info: &Info{OS: "linux", Platform: "raspbian", Family: "debian", Version: "12"},
			want: &Distro{ID: "raspbian", Family: "debian", Version: "12"},
		},
		{
			name: "Linux without distro info",
			info: &Info{OS: "linux"},
		},
		{
			name: "macOS",
			info: &Info{OS: "darwin", Platform: "darwin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.info.GetDistro()
			if got == nil && tt.want == nil {
				return
			}
			if got == nil || tt.want == nil || *got != *tt.want {
				t.Errorf("GetDistro() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInfo_Predicates(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		linux   bool
		sixFour bool
	}{
		{"linux arm64", Info{OS: "linux", ABI: ABIArm64}, true, true},
		{"android arm", Info{OS: "android", ABI: ABIArm}, true, false},
		{"darwin x86_64", Info{OS: "darwin", ABI: ABIX8664}, false, true},
		{"linux x86", Info{OS: "linux", ABI: ABIX86}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IsLinux(); got != tt.linux {
				t.Errorf("IsLinux() = %v, want %v", got, tt.linux)
			}
			if got := tt.info.Is64Bit(); got != tt.sixFour {
				t.Errorf("Is64Bit() = %v, want %v", got, tt.sixFour)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	want := &Info{OS: "linux", ABI: ABIArm}
	got, err := Static{Info: want}.Detect(context.Background())
	if err != nil || got != want {
		t.Errorf("Static.Detect() = %v, %v", got, err)
	}
}
