package shared

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	const authURL = "https://app.plex.tv/auth#?clientID=c&code=abcd"

	stubRuntime := func(t *testing.T, goos string) {
		original := getRuntime
		t.Cleanup(func() { getRuntime = original })
		getRuntime = func() string { return goos }
	}

	tests := []struct {
		goos string
		want []string
	}{
		{"darwin", []string{"open", authURL}},
		{"linux", []string{"xdg-open", authURL}},
		{"freebsd", []string{"xdg-open", authURL}},
		{"windows", []string{"rundll32", "url.dll,FileProtocolHandler", authURL}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			t.Setenv("BROWSER", "")
			stubRuntime(t, tt.goos)

			cmd, err := browserCommand(authURL)
			if err != nil {
				t.Fatalf("browserCommand failed: %v", err)
			}
			if !slices.Equal(cmd.Args, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, cmd.Args)
			}
		})
	}

	t.Run("BROWSER overrides the platform default", func(t *testing.T) {
		t.Setenv("BROWSER", "w3m -o confirm_qq=false")
		stubRuntime(t, "linux")

		cmd, err := browserCommand(authURL)
		if err != nil {
			t.Fatalf("browserCommand failed: %v", err)
		}
		want := []string{"w3m", "-o", "confirm_qq=false", authURL}
		if !slices.Equal(cmd.Args, want) {
			t.Errorf("expected %v, got %v", want, cmd.Args)
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		t.Setenv("BROWSER", "")
		stubRuntime(t, "plan9")

		if _, err := browserCommand(authURL); err == nil || !strings.Contains(err.Error(), "plan9") {
			t.Errorf("expected unsupported platform error, got %v", err)
		}
		if err := OpenBrowser(authURL); err == nil {
			t.Error("expected OpenBrowser to fail")
		}
	})

	t.Run("missing browser binary", func(t *testing.T) {
		t.Setenv("BROWSER", filepath.Join(t.TempDir(), "no-such-browser"))

		err := OpenBrowser(authURL)
		if err == nil || !strings.Contains(err.Error(), "failed to open browser") {
			t.Errorf("expected start failure, got %v", err)
		}
	})
}
