package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

var startCommand = func(cmd *exec.Cmd) error { return cmd.Start() }

// browserApps maps a browser name to its launcher per GOOS.
var browserApps = map[string]map[string][]string{
	"chrome": {
		"darwin":  {"open", "-a", "Google Chrome"},
		"linux":   {"google-chrome"},
		"windows": {"cmd", "/c", "start", "chrome"},
	},
	"edge": {
		"darwin":  {"open", "-a", "Microsoft Edge"},
		"linux":   {"microsoft-edge"},
		"windows": {"cmd", "/c", "start", "msedge"},
	},
	"firefox": {
		"darwin":  {"open", "-a", "Firefox"},
		"linux":   {"firefox"},
		"windows": {"cmd", "/c", "start", "firefox"},
	},
	"opera": {
		"darwin":  {"open", "-a", "Opera"},
		"linux":   {"opera"},
		"windows": {"cmd", "/c", "start", "opera"},
	},
}

// OpenBrowser opens the default system browser to the specified URL.
//
// Supports macOS, Linux, and Windows platforms.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	rt := getRuntime()
	switch rt {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

// OpenBrowserWith opens url in a specific browser so its cookie store can be imported afterwards.
// An empty name falls back to [OpenBrowser].
func OpenBrowserWith(browser, url string) error {
	if browser == "" {
		return OpenBrowser(url)
	}

	apps, ok := browserApps[browser]
	if !ok {
		return fmt.Errorf("%w: unknown browser %q", ErrInvalidRequest, browser)
	}
	rt := getRuntime()
	argv, ok := apps[rt]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	args := append(append([]string{}, argv[1:]...), url)
	if err := startCommand(exec.Command(argv[0], args...)); err != nil {
		return fmt.Errorf("failed to open %s: %w", browser, err)
	}
	return nil
}
