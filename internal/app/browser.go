package app

import (
	"os/exec"
	"runtime"

	"livedoc/internal/logging"
)

// openBrowser opens url in the default browser. Failures are logged only.
func openBrowser(url string) {
	log := logging.NewLogger("engine").WithField("url", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", url)
	default:
		log.Warnf("cannot open browser on %s", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn("opening browser")
		return
	}
	go func() { _ = cmd.Wait() }()
}
