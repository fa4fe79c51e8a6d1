//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// terminate has no graceful equivalent on Windows.
func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}
