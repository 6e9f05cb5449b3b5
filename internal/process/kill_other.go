//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package process

import (
	"os"
	"os/exec"
)

func configureProcAttr(*exec.Cmd) {}

func killProcess(p *os.Process) error {
	return p.Kill()
}
