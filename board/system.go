//go:build linux

package board

import "golang.org/x/sys/unix"

// OSReboot implements runtime.System by issuing a real Linux reboot
// syscall. Reboot never returns on success; it requires CAP_SYS_BOOT
// (root) the way the real device's bootloader-triggered reset would.
type OSReboot struct{}

func (OSReboot) Reboot() {
	_ = unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}

// SimReboot implements runtime.System for the --simulate daemon target:
// it does nothing on its own. dispatch.Loop re-reads its address from the
// NVM store immediately after calling Reboot, which is all the
// "configuration takes effect after reboot" contract (spec §3) needs from
// a simulated target that never actually restarts the process.
type SimReboot struct{}

func (SimReboot) Reboot() {}
