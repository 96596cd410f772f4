//go:build linux

package watchdog

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// magicClose disarms the kernel watchdog on a clean shutdown when the
// driver supports it.
const magicClose = "V"

// Device drives a kernel watchdog such as /dev/watchdog. Once opened the
// board resets unless Feed is called within the timeout.
type Device struct {
	f *os.File
}

func OpenDevice(path string, timeout time.Duration) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog: %w", err)
	}
	secs := int(timeout / time.Second)
	if secs > 0 {
		if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
			f.WriteString(magicClose)
			f.Close()
			return nil, fmt.Errorf("set watchdog timeout: %w", err)
		}
	}
	return &Device{f: f}, nil
}

func (d *Device) Feed() error {
	if err := unix.IoctlWatchdogKeepalive(int(d.f.Fd())); err != nil {
		return fmt.Errorf("watchdog keepalive: %w", err)
	}
	return nil
}

func (d *Device) Close() error {
	if _, err := d.f.WriteString(magicClose); err != nil {
		d.f.Close()
		return fmt.Errorf("disarm watchdog: %w", err)
	}
	return d.f.Close()
}
