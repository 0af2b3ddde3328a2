// Package enumerate identifies boards on the USB hub by scanning the kernel
// log for the lines the USB core writes when a device attaches.
package enumerate

import (
	"bufio"
	"regexp"
	"strings"
)

var (
	// usb 1-1.2: ...   cdc_acm 1-1.2:1.0: ...
	usbPathRe = regexp.MustCompile(`(?:^|\s)(\d+-\d+(?:\.\d+)*)(?::\d+\.\d+)?:\s`)
	serialRe  = regexp.MustCompile(`SerialNumber:\s*(\S.*?)\s*$`)
	ttyRe     = regexp.MustCompile(`\b(tty[A-Za-z]+\d+)\b`)
)

// FindSerialNumber returns the serial number last reported for the device
// at USB path (e.g. "1-1.2"). The path must match exactly, so "1-1.2" never
// matches "1-1.21".
func FindSerialNumber(log, path string) (string, bool) {
	return lastMatch(log, path, serialRe)
}

// FindDeviceHandle returns the tty name last bound to the device at USB path.
func FindDeviceHandle(log, path string) (string, bool) {
	return lastMatch(log, path, ttyRe)
}

func lastMatch(log, path string, re *regexp.Regexp) (string, bool) {
	var found string
	scanner := bufio.NewScanner(strings.NewReader(log))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		loc := usbPathRe.FindStringSubmatchIndex(line)
		if loc == nil || line[loc[2]:loc[3]] != path {
			continue
		}
		if v := re.FindStringSubmatch(line[loc[1]:]); v != nil {
			found = v[1]
		}
	}
	return found, found != ""
}
