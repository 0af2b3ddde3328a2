package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/buckleypaul/benchlab/internal/session"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

var (
	hubRegex     = regexp.MustCompile(`^\d+-\d+(\.\d+)*$`)
	usbPortRegex = regexp.MustCompile(`^\d+(\.\d+)*$`)
	idRegex      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the static configuration. Session fields are checked by
// ValidateSession since only serve needs them.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateBoards()...)
	errs = append(errs, c.validateMonitor()...)

	for field, hub := range map[string]string{"enumeration.hub": c.Enumeration.Hub, "power.hub": c.Power.Hub} {
		if !hubRegex.MatchString(hub) {
			errs = append(errs, ValidationError{Field: field, Value: hub, Message: "must be a USB hub path like 1-1"})
		}
	}
	if c.Power.DelaySeconds < 0 {
		errs = append(errs, ValidationError{Field: "power.delay_seconds", Value: c.Power.DelaySeconds, Message: "must not be negative"})
	}
	if c.Power.SettleMs < 0 {
		errs = append(errs, ValidationError{Field: "power.settle_ms", Value: c.Power.SettleMs, Message: "must not be negative"})
	}
	if c.Suggest.URL != "" {
		if u, err := url.Parse(c.Suggest.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{Field: "suggest.url", Value: c.Suggest.URL, Message: "must be an http or https URL"})
		}
		if c.Suggest.TimeoutSeconds <= 0 {
			errs = append(errs, ValidationError{Field: "suggest.timeout_seconds", Value: c.Suggest.TimeoutSeconds, Message: "must be positive"})
		}
	}
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{Field: "logging.level", Value: c.Logging.Level, Message: "must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}
	if c.Lab.Root == "" {
		errs = append(errs, ValidationError{Field: "lab.root", Value: c.Lab.Root, Message: "must not be empty"})
	}
	if strings.ContainsRune(c.Lab.ServerName, '/') || strings.ContainsRune(c.Lab.Name, '/') {
		errs = append(errs, ValidationError{Field: "lab", Value: c.Lab.ServerName + "/" + c.Lab.Name, Message: "server and lab names must not contain '/'"})
	}
	return errs
}

func (c *Config) validateBoards() []ValidationError {
	var errs []ValidationError
	if len(c.Boards) == 0 {
		errs = append(errs, ValidationError{Field: "boards", Value: 0, Message: "at least one board is required"})
	}
	ids := make(map[string]bool)
	ports := make(map[string]string)
	for i, b := range c.Boards {
		field := fmt.Sprintf("boards[%d]", i)
		if !idRegex.MatchString(b.ID) {
			errs = append(errs, ValidationError{Field: field + ".id", Value: b.ID, Message: "must be alphanumeric with - or _"})
		} else if ids[b.ID] {
			errs = append(errs, ValidationError{Field: field + ".id", Value: b.ID, Message: "duplicate board id"})
		}
		ids[b.ID] = true

		if strings.Count(b.FQBN, ":") < 2 {
			errs = append(errs, ValidationError{Field: field + ".fqbn", Value: b.FQBN, Message: "must be vendor:arch:board"})
		}
		if !usbPortRegex.MatchString(b.USBPort) {
			errs = append(errs, ValidationError{Field: field + ".usb_port", Value: b.USBPort, Message: "must be a hub port number"})
		} else if other, dup := ports[b.USBPort]; dup {
			errs = append(errs, ValidationError{Field: field + ".usb_port", Value: b.USBPort, Message: "already used by " + other})
		}
		ports[b.USBPort] = b.ID
	}
	return errs
}

func (c *Config) validateMonitor() []ValidationError {
	var errs []ValidationError
	m := c.Monitor
	if m.Backend != BackendPTY && m.Backend != BackendSerial {
		errs = append(errs, ValidationError{Field: "monitor.backend", Value: m.Backend, Message: "must be pty or serial"})
	}
	if m.BaudRate <= 0 {
		errs = append(errs, ValidationError{Field: "monitor.baud_rate", Value: m.BaudRate, Message: "must be positive"})
	}
	if m.MaxSeconds <= 0 || m.MaxSeconds > MaxMonitorSeconds {
		errs = append(errs, ValidationError{Field: "monitor.max_seconds", Value: m.MaxSeconds, Message: fmt.Sprintf("must be between 1 and %d", MaxMonitorSeconds)})
	}
	if m.DefaultSeconds <= 0 || m.DefaultSeconds > m.MaxSeconds {
		errs = append(errs, ValidationError{Field: "monitor.default_seconds", Value: m.DefaultSeconds, Message: "must be between 1 and monitor.max_seconds"})
	}
	return errs
}

// ValidateSession checks the fields a running session needs.
func (c *Config) ValidateSession() error {
	var errs ValidationErrors
	if _, err := session.ParseTime(c.Session.EndTime); err != nil {
		errs = append(errs, ValidationError{Field: "session.end_time", Value: c.Session.EndTime, Message: "must be formatted " + session.TimeFormat})
	}
	if _, err := mail.ParseAddress(c.Session.UserEmail); err != nil {
		errs = append(errs, ValidationError{Field: "session.user_email", Value: c.Session.UserEmail, Message: "must be an email address"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
