package config

import (
	"fmt"
	"regexp"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validCadences = map[Cadence]bool{
	CadenceHourly: true, CadenceDaily: true, CadenceWeekly: true, CadenceCustom: true,
}

var validWeekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

var timeOfDayPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port != 0 && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	if c.Downloads.Root == "" {
		errs = append(errs, "downloads.root: required")
	}
	if c.Downloads.Workers < 1 {
		errs = append(errs, fmt.Sprintf("downloads.workers: must be at least 1, got %d", c.Downloads.Workers))
	}
	if c.Downloads.MaxPerSweep < 1 {
		errs = append(errs, fmt.Sprintf("downloads.max_per_sweep: must be at least 1, got %d", c.Downloads.MaxPerSweep))
	}

	if c.Sources.YouTube == nil && c.Sources.IMVDb == nil {
		errs = append(errs, "sources: at least one source must be configured")
	}
	if c.Sources.YouTube != nil && c.Sources.YouTube.APIKey == "" {
		errs = append(errs, "sources.youtube.api_key: required when youtube is configured")
	}
	if c.Sources.IMVDb != nil && c.Sources.IMVDb.APIKey == "" {
		errs = append(errs, "sources.imvdb.api_key: required when imvdb is configured")
	}

	errs = append(errs, validateTrigger("schedule.discovery", c.Schedule.Discovery)...)
	errs = append(errs, validateTrigger("schedule.download", c.Schedule.Download)...)

	return errs
}

func validateTrigger(prefix string, t Trigger) []string {
	var errs []string

	if !validCadences[t.Cadence] {
		errs = append(errs, fmt.Sprintf("%s.cadence: must be one of hourly, daily, weekly, custom; got %q", prefix, t.Cadence))
		return errs
	}
	if t.Cadence != CadenceHourly {
		if t.At == "" {
			errs = append(errs, fmt.Sprintf("%s.at: required for %s cadence", prefix, t.Cadence))
		} else if !timeOfDayPattern.MatchString(t.At) {
			errs = append(errs, fmt.Sprintf("%s.at: must be HH:MM, got %q", prefix, t.At))
		}
	}
	if t.Cadence == CadenceCustom {
		if len(t.Days) == 0 {
			errs = append(errs, fmt.Sprintf("%s.days: required for custom cadence", prefix))
		}
		for _, day := range t.Days {
			if !validWeekdays[strings.ToLower(day)] {
				errs = append(errs, fmt.Sprintf("%s.days: unknown weekday %q", prefix, day))
			}
		}
	}
	return errs
}
