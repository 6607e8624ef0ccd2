// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// fallbackInterval is assumed for expressions the estimator cannot classify.
const fallbackInterval = 24 * time.Hour

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronSpec accepts standard five-field expressions and six-field
// expressions with a leading seconds term.
func ValidateCronSpec(spec string) error {
	fields := strings.Fields(spec)
	switch len(fields) {
	case 5:
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec, err)
		}
		return nil
	case 6:
		p := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := p.Parse(spec); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec, err)
		}
		return nil
	default:
		return fmt.Errorf("invalid cron expression %q: expected 5 or 6 fields, got %d", spec, len(fields))
	}
}

// EstimateInterval approximates the period of a cron expression for overdue
// detection. It recognizes the shapes the default schedules use; anything
// else is treated as daily.
func EstimateInterval(spec string) time.Duration {
	fields := strings.Fields(spec)
	if len(fields) == 6 {
		// Drop the seconds field; the estimate does not need sub-minute
		// precision.
		fields = fields[1:]
	}
	if len(fields) != 5 {
		return fallbackInterval
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if dom != "*" || month != "*" {
		return fallbackInterval
	}

	// "*/N * * * *": every N minutes.
	if n, ok := stepOf(minute); ok && hour == "*" && dow == "*" {
		return time.Duration(n) * time.Minute
	}

	// "M * * * *": hourly.
	if isNumeric(minute) && hour == "*" && dow == "*" {
		return time.Hour
	}

	// "M */N * * *": every N hours.
	if isNumeric(minute) {
		if n, ok := stepOf(hour); ok && dow == "*" {
			return time.Duration(n) * time.Hour
		}
	}

	// "M H * * *": daily. "M H * * D": weekly.
	if isNumeric(minute) && isNumeric(hour) {
		if dow == "*" {
			return 24 * time.Hour
		}
		return 7 * 24 * time.Hour
	}

	return fallbackInterval
}

// stepOf matches "*/N" and returns N.
func stepOf(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func isNumeric(field string) bool {
	_, err := strconv.Atoi(field)
	return err == nil
}
