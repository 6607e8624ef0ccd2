// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateInterval(t *testing.T) {
	tests := []struct {
		spec string
		want time.Duration
	}{
		{"*/5 * * * *", 5 * time.Minute},
		{"*/30 * * * *", 30 * time.Minute},
		{"*/15 * * * *", 15 * time.Minute},
		{"0 * * * *", time.Hour},
		{"30 * * * *", time.Hour},
		{"0 */6 * * *", 6 * time.Hour},
		{"15 */2 * * *", 2 * time.Hour},
		{"0 0 * * *", 24 * time.Hour},
		{"30 4 * * *", 24 * time.Hour},
		{"0 3 * * 1", 7 * 24 * time.Hour},
		// Seconds field is ignored.
		{"0 */10 * * * *", 10 * time.Minute},
		// Unrecognized shapes assume daily.
		{"0 0 1 * *", 24 * time.Hour},
		{"1,31 * * * *", 24 * time.Hour},
		{"garbage", 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateInterval(tt.spec))
		})
	}
}

func TestValidateCronSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 0 * * *", false},
		{"0 3 * * 1", false},
		{"0 */10 * * * *", false},
		{"* * * *", true},
		{"61 * * * *", true},
		{"not a cron", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateCronSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
