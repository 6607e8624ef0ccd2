// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pathmap

import "testing"

func TestTransform(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		cfg      Config
		expected string
	}{
		{
			name:     "disabled mapping returns path unchanged",
			path:     "/remote/downloads/book",
			cfg:      Config{Enabled: false, RemotePath: "/remote/downloads", LocalPath: "/mnt/downloads"},
			expected: "/remote/downloads/book",
		},
		{
			name:     "prefix replaced",
			path:     "/remote/downloads/book/file.m4b",
			cfg:      Config{Enabled: true, RemotePath: "/remote/downloads", LocalPath: "/mnt/downloads"},
			expected: "/mnt/downloads/book/file.m4b",
		},
		{
			name:     "no prefix match returns unchanged even when enabled",
			path:     "/srv/other/book",
			cfg:      Config{Enabled: true, RemotePath: "/remote/downloads", LocalPath: "/mnt/downloads"},
			expected: "/srv/other/book",
		},
		{
			name:     "remainder is byte identical",
			path:     "/remote/Weird  Name//x.mp3",
			cfg:      Config{Enabled: true, RemotePath: "/remote", LocalPath: "/local"},
			expected: "/local/Weird  Name//x.mp3",
		},
		{
			name:     "empty remote path is a no-op",
			path:     "/anything",
			cfg:      Config{Enabled: true, RemotePath: "", LocalPath: "/local"},
			expected: "/anything",
		},
		{
			name:     "exact prefix match maps to local root",
			path:     "/remote/downloads",
			cfg:      Config{Enabled: true, RemotePath: "/remote/downloads", LocalPath: "/mnt/downloads"},
			expected: "/mnt/downloads",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transform(tt.path, tt.cfg); got != tt.expected {
				t.Errorf("Transform(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
