// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package organizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenarr/listenarr/internal/models"
)

func strPtr(s string) *string { return &s }

func TestRenderFolder(t *testing.T) {
	asin := "B08G9PRS1K"
	year := 2021

	tests := []struct {
		name     string
		template string
		book     *models.Audiobook
		want     string
	}{
		{
			name:     "default template",
			template: "",
			book: &models.Audiobook{
				Title:  "Project Hail Mary",
				Author: "Andy Weir",
				ASIN:   strPtr(asin),
			},
			want: "Andy Weir/Project Hail Mary B08G9PRS1K",
		},
		{
			name:     "missing optional token collapses",
			template: "",
			book: &models.Audiobook{
				Title:  "Project Hail Mary",
				Author: "Andy Weir",
			},
			want: "Andy Weir/Project Hail Mary",
		},
		{
			name:     "year and series tokens",
			template: "{author}/{series}/{title} ({year})",
			book: &models.Audiobook{
				Title:  "Dune",
				Author: "Frank Herbert",
				Series: strPtr("Dune Chronicles"),
				Year:   &year,
			},
			want: "Frank Herbert/Dune Chronicles/Dune (2021)",
		},
		{
			name:     "empty segment dropped",
			template: "{author}/{series}/{title}",
			book: &models.Audiobook{
				Title:  "Dune",
				Author: "Frank Herbert",
			},
			want: "Frank Herbert/Dune",
		},
		{
			name:     "illegal characters stripped",
			template: "{author}/{title}",
			book: &models.Audiobook{
				Title:  `Dune: Messiah?`,
				Author: `Frank "Herbert"`,
			},
			want: "Frank Herbert/Dune Messiah",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderFolder(tt.template, tt.book)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderFolderRequiresTitleAndAuthor(t *testing.T) {
	_, err := RenderFolder("", &models.Audiobook{Title: "Dune"})
	assert.Error(t, err)

	_, err = RenderFolder("", &models.Audiobook{Author: "Frank Herbert"})
	assert.Error(t, err)
}

func TestRenderFolderEmptyResult(t *testing.T) {
	_, err := RenderFolder("{series}", &models.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	assert.Error(t, err)
}
