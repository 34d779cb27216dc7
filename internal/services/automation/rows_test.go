package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow(t *testing.T) {
	locators := DefaultLocators(testBaseURL)

	tests := []struct {
		name    string
		html    string
		wantErr bool
		title   string
	}{
		{
			name:  "complete row",
			html:  rowHTML(3, "02:15", "Chorus", "The chorus starts"),
			title: "Chorus",
		},
		{
			name:  "whitespace collapsed",
			html:  `<div data-index="0"><span class="text-gray-500"> 00:01 </span><span class="font-medium">Multi   line` + "\n" + `title</span><span class="text-gray-700">d</span></div>`,
			title: "Multi line title",
		},
		{
			name:    "missing description",
			html:    rowHTML(1, "00:20", "Second", ""),
			wantErr: true,
		},
		{
			name:    "missing title",
			html:    rowHTML(1, "00:20", "", "desc"),
			wantErr: true,
		},
		{
			name:    "no data-index",
			html:    `<div><span class="text-gray-500">00:01</span></div>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := parseRow(tt.html, locators)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, item.Title)
			assert.NotEmpty(t, item.Index)
			assert.NotEmpty(t, item.Timestamp)
		})
	}
}
