package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \n\t\n  ",
			want:  "",
		},
		{
			name:  "headings kept",
			input: "#   Ledgerly\n## Why   finance teams switch\nFaster close.",
			want:  "# Ledgerly\n## Why finance teams switch\nFaster close.",
		},
		{
			name:  "markdown bullets kept",
			input: "- Invoice   matching\n* Audit trail",
			want:  "- Invoice matching\n* Audit trail",
		},
		{
			name:  "typographic bullets become dashes",
			input: "Features:\n• Invoice matching\n  · Audit trail\n▪ SOC 2 reports",
			want:  "Features:\n- Invoice matching\n  - Audit trail\n- SOC 2 reports",
		},
		{
			name:  "numbered steps",
			input: "1)  Connect your ERP\n2. Map   accounts",
			want:  "1) Connect your ERP\n2. Map accounts",
		},
		{
			name:  "line endings and blank runs",
			input: "Pricing\r\n\r\n\r\n\r\nStarter\rGrowth",
			want:  "Pricing\n\nStarter\nGrowth",
		},
		{
			name:  "invisible characters",
			input: "\ufeffClose the\u00a0books\u200b in days",
			want:  "Close the books in days",
		},
		{
			name:  "tabs indent nested items",
			input: "- Integrations\n\t- NetSuite",
			want:  "- Integrations\n  - NetSuite",
		},
		{
			name:  "unicode untouched",
			input: "Conçu pour les équipes   finance 🚀",
			want:  "Conçu pour les équipes finance 🚀",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestCleanText_Deterministic(t *testing.T) {
	input := "# Ledgerly   \n\n\n\nClose the books    in days,\tnot weeks.\n• Reconciliation"

	first := CleanText(input)
	assert.Equal(t, first, CleanText(input))
	assert.Equal(t, first, CleanText(first))
}
