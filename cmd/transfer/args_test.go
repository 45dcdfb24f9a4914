package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transfa/transfa-core/internal/domain"
)

func TestParseTransfer(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    domain.TransferDraft
		wantErr bool
	}{
		{
			name: "plain",
			raw:  "bob:5000:rent",
			want: domain.TransferDraft{Recipient: domain.Recipient{Username: "bob"}, AmountMinor: 500000, Narration: "rent"},
		},
		{
			name: "at sign and kobo",
			raw:  "@carol:2500.50:books: vol 2",
			want: domain.TransferDraft{Recipient: domain.Recipient{Username: "carol"}, AmountMinor: 250050, Narration: "books: vol 2"},
		},
		{name: "missing narration", raw: "bob:5000", wantErr: true},
		{name: "bad amount", raw: "bob:five:rent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTransfer(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransferFlagsRepeat(t *testing.T) {
	var to transferFlags
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.Var(&to, "to", "")

	require.NoError(t, fs.Parse([]string{"-to", "bob:1:tea", "-to", "carol:2:cake"}))

	assert.Equal(t, transferFlags{"bob:1:tea", "carol:2:cake"}, to)
	assert.Equal(t, "bob:1:tea, carol:2:cake", to.String())
}
