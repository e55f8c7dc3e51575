package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUSAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want usAddress
	}{
		{
			name: "full with country",
			in:   "123 N Clark St, Chicago, IL 60614, USA",
			want: usAddress{Street: "123 N Clark St", City: "Chicago", State: "IL", PostalCode: "60614"},
		},
		{
			name: "multi segment street",
			in:   "200 E Ohio St, Suite 4B, Chicago, IL 60611, USA",
			want: usAddress{Street: "200 E Ohio St, Suite 4B", City: "Chicago", State: "IL", PostalCode: "60611"},
		},
		{
			name: "no country",
			in:   "55 W Monroe St, Chicago, IL 60603",
			want: usAddress{Street: "55 W Monroe St", City: "Chicago", State: "IL", PostalCode: "60603"},
		},
		{
			name: "missing zip",
			in:   "55 W Monroe St, Chicago, IL",
			want: usAddress{Street: "55 W Monroe St", City: "Chicago", State: "IL"},
		},
		{
			name: "street only",
			in:   "55 W Monroe St",
			want: usAddress{Street: "55 W Monroe St"},
		},
		{
			name: "empty",
			in:   "",
			want: usAddress{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseUSAddress(tt.in))
		})
	}
}
