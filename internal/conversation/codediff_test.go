package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffCode(t *testing.T) {
	tests := []struct {
		name    string
		before  string
		after   string
		want    CodeChanges
		changed bool
	}{
		{
			name:   "identical",
			before: "PROGRAM Main\nEND_PROGRAM\n",
			after:  "PROGRAM Main\nEND_PROGRAM\n",
			want:   CodeChanges{Unchanged: 2},
		},
		{
			name:    "line replaced and appended",
			before:  "VAR\nMotor1 : BOOL;\nEND_VAR\n",
			after:   "VAR\nMotor2 : BOOL;\nEND_VAR\nMotor2 := TRUE;\n",
			want:    CodeChanges{Added: 2, Removed: 1, Unchanged: 2},
			changed: true,
		},
		{
			name:    "first version",
			before:  "",
			after:   "PROGRAM Main\nEND_PROGRAM\n",
			want:    CodeChanges{Added: 2},
			changed: true,
		},
		{
			name:    "code cleared",
			before:  "PROGRAM Main\nEND_PROGRAM\n",
			after:   "",
			want:    CodeChanges{Removed: 2},
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiffCode(tt.before, tt.after)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, got.Changed())
		})
	}
}
