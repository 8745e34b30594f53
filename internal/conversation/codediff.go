package conversation

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// CodeChanges summarises a line diff between two generated programs
type CodeChanges struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Changed reports whether any line differs
func (c CodeChanges) Changed() bool {
	return c.Added > 0 || c.Removed > 0
}

func (c CodeChanges) eventData() map[string]interface{} {
	return map[string]interface{}{
		"added":     c.Added,
		"removed":   c.Removed,
		"unchanged": c.Unchanged,
	}
}

// DiffCode counts added, removed and unchanged lines between two versions of
// generated code
func DiffCode(before, after string) CodeChanges {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var changes CodeChanges
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			changes.Unchanged += n
		case diffmatchpatch.DiffDelete:
			changes.Removed += n
		case diffmatchpatch.DiffInsert:
			changes.Added += n
		}
	}
	return changes
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return len(lines)
}
