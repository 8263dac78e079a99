package differ

import (
	"strings"

	"specwatch/internal/models"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// textRenderer produces a line-oriented textual diff of the canonical JSON
// forms of two snapshots. It supplements the structural delta for human
// readers and alert payloads.
type textRenderer struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

func newTextRenderer() *textRenderer {
	return &textRenderer{dmp: diffmatchpatch.New()}
}

func (tr *textRenderer) Render(previous, current *models.NormalizedSpec) string {
	prevText := canonicalText(previous)
	currText := canonicalText(current)
	if prevText == currText {
		return ""
	}

	// Line-mode diff keeps the output aligned with JSON structure instead
	// of character-level noise.
	chars1, chars2, lineArray := tr.dmp.DiffLinesToChars(prevText, currText)
	diffs := tr.dmp.DiffMain(chars1, chars2, false)
	diffs = tr.dmp.DiffCharsToLines(diffs, lineArray)
	diffs = tr.dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func canonicalText(spec *models.NormalizedSpec) string {
	if spec == nil {
		return ""
	}
	text, err := spec.CanonicalJSON()
	if err != nil {
		return ""
	}
	return string(text)
}
