package checkpoint

import (
	"fmt"
	"strings"
)

// buildResumeMarkdown renders a numbered action-list markdown document from
// a captured WorkState (spec §4.4: "a markdown-formatted, numbered action
// list ... status summary, files touched, git snapshot, next steps, recent
// commands"). Generation is pure string assembly, well within the <50ms
// target.
func buildResumeMarkdown(cp *Checkpoint) string {
	var b strings.Builder
	ws := cp.WorkState

	fmt.Fprintf(&b, "# Resume Instructions (checkpoint %s)\n\n", cp.ID)
	fmt.Fprintf(&b, "Captured %s at %.0f%% context usage (%s).\n\n",
		cp.SnapshotAt.Format("2006-01-02 15:04:05"), cp.ContextWindowPercent, cp.Kind)

	b.WriteString("## 1. Status Summary\n\n")
	if ws.CurrentEpic != nil {
		fmt.Fprintf(&b, "Epic `%s` is %s.\n\n", ws.CurrentEpic.ID, ws.CurrentEpic.Status)
	} else {
		b.WriteString("No epic was in progress.\n\n")
	}

	b.WriteString("## 2. Files Touched\n\n")
	if len(ws.FilesModified) == 0 {
		b.WriteString("None recorded.\n\n")
	} else {
		for _, f := range ws.FilesModified {
			fmt.Fprintf(&b, "- `%s` (%s, %d lines)\n", f.Path, f.Status, f.LinesChanged)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 3. Git Snapshot\n\n")
	if ws.GitStatus != nil {
		g := ws.GitStatus
		fmt.Fprintf(&b, "Branch `%s`: %d staged, %d unstaged, %d untracked, %d commits ahead.\n\n",
			g.Branch, g.Staged, g.Unstaged, g.Untracked, g.CommitCount)
	} else {
		b.WriteString("Git status unavailable at capture time.\n\n")
	}

	b.WriteString("## 4. Next Steps\n\n")
	if ws.PRDStatus.NextEpic != "" {
		fmt.Fprintf(&b, "1. Continue with epic `%s`.\n\n", ws.PRDStatus.NextEpic)
	} else {
		b.WriteString("1. Re-assess PRD status; no next epic recorded.\n\n")
	}

	b.WriteString("## 5. Recent Commands\n\n")
	if len(ws.LastCommands) == 0 {
		b.WriteString("None recorded.\n")
	} else {
		for i, c := range ws.LastCommands {
			fmt.Fprintf(&b, "%d. `%s`\n", i+1, c)
		}
	}

	return b.String()
}
