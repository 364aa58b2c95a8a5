package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/clipforge/internal/batch"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// progressView renders batch events as lines on w. Job progress lines are
// throttled to whole-percent changes.
type progressView struct {
	w    io.Writer
	json bool
	bar  progress.Model

	mu   sync.Mutex
	last int
}

func newProgressView(w io.Writer, jsonOut bool) *progressView {
	return &progressView{
		w:    w,
		json: jsonOut,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		last: -1,
	}
}

// eventLine is the JSON form of a batch.Event.
type eventLine struct {
	Kind     batch.EventKind `json:"event"`
	BatchID  string          `json:"batch_id"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Percent  float64         `json:"percent,omitempty"`
	Artifact string          `json:"artifact,omitempty"`
	Error    string          `json:"error,omitempty"`
	Status   batch.Status    `json:"status,omitempty"`
}

func (v *progressView) Report(e batch.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if e.Kind == batch.EventJobProgress {
		p := int(e.Percent)
		if p == v.last {
			return
		}
		v.last = p
	} else {
		v.last = -1
	}

	if v.json {
		line := eventLine{
			Kind:     e.Kind,
			BatchID:  e.BatchID,
			Index:    e.Index,
			Total:    e.Total,
			Percent:  e.Percent,
			Artifact: e.Artifact,
			Status:   e.Status,
		}
		if e.Err != nil {
			line.Error = e.Err.Error()
		}
		_ = json.NewEncoder(v.w).Encode(line)
		return
	}

	if s := v.text(e); s != "" {
		fmt.Fprintln(v.w, s)
	}
}

func (v *progressView) text(e batch.Event) string {
	job := fmt.Sprintf("[%d/%d]", e.Index+1, e.Total)
	switch e.Kind {
	case batch.EventStarted:
		return titleStyle.Render(fmt.Sprintf("batch %s: %d jobs, starting at %d", e.BatchID, e.Total, e.Index+1))
	case batch.EventJobStarted:
		return mutedStyle.Render(fmt.Sprintf("%s rendering (estimated %s)", job, e.Estimate))
	case batch.EventJobProgress:
		return fmt.Sprintf("%s %s", job, v.bar.ViewAs(e.Percent/100))
	case batch.EventJobSucceeded:
		return okStyle.Render(job+" done ") + e.Artifact
	case batch.EventJobFailed:
		return errorStyle.Render(job+" failed ") + errString(e.Err)
	case batch.EventCheckpointFailed:
		return errorStyle.Render("checkpoint failed ") + errString(e.Err)
	case batch.EventFinished:
		return titleStyle.Render(fmt.Sprintf("batch %s %s", e.BatchID, e.Status))
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// renderState renders a batch state as a bordered panel.
func renderState(st *batch.BatchState) string {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))

	header := titleStyle.Render("batch " + st.ID)
	lines := []string{
		fmt.Sprintf("status     %s", st.Status),
		fmt.Sprintf("progress   %s  %d/%d attempted", bar.ViewAs(st.Ratio()), st.Attempted(), st.TotalJobs),
		fmt.Sprintf("completed  %d", st.CompletedCount),
		fmt.Sprintf("failed     %d", len(st.Failures)),
	}
	if st.Resumable() {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("next job   %d", st.Cursor.JobIndex+1)))
	}
	for _, f := range st.Failures {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("job %d %s: ", f.Index+1, f.Stage))+f.Message)
	}
	for i, o := range st.Outputs {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("output %d ", i+1))+o)
	}

	body := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return lipgloss.JoinVertical(lipgloss.Left, header, panelStyle.Render(body))
}
