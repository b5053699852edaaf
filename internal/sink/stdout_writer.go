// Writer implementation printing snapshots to STDOUT
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"fleetroster/internal/fleet"
)

var (
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	fleetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	shipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// StdoutWriter prints snapshots either as JSON lines or, on a terminal, as
// one colored summary line per refresh.
type StdoutWriter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

// NewStdoutWriter writes to os.Stdout and colorizes when it is a terminal.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout, colorize: term.IsTerminal(int(os.Stdout.Fd()))}
}

// NewJSONWriter writes JSON lines to out.
func NewJSONWriter(out io.Writer) *StdoutWriter {
	return &StdoutWriter{out: out}
}

// WriteSnapshot outputs a single history entry.
func (w *StdoutWriter) WriteSnapshot(e fleet.HistoryEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.colorize {
		return w.writeJSON(e)
	}
	main := "main absent"
	if e.Main != nil {
		main = fmt.Sprintf("main in %d", e.Main.SolarSystemID)
	}
	_, err := fmt.Fprintf(w.out, "%s %s %d members | %s | %s\n",
		timeStyle.Render(e.Timestamp.Format("15:04:05")),
		fleetStyle.Render(fmt.Sprintf("fleet %d", e.FleetID)),
		len(e.Members),
		shipStyle.Render(formatCounts(e.Composition)),
		main)
	return err
}

// WriteLoss outputs a loss record.
func (w *StdoutWriter) WriteLoss(r fleet.LossRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.colorize {
		return w.writeJSON(r)
	}
	parts := make([]string, 0, len(r.Loss))
	for _, class := range sortedKeys(r.Loss) {
		parts = append(parts, fmt.Sprintf("%s -%.2f/min", class, r.Loss[class]))
	}
	_, err := fmt.Fprintf(w.out, "%s %s %s\n",
		timeStyle.Render(r.Timestamp.Format("15:04:05")),
		lossStyle.Render("losses"),
		strings.Join(parts, ", "))
	return err
}

func (w *StdoutWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "empty"
	}
	names := sortedKeys(counts)
	sort.SliceStable(names, func(i, j int) bool { return counts[names[i]] > counts[names[j]] })
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s x%d", n, counts[n]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
