// Package tui renders a live terminal view of the roster mirror.
package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"fleetroster/internal/fleet"
	"fleetroster/internal/manager"
)

// Source is the read side of the roster manager.
type Source interface {
	Status() manager.Status
	CompositionSnapshot() manager.Composition
	StructureSnapshot() fleet.Tree
	Members() []fleet.Member
	LossHistory(limit int) []fleet.LossRecord
}

// ShipNamer maps ship type ids to names.
type ShipNamer interface {
	TypeName(typeID int64) (string, bool)
}

// CharacterNamer maps character ids to names.
type CharacterNamer interface {
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

const (
	defaultInterval = 5 * time.Second
	lossRows        = 5
	nameTimeout     = 5 * time.Second
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type tickMsg time.Time

type snapshotMsg struct {
	status  manager.Status
	comp    manager.Composition
	tree    fleet.Tree
	members []fleet.Member
	losses  []fleet.LossRecord
	names   map[int64]string
}

// Option configures the watcher.
type Option func(*model)

// WithInterval sets how often the view polls the source.
func WithInterval(d time.Duration) Option {
	return func(m *model) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithShipNames resolves ship type ids in the member table.
func WithShipNames(s ShipNamer) Option {
	return func(m *model) { m.ships = s }
}

// WithCharacterNames resolves character ids in the member table.
func WithCharacterNames(c CharacterNamer) Option {
	return func(m *model) { m.chars = c }
}

type model struct {
	src      Source
	ships    ShipNamer
	chars    CharacterNamer
	interval time.Duration

	table  table.Model
	vp     viewport.Model
	snap   snapshotMsg
	loaded bool
	width  int
	height int
	wrap   bool
	help   bool
}

func newModel(src Source, opts ...Option) model {
	cols := []table.Column{
		{Title: "Character", Width: 22},
		{Title: "Role", Width: 16},
		{Title: "Ship", Width: 20},
		{Title: "System", Width: 10},
		{Title: "Wing", Width: 14},
		{Title: "Squad", Width: 14},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(10))
	m := model{
		src:      src,
		interval: defaultInterval,
		table:    t,
		vp:       viewport.New(0, 0),
		wrap:     true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Run shows the watcher until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source, opts ...Option) error {
	p := tea.NewProgram(newModel(src, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// fetch reads a consistent-enough view of the source off the UI goroutine.
func (m model) fetch() tea.Cmd {
	src, chars := m.src, m.chars
	return func() tea.Msg {
		snap := snapshotMsg{
			status:  src.Status(),
			comp:    src.CompositionSnapshot(),
			tree:    src.StructureSnapshot(),
			members: src.Members(),
			losses:  src.LossHistory(lossRows),
		}
		if chars != nil && len(snap.members) > 0 {
			ids := make([]int64, 0, len(snap.members))
			for _, mem := range snap.members {
				ids = append(ids, mem.CharacterID)
			}
			ctx, cancel := context.WithTimeout(context.Background(), nameTimeout)
			defer cancel()
			snap.names, _ = chars.Names(ctx, ids)
		}
		return snap
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.layout()
	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())
	case snapshotMsg:
		m.snap = msg
		m.loaded = true
		m.table.SetRows(m.rows())
		m.layout()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.layout()
			return m, nil
		case "h", "?":
			m.help = !m.help
			return m, nil
		case "r":
			return m, m.fetch()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

// layout splits the screen between the member table and the detail pane.
func (m *model) layout() {
	header := lipgloss.Height(m.renderHeader())
	avail := m.height - header - 3
	if avail < 2 {
		avail = 2
	}
	tableHeight := len(m.snap.members) + 1
	if limit := avail / 2; tableHeight > limit {
		tableHeight = limit
	}
	if tableHeight < 1 {
		tableHeight = 1
	}
	m.table.SetHeight(tableHeight)
	m.vp.Height = avail - tableHeight
	m.vp.SetContent(m.renderDetails())
}

func (m model) rows() []table.Row {
	members := append([]fleet.Member(nil), m.snap.members...)
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.WingID != b.WingID {
			return a.WingID < b.WingID
		}
		if a.SquadID != b.SquadID {
			return a.SquadID < b.SquadID
		}
		return a.CharacterID < b.CharacterID
	})

	wingNames := make(map[int64]string)
	squadNames := make(map[int64]string)
	for _, w := range m.snap.tree {
		wingNames[w.ID] = w.Name
		for _, s := range w.Squads {
			squadNames[s.ID] = s.Name
		}
	}

	rows := make([]table.Row, 0, len(members))
	for _, mem := range members {
		squad := "-"
		if mem.Placed() {
			squad = placementName(squadNames, mem.SquadID)
		}
		rows = append(rows, table.Row{
			m.characterName(mem.CharacterID),
			string(mem.Role),
			m.shipName(mem.ShipTypeID),
			strconv.FormatInt(mem.SolarSystemID, 10),
			placementName(wingNames, mem.WingID),
			squad,
		})
	}
	return rows
}

func (m model) characterName(id int64) string {
	if name, ok := m.snap.names[id]; ok && name != "" {
		return name
	}
	return strconv.FormatInt(id, 10)
}

func (m model) shipName(typeID int64) string {
	if m.ships != nil {
		if name, ok := m.ships.TypeName(typeID); ok {
			return name
		}
	}
	return strconv.FormatInt(typeID, 10)
}

func placementName(names map[int64]string, id int64) string {
	if id == fleet.Unassigned || id == 0 {
		return "-"
	}
	if name := names[id]; name != "" {
		return name
	}
	return strconv.FormatInt(id, 10)
}

func (m model) renderHeader() string {
	if !m.loaded {
		return titleStyle.Render("Fleet roster") + " " + dimStyle.Render("loading...")
	}
	st := m.snap.status
	main := okStyle.Render("main present")
	if !st.MainPresent {
		main = warnStyle.Render("main missing")
	}
	line := fmt.Sprintf("%s %s | %d members | %d wings / %d squads | %s",
		titleStyle.Render("Fleet"), strconv.FormatInt(st.FleetID, 10),
		st.Members, st.Wings, st.Squads, main)
	if !st.LastRefresh.IsZero() {
		line += dimStyle.Render(" | refreshed " + st.LastRefresh.Format("15:04:05"))
	}
	if st.LastError != "" {
		line += "\n" + errStyle.Render("last error: "+st.LastError)
	}

	motd := strings.TrimSpace(m.snap.comp.Motd)
	if motd == "" {
		return line
	}
	if m.width > 0 {
		if m.wrap {
			motd = wordwrap.String(motd, m.width)
		} else {
			motd = truncate.StringWithTail(strings.ReplaceAll(motd, "\n", " "), uint(m.width), "…")
		}
	}
	return line + "\n" + dimStyle.Render(motd)
}

func (m model) renderDetails() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Structure") + "\n")
	b.WriteString(renderTree(m.snap.tree))

	b.WriteString("\n" + titleStyle.Render("Composition") + "\n")
	b.WriteString(renderCounts(m.snap.comp.Composition))
	if len(m.snap.comp.CompositionClass) > 0 {
		b.WriteString("\n" + dimStyle.Render("by class") + "\n")
		b.WriteString(renderCounts(m.snap.comp.CompositionClass))
	}

	b.WriteString("\n" + titleStyle.Render("Losses") + "\n")
	if len(m.snap.losses) == 0 {
		b.WriteString(dimStyle.Render("none"))
	}
	for i, rec := range m.snap.losses {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(rec.Timestamp.Format("15:04:05"))
		for _, class := range sortedClasses(rec.Loss) {
			b.WriteString(errStyle.Render(fmt.Sprintf(" %s -%.2f/min", class, rec.Loss[class])))
		}
	}
	return b.String()
}

func renderTree(tree fleet.Tree) string {
	if len(tree) == 0 {
		return dimStyle.Render("no hierarchy yet")
	}
	var lines []string
	for _, w := range tree {
		count := 0
		for _, s := range w.Squads {
			count += len(s.Members)
		}
		lines = append(lines, fmt.Sprintf("%s (%d) %d members", w.Name, w.ID, count))
		for i, s := range w.Squads {
			prefix := "├─"
			if i == len(w.Squads)-1 {
				prefix = "└─"
			}
			lines = append(lines, fmt.Sprintf("%s %s (%d) %d", prefix, s.Name, s.ID, len(s.Members)))
		}
	}
	return strings.Join(lines, "\n")
}

func renderCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return dimStyle.Render("empty")
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%4d  %s", counts[k], k))
	}
	return strings.Join(lines, "\n")
}

func sortedClasses(loss map[string]float64) []string {
	keys := make([]string, 0, len(loss))
	for k := range loss {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m model) View() string {
	if m.help {
		return renderHelp()
	}
	divider := dimStyle.Render(strings.Repeat("─", max(m.width, 1)))
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.table.View(),
		divider,
		m.vp.View(),
	}, "\n")
}

func renderHelp() string {
	return strings.Join([]string{
		"Key Bindings:",
		" q        quit",
		" r        refresh now",
		" w        toggle MOTD wrap",
		" j/k      move in member table",
		" pgup/dn  scroll detail pane",
		" h/?      toggle this help view",
	}, "\n")
}
