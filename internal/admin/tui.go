// Package admin is a local terminal dashboard over the memory store: tier
// counts for one CI, the MCP request log, and the newest memories.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiy/engram-mcp/internal/store"
	"github.com/xiy/engram-mcp/pkg/types"
)

const (
	refreshEvery  = 2 * time.Second
	requestsShown = 8
	memoriesShown = 8
	eventsShown   = 6
)

type dashboardStore interface {
	Stats(ctx context.Context, ci string) (*types.StoreStats, error)
	Query(ctx context.Context, filter types.QueryFilter) ([]*types.MemoryRecord, error)
	RecentRequests(ctx context.Context, limit int) ([]store.RequestLogEntry, error)
}

type pollMsg time.Time

// refreshMsg carries one complete dashboard fetch. A partial fetch keeps the
// fields gathered before the failure so stale panes still render.
type refreshMsg struct {
	stats    *types.StoreStats
	requests []store.RequestLogEntry
	memories []*types.MemoryRecord
	err      error
	took     time.Duration
}

type model struct {
	ctx    context.Context
	st     dashboardStore
	ci     string
	width  int
	height int

	stats    *types.StoreStats
	requests []store.RequestLogEntry
	memories []*types.MemoryRecord
	events   []string
	lastErr  error
}

// Run blocks inside the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, st dashboardStore, ci string) error {
	m := model{ctx: ctx, st: st, ci: ci}
	m.pushEvent("watching " + ci)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), poll())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "q" || k == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case pollMsg:
		return m, tea.Batch(m.refresh(), poll())
	case refreshMsg:
		m.lastErr = msg.err
		if msg.stats != nil {
			m.stats = msg.stats
		}
		if msg.requests != nil {
			m.requests = msg.requests
		}
		if msg.memories != nil {
			m.memories = msg.memories
		}
		if msg.err != nil {
			m.pushEvent("refresh failed: " + clip(msg.err.Error(), 60))
		} else {
			m.pushEvent(fmt.Sprintf("refreshed in %s", msg.took.Round(time.Millisecond)))
		}
	}
	return m, nil
}

func (m model) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).
		Render(fmt.Sprintf("engram-mcp admin: %s", m.ci))
	hint := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).
		Render(fmt.Sprintf("q to quit, refreshes every %s", refreshEvery))

	w := 52
	if m.width > 0 {
		w = max(40, (m.width-3)/2)
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		pane("Tiers", m.tiersPane(), w),
		pane("Recent Memories", m.memoriesPane(), w),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		pane("MCP Requests", m.requestsPane(), w),
		pane("Events", m.eventsPane(), w),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		header, hint, "",
		lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right),
	)
}

func (m model) tiersPane() string {
	if m.stats == nil {
		return "waiting for first refresh"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "total    %d\n", m.stats.TotalRecords)
	fmt.Fprintf(&b, "tier 1   %d\n", m.stats.Tier1Records)
	fmt.Fprintf(&b, "tier 2   %d\n", m.stats.Tier2Records)
	fmt.Fprintf(&b, "tier 3   %d\n", m.stats.Tier3Records)
	fmt.Fprintf(&b, "archived %d\n", m.stats.ArchivedRecords)
	fmt.Fprintf(&b, "bytes    %d", m.stats.BytesUsed)
	if m.lastErr != nil {
		fmt.Fprintf(&b, "\n\nlast error: %s", clip(m.lastErr.Error(), 90))
	}
	return b.String()
}

func (m model) requestsPane() string {
	if len(m.requests) == 0 {
		return "no MCP requests yet"
	}
	lines := make([]string, 0, len(m.requests))
	for _, r := range m.requests {
		name := r.Method
		if r.ToolName != "" {
			name += ":" + r.ToolName
		}
		status := "ok "
		if !r.Success {
			status = "err"
		}
		line := fmt.Sprintf("%s %s %-22s %4dms", clock(r.CreatedAt), status, clip(name, 22), r.DurationMS)
		if !r.Success && r.ErrorText != "" {
			line += " " + clip(r.ErrorText, 40)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m model) memoriesPane() string {
	if len(m.memories) == 0 {
		return "no memories yet"
	}
	lines := make([]string, 0, len(m.memories))
	for _, rec := range m.memories {
		flag := ' '
		if rec.Archived {
			flag = 'A'
		}
		lines = append(lines, fmt.Sprintf("%s T%d%c %-10s %.2f %s",
			clock(rec.CreatedAt), rec.Tier, flag, clip(string(rec.Kind), 10),
			rec.Importance, clip(rec.Content, 48)))
	}
	return strings.Join(lines, "\n")
}

func (m model) eventsPane() string {
	if len(m.events) == 0 {
		return "quiet"
	}
	return strings.Join(m.events, "\n")
}

func (m *model) pushEvent(line string) {
	m.events = append(m.events, clock(time.Now())+" "+line)
	if len(m.events) > eventsShown {
		m.events = m.events[len(m.events)-eventsShown:]
	}
}

func (m model) refresh() tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		out := refreshMsg{}

		out.stats, out.err = m.st.Stats(m.ctx, m.ci)
		if out.err == nil {
			out.requests, out.err = m.st.RecentRequests(m.ctx, requestsShown)
		}
		if out.err == nil {
			out.memories, out.err = m.st.Query(m.ctx, types.QueryFilter{CI: m.ci, Limit: memoriesShown})
		}
		out.took = time.Since(start)
		return out
	}
}

func poll() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func pane(title, body string, width int) string {
	head := lipgloss.NewStyle().Bold(true).Render(title)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(width).
		Render(head + "\n" + body)
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.UTC().Format("15:04:05")
}

func clip(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
