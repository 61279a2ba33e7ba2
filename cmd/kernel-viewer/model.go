// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clove-kernel/clove/lib/opcode"
)

// refreshInterval is how often the viewer re-polls GET_AUDIT_LOG and
// WORLD_LIST while idle. The kernel itself ticks every 250ms (spec
// §4.2's reactor default); polling slower than that is plenty for a
// human-facing display.
const refreshInterval = time.Second

// pane identifies which data view is on screen.
type pane int

const (
	paneAudit pane = iota
	paneWorlds
)

func (p pane) String() string {
	switch p {
	case paneAudit:
		return "audit log"
	case paneWorlds:
		return "worlds"
	default:
		return "?"
	}
}

// auditEntry mirrors kernel/audit.Entry's wire shape. Redefined here
// rather than imported because the viewer only ever sees it as JSON
// off the wire, same as any other kernel client would (spec §4.1 —
// clients never link against kernel/* packages directly).
type auditEntry struct {
	SeqID     uint64    `json:"seq_id"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	AgentID   uint32    `json:"agent_id"`
	Label     string    `json:"label"`
	Success   bool      `json:"success"`
}

// worldSummary mirrors kernel/context's WORLD_LIST response entry.
type worldSummary struct {
	WorldID     string `json:"world_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Metrics     struct {
		AgentCount   int       `json:"agent_count"`
		CreatedAt    time.Time `json:"created_at"`
		LastActivity time.Time `json:"last_activity"`
	} `json:"metrics"`
}

type auditLoadedMsg struct {
	entries []auditEntry
	err     error
}

type worldsLoadedMsg struct {
	worlds []worldSummary
	err    error
}

type tickMsg struct{}

// model is the viewer's bubbletea state.
type model struct {
	client *client
	keys   keyMap

	width  int
	height int
	ready  bool

	active pane

	auditEntries []auditEntry
	worlds       []worldSummary
	lastError    string

	auditView  viewport.Model
	worldsView viewport.Model
}

func newModel(c *client) model {
	return model{client: c, keys: defaultKeyMap, active: paneAudit}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchAudit(m.client), fetchWorlds(m.client), scheduleTick())
}

func scheduleTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func fetchAudit(c *client) tea.Cmd {
	return func() tea.Msg {
		req, _ := json.Marshal(struct {
			Limit int `json:"limit"`
		}{Limit: 200})
		resp, err := c.call(opcode.GET_AUDIT_LOG, req)
		if err != nil {
			return auditLoadedMsg{err: err}
		}
		var body struct {
			Success bool         `json:"success"`
			Error   string       `json:"error"`
			Entries []auditEntry `json:"entries"`
		}
		if err := json.Unmarshal(resp, &body); err != nil {
			return auditLoadedMsg{err: err}
		}
		if !body.Success {
			return auditLoadedMsg{err: fmt.Errorf("%s", body.Error)}
		}
		return auditLoadedMsg{entries: body.Entries}
	}
}

func fetchWorlds(c *client) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.call(opcode.WORLD_LIST, nil)
		if err != nil {
			return worldsLoadedMsg{err: err}
		}
		var body struct {
			Success bool           `json:"success"`
			Error   string         `json:"error"`
			Worlds  []worldSummary `json:"worlds"`
		}
		if err := json.Unmarshal(resp, &body); err != nil {
			return worldsLoadedMsg{err: err}
		}
		if !body.Success {
			return worldsLoadedMsg{err: fmt.Errorf("%s", body.Error)}
		}
		return worldsLoadedMsg{worlds: body.Worlds}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		contentHeight := msg.Height - 3 // header + status line + margin
		if !m.ready {
			m.auditView = viewport.New(msg.Width, contentHeight)
			m.worldsView = viewport.New(msg.Width, contentHeight)
			m.ready = true
		} else {
			m.auditView.Width, m.auditView.Height = msg.Width, contentHeight
			m.worldsView.Width, m.worldsView.Height = msg.Width, contentHeight
		}
		m.renderPanes()
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchAudit(m.client), fetchWorlds(m.client), scheduleTick())

	case auditLoadedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		} else {
			m.auditEntries = msg.entries
			m.lastError = ""
		}
		m.renderPanes()
		return m, nil

	case worldsLoadedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		} else {
			m.worlds = msg.worlds
			m.lastError = ""
		}
		m.renderPanes()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.TabNext):
			m.active = (m.active + 1) % 2
			return m, nil
		case key.Matches(msg, m.keys.TabPrev):
			m.active = (m.active + 1) % 2
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			return m, tea.Batch(fetchAudit(m.client), fetchWorlds(m.client))
		}
	}

	var cmd tea.Cmd
	if m.active == paneAudit {
		m.auditView, cmd = m.auditView.Update(msg)
	} else {
		m.worldsView, cmd = m.worldsView.Update(msg)
	}
	return m, cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24")).Padding(0, 1)
	tabStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeTab   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successMark = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failureMark = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// renderPanes rebuilds the viewport content for both panes from
// current data. Called whenever the underlying data or terminal size
// changes, never from View (View must stay cheap and side-effect
// free).
func (m *model) renderPanes() {
	if !m.ready {
		return
	}

	var auditLines []string
	for i := len(m.auditEntries) - 1; i >= 0; i-- {
		e := m.auditEntries[i]
		mark := successMark.Render("ok")
		if !e.Success {
			mark = failureMark.Render("fail")
		}
		auditLines = append(auditLines, fmt.Sprintf("%6d  %s  %-10s agent=%-6d %-24s %s",
			e.SeqID, e.Timestamp.Format("15:04:05.000"), e.Category, e.AgentID, e.Label, mark))
	}
	if len(auditLines) == 0 {
		auditLines = append(auditLines, dimStyle.Render("(no audit entries yet)"))
	}
	m.auditView.SetContent(strings.Join(auditLines, "\n"))

	var worldLines []string
	for _, w := range m.worlds {
		desc := w.Description
		if desc == "" {
			desc = "-"
		}
		worldLines = append(worldLines, fmt.Sprintf("%-12s %-20s agents=%-4d created=%s  %s",
			w.WorldID, w.Name, w.Metrics.AgentCount, w.Metrics.CreatedAt.Format("2006-01-02 15:04"), desc))
	}
	if len(worldLines) == 0 {
		worldLines = append(worldLines, dimStyle.Render("(no worlds)"))
	}
	m.worldsView.SetContent(strings.Join(worldLines, "\n"))
}

func (m model) View() string {
	if !m.ready {
		return "loading…"
	}

	tabs := make([]string, 2)
	for i, p := range []pane{paneAudit, paneWorlds} {
		label := p.String()
		if p == m.active {
			tabs[i] = activeTab.Render("[ " + label + " ]")
		} else {
			tabs[i] = tabStyle.Render("  " + label + "  ")
		}
	}

	header := headerStyle.Render("clove kernel viewer") + "  " + strings.Join(tabs, " ")

	var body string
	if m.active == paneAudit {
		body = m.auditView.View()
	} else {
		body = m.worldsView.View()
	}

	status := dimStyle.Render(fmt.Sprintf("tab: switch view  r: refresh  q: quit  (auto-refresh every %s)", refreshInterval))
	if m.lastError != "" {
		status = errorStyle.Render("error: " + m.lastError)
	}

	return strings.Join([]string{header, body, status}, "\n")
}
