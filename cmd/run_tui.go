// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries  = 100
	eventLogHeight = 8
)

// Focus states
const (
	focusPresetList = iota
	focusCommandInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// presetItem is a preset shown in the list
type presetItem struct {
	id       string
	name     string
	category string
	active   bool
}

// Implement list.Item interface
func (p presetItem) Title() string {
	if p.active {
		return "● " + p.name
	}
	return "  " + p.name
}
func (p presetItem) Description() string { return p.category }
func (p presetItem) FilterValue() string { return p.category + " " + p.name }

// runModel is the Bubble Tea model for the control TUI
type runModel struct {
	ctx      context.Context
	session  *session
	connInfo string

	// Feeds
	changes <-chan host.Change
	logs    <-chan logEntry

	// Host state
	status    host.Status
	message   string
	okSince   time.Time
	variables map[string]interface{}

	// Controls
	presetList   list.Model
	commandInput textinput.Model
	focusedField int

	// Event log
	eventLog []logEntry

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type runTickMsg time.Time

type changeMsg host.Change

type logMsg logEntry

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialRunModel(ctx context.Context, s *session, connInfo string, changes <-chan host.Change, logs <-chan logEntry) runModel {
	ti := textinput.New()
	ti.Placeholder = "volume $(internal:time_s)"
	ti.CharLimit = 128
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	presetList := list.New([]list.Item{}, delegate, 30, 10)
	presetList.Title = "Presets"
	presetList.SetShowStatusBar(false)
	presetList.SetShowHelp(false)

	m := runModel{
		ctx:          ctx,
		session:      s,
		connInfo:     connInfo,
		changes:      changes,
		logs:         logs,
		variables:    make(map[string]interface{}),
		presetList:   presetList,
		commandInput: ti,
		focusedField: focusPresetList,
		eventLog:     make([]logEntry, 0),
		width:        80,
		height:       24,
	}
	m.refresh()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m runModel) Init() tea.Cmd {
	return tea.Batch(runTickCmd(), waitForChange(m.changes), waitForLog(m.logs))
}

func runTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return runTickMsg(t)
	})
}

func waitForChange(changes <-chan host.Change) tea.Cmd {
	return func() tea.Msg {
		return changeMsg(<-changes)
	}
}

func waitForLog(logs <-chan logEntry) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-logs)
	}
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case runTickMsg:
		// Internal time variables change every second
		m.refresh()
		return m, runTickCmd()

	case changeMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case logMsg:
		m.addLogEntry(logEntry(msg))
		return m, waitForLog(m.logs)
	}

	var cmd tea.Cmd
	if m.focusedField == focusCommandInput {
		m.commandInput, cmd = m.commandInput.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.presetList, cmd = m.presetList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *runModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField == focusPresetList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil

	case "ctrl+r":
		m.reload()
		return m, nil

	case "enter":
		if m.focusedField == focusCommandInput {
			m.sendCommand()
		} else {
			m.pressSelectedPreset()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusedField == focusCommandInput {
		m.commandInput, cmd = m.commandInput.Update(msg)
	} else {
		m.presetList, cmd = m.presetList.Update(msg)
	}
	return m, cmd
}

func (m *runModel) toggleFocus() {
	if m.focusedField == focusPresetList {
		m.focusedField = focusCommandInput
		m.commandInput.Focus()
	} else {
		m.focusedField = focusPresetList
		m.commandInput.Blur()
	}
}

func (m runModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("LILLIPUT CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Ctrl+R=reconnect", m.connInfo)))
	s.WriteString("\n")

	// Status line
	s.WriteString(fmt.Sprintf(" %s %s", statsLabelStyle.Render("Status:"), statusStyle(m.status).Render(string(m.status))))
	if m.message != "" {
		s.WriteString(" " + warningStyle.Render(m.message))
	}
	if m.status == host.StatusOk && !m.okSince.IsZero() {
		s.WriteString(fmt.Sprintf("  %s %s",
			statsLabelStyle.Render("Connected:"),
			statsValueStyle.Render(formatElapsed(time.Since(m.okSince)))))
	}
	s.WriteString("\n\n")

	// Layout: left panel (presets) | right panel (variables)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusPresetList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	presetPanel := listStyle.Render(m.presetList.View())
	variablePanel := boxStyle.Width(rightWidth).Render(m.renderVariables(statsLabelStyle, statsValueStyle, headerStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, presetPanel, " ", variablePanel))
	s.WriteString("\n")

	// Command input
	inputStyle := boxStyle.Width(m.width - 4)
	if m.focusedField == focusCommandInput {
		inputStyle = focusedBoxStyle.Width(m.width - 4)
	}
	s.WriteString(inputStyle.Render(statsLabelStyle.Render("Command: ") + m.commandInput.View()))
	s.WriteString("\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m runModel) renderVariables(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("VARIABLES"))
	s.WriteString("\n")

	defs := m.session.registry.VariableDefinitions()
	if len(defs) == 0 {
		s.WriteString(headerStyle.Render("  (no variables)"))
		return s.String()
	}

	for _, def := range defs {
		value, ok := m.variables[def.ID]
		rendered := headerStyle.Render("-")
		if ok {
			rendered = statsValueStyle.Render(host.FormatVariable(value))
		}
		s.WriteString(fmt.Sprintf("%-14s %s\n", def.Name, rendered))
	}

	// State keys without a definition (unknown to this model's catalog)
	var extra []string
	for k := range m.variables {
		if !hasVariable(defs, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		s.WriteString(fmt.Sprintf("%-14s %s\n", k, statsValueStyle.Render(host.FormatVariable(m.variables[k]))))
	}

	return s.String()
}

func (m runModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	startIdx := len(m.eventLog) - eventLogHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Actions
//////////////////////////////////////////////////////////////

func (m *runModel) pressSelectedPreset() {
	item, ok := m.presetList.SelectedItem().(presetItem)
	if !ok {
		return
	}
	if !m.session.instance.Ready() {
		m.addLogEntry(logEntry{timestamp: time.Now(), message: "Cannot press preset: not connected", isError: true})
		return
	}
	if err := m.session.registry.PressPreset(m.ctx, item.id); err != nil {
		m.addLogEntry(logEntry{timestamp: time.Now(), message: fmt.Sprintf("Preset %s failed: %v", item.name, err), isError: true})
		return
	}
	m.addLogEntry(logEntry{timestamp: time.Now(), message: fmt.Sprintf("Pressed %s", item.name)})
}

func (m *runModel) sendCommand() {
	text := strings.TrimSpace(m.commandInput.Value())
	if text == "" {
		return
	}
	if !m.session.instance.Ready() {
		m.addLogEntry(logEntry{timestamp: time.Now(), message: "Cannot send command: not connected", isError: true})
		return
	}
	err := m.session.registry.ExecuteAction(m.ctx, "customCommand", host.Options{"command": text})
	if err != nil {
		m.addLogEntry(logEntry{timestamp: time.Now(), message: fmt.Sprintf("Command failed: %v", err), isError: true})
		return
	}
	m.addLogEntry(logEntry{timestamp: time.Now(), message: fmt.Sprintf("Sent %s", text)})
	m.commandInput.SetValue("")
}

func (m *runModel) reload() {
	cfg, err := loadConfig()
	if err != nil {
		m.addLogEntry(logEntry{timestamp: time.Now(), message: fmt.Sprintf("Reload failed: %v", err), isError: true})
		return
	}
	m.connInfo = connectionInfo(cfg)
	m.addLogEntry(logEntry{timestamp: time.Now(), message: "Reconnecting to " + m.connInfo})
	if err := m.session.instance.ConfigUpdated(cfg); err != nil {
		m.addLogEntry(logEntry{timestamp: time.Now(), message: fmt.Sprintf("Reload rejected: %v", err), isError: true})
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

// refresh copies status, variables and preset feedback state from the host
func (m *runModel) refresh() {
	registry := m.session.registry

	status, message := registry.Status()
	if status == host.StatusOk && m.status != host.StatusOk {
		m.okSince = time.Now()
	}
	m.status = status
	m.message = message
	m.variables = registry.Variables()

	presets := registry.Presets()
	items := make([]list.Item, len(presets))
	for i, p := range presets {
		items[i] = presetItem{
			id:       p.ID,
			name:     p.Name,
			category: p.Category,
			active:   registry.PresetActive(p.ID),
		}
	}
	m.presetList.SetItems(items)
}

func (m *runModel) addLogEntry(entry logEntry) {
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m *runModel) updateListSize() {
	listHeight := m.height - eventLogHeight - 12
	if listHeight < 5 {
		listHeight = 5
	}
	m.presetList.SetSize(28, listHeight)
}

func hasVariable(defs []host.VariableDefinition, id string) bool {
	for _, d := range defs {
		if d.ID == id {
			return true
		}
	}
	return false
}
