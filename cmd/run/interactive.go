package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/host"
	"github.com/wippyai/wasm-transform/transform"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	pluginStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err       error
	lib       *host.Library
	instances map[string]*host.Instance
	result    string
	plugins   []pluginInfo
	input     textinput.Model
	selected  int
	state     modelState
}

type pluginInfo struct {
	name string
	desc transform.Descriptor
}

type modelState int

const (
	stateSelectPlugin modelState = iota
	stateInputValues
	stateShowResult
)

func newInteractiveModel(lib *host.Library) *interactiveModel {
	return &interactiveModel{
		lib:       lib,
		instances: make(map[string]*host.Instance),
		state:     stateSelectPlugin,
	}
}

type loadedMsg struct {
	err       error
	plugins   []pluginInfo
	instances map[string]*host.Instance
}

type applyResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadPlugins
}

// loadPlugins instantiates every plugin once; the instances are reused for
// each call so the TUI shows the lock-step cycle on live plugins.
func (m *interactiveModel) loadPlugins() tea.Msg {
	ctx := context.Background()

	var plugins []pluginInfo
	instances := make(map[string]*host.Instance)
	for _, name := range m.lib.Names() {
		mod, err := m.lib.Get(name)
		if err != nil {
			return loadedMsg{err: err}
		}
		inst, err := mod.Instantiate(ctx)
		if err != nil {
			return loadedMsg{err: fmt.Errorf("%s: %w", name, err)}
		}
		instances[name] = inst
		plugins = append(plugins, pluginInfo{name: name, desc: inst.Descriptor()})
	}
	return loadedMsg{plugins: plugins, instances: instances}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputValues {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectPlugin && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectPlugin && m.selected < len(m.plugins)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectPlugin:
				if len(m.plugins) > 0 {
					m.prepareInput()
					m.state = stateInputValues
					return m, nil
				}

			case stateInputValues:
				return m, m.applyPlugin

			case stateShowResult:
				m.state = stateSelectPlugin
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputValues:
				m.state = stateSelectPlugin
			case stateShowResult:
				m.state = stateSelectPlugin
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.plugins = msg.plugins
		m.instances = msg.instances

	case applyResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputValues {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	for _, inst := range m.instances {
		inst.Close(ctx)
	}
}

func (m *interactiveModel) prepareInput() {
	p := m.plugins[m.selected]
	ti := textinput.New()
	ti.Width = 50
	ti.Prompt = "values: "
	ti.Placeholder = "1, 2, 3"
	if p.desc.Shape == codec.Matrix {
		ti.Prompt = "series: "
		ti.Placeholder = "1, 3; 2, 4"
	}
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) applyPlugin() tea.Msg {
	ctx := context.Background()

	p := m.plugins[m.selected]
	inst := m.instances[p.name]
	rows, err := parseRows(m.input.Value())
	if err != nil {
		return applyResultMsg{err: err}
	}

	var out []float64
	if p.desc.Shape == codec.Matrix {
		out, err = inst.ApplyMatrix(ctx, rows)
	} else {
		out, err = inst.ApplyVector(ctx, concat(rows))
	}
	if err != nil {
		return applyResultMsg{err: err}
	}
	return applyResultMsg{result: formatValues(out)}
}

func concat(rows [][]float64) []float64 {
	var out []float64
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.plugins) == 0 {
		return "Loading plugins..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Transform"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectPlugin:
		b.WriteString("Select a plugin:\n\n")
		for i, p := range m.plugins {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatPlugin(p)))
			} else {
				b.WriteString("  " + m.formatPlugin(p))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputValues:
		p := m.plugins[m.selected]
		b.WriteString(fmt.Sprintf("Applying %s\n\n", pluginStyle.Render(p.name)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter apply • esc back"))

	case stateShowResult:
		p := m.plugins[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", pluginStyle.Render(p.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatPlugin(p pluginInfo) string {
	meta := fmt.Sprintf("%s %s", p.desc.Shape, p.desc.ElementType)
	if p.desc.Shape == codec.Matrix {
		meta += " layout=" + p.desc.Layout.String()
	}
	if p.desc.Capacity > 0 {
		meta += fmt.Sprintf(" capacity=%d", p.desc.Capacity)
	}
	return pluginStyle.Render(p.name) + " " + typeStyle.Render(meta)
}

func runInteractive(lib *host.Library) error {
	p := tea.NewProgram(newInteractiveModel(lib), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
