package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-fmu/abi"
)

// maxRows bounds the history table shown above the prompt.
const maxRows = 8

type interactiveModel struct {
	lib     *abi.Library
	opts    SessionOptions
	session *Session
	err     error
	result  string
	rows    [][]string
	input   textinput.Model
	logs    viewport.Model
}

type openedMsg struct {
	session *Session
	err     error
}

func newInteractiveModel(lib *abi.Library, opts SessionOptions) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "step [n] | run | set kind:ref=value | watch kind:ref | quit"
	ti.Width = 60
	ti.Focus()

	return &interactiveModel{
		lib:   lib,
		opts:  opts,
		input: ti,
		logs:  viewport.New(80, 8),
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.open)
}

func (m *interactiveModel) open() tea.Msg {
	s, err := Open(m.lib, m.opts, nil)
	return openedMsg{session: s, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, m.quit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.logs, cmd = m.logs.Update(msg)
			return m, cmd
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			return m, m.execute(line)
		}

	case tea.WindowSizeMsg:
		m.logs.Width = msg.Width
		m.logs.Height = max(msg.Height/3, 4)
		m.input.Width = max(msg.Width-4, 20)

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.record()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) quit() tea.Cmd {
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	return tea.Quit
}

// execute runs one prompt command against the session.
func (m *interactiveModel) execute(line string) tea.Cmd {
	if m.session == nil {
		if line == "quit" {
			return m.quit()
		}
		return nil
	}
	m.err = nil
	m.result = ""

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "", "step":
		n := 1
		if arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil || v < 1 {
				m.err = fmt.Errorf("step count must be a positive integer, got %q", arg)
				break
			}
			n = v
		}
		m.advance(func(i int) bool { return i < n })
	case "run":
		if m.opts.Stop <= m.opts.Start {
			m.err = fmt.Errorf("no stop time defined")
			break
		}
		m.advance(func(int) bool { return !m.session.Done() })
	case "set":
		v, err := ParseVariable(arg, true)
		if err == nil {
			err = m.session.Set(v)
		}
		if err != nil {
			m.err = err
			break
		}
		m.result = "set " + v.String() + " = " + v.Value
	case "watch":
		v, err := ParseVariable(arg, false)
		if err != nil {
			m.err = err
			break
		}
		m.session.AddWatch(v)
		m.rows = nil
		m.record()
	case "quit", "exit":
		return m.quit()
	default:
		m.err = fmt.Errorf("unknown command %q", cmd)
	}
	m.refreshLogs()
	return nil
}

func (m *interactiveModel) advance(more func(i int) bool) {
	for i := 0; more(i); i++ {
		if err := m.session.Step(); err != nil {
			m.err = err
			return
		}
		m.record()
	}
	m.result = fmt.Sprintf("t = %s", formatValue(m.session.Time()))
}

func (m *interactiveModel) record() {
	row, err := m.session.Row()
	if err != nil {
		m.err = err
		return
	}
	m.rows = append(m.rows, row)
	if len(m.rows) > maxRows {
		m.rows = m.rows[len(m.rows)-maxRows:]
	}
	m.refreshLogs()
}

func (m *interactiveModel) refreshLogs() {
	lines := m.session.Logs()
	rendered := make([]string, len(lines))
	for i, l := range lines {
		rendered[i] = renderLog(l)
	}
	m.logs.SetContent(strings.Join(rendered, "\n"))
	m.logs.GotoBottom()
}

func (m *interactiveModel) View() string {
	if m.session == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nType quit or press esc.", m.err))
		}
		return "Instantiating component..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("FMU Runner"))
	b.WriteString(" ")
	b.WriteString(m.opts.Resources)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %s  %s %s\n\n",
		helpStyle.Render("time"), resultStyle.Render(formatValue(m.session.Time())),
		helpStyle.Render("status"), statusStyle(m.session.Status()).Render(m.session.Status().String()))

	b.WriteString(renderTable(m.session.Header(), m.rows))
	b.WriteString("\n\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.result != "":
		b.WriteString(resultStyle.Render(m.result))
	}
	b.WriteString("\n\n")

	b.WriteString(funcStyle.Render("log"))
	b.WriteString("\n")
	b.WriteString(m.logs.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run command • pgup/pgdown scroll log • esc quit"))

	return b.String()
}

func runInteractive(lib *abi.Library, opts SessionOptions) error {
	p := tea.NewProgram(newInteractiveModel(lib, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
