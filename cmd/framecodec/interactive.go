package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/framecodec/binary"
	"github.com/wippyai/framecodec/json"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	modeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	numStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	consumedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	defaultStepSize = 8
	historySize     = 12
	previewBytes    = 48
)

// engine is what the stepper needs from a decoder. Both formats' decoders
// satisfy it.
type engine interface {
	Feed(p []byte) (int, error)
	Finish() error
	Done() bool
	BytesNeeded() int
	Depth() int
	Offset() int
	Mode() string
	Value() reflect.Value
}

type step struct {
	mode     string
	fed      int
	consumed int
	need     int
	depth    int
}

type stepperState int

const (
	stateStepping stepperState = iota
	stateEditChunk
	stateFinished
)

type stepperModel struct {
	err      error
	dec      engine
	newDec   func() (engine, error)
	filename string
	format   string
	result   string
	data     []byte
	history  []step
	input    textinput.Model
	read     int // bytes of data handed to the decoder so far
	pending  int // start of the unconsumed tail within data[:read]
	size     int
	state    stepperState
}

func newStepperModel(filename, format string, data []byte, newDec func() (engine, error), size int) *stepperModel {
	if size <= 0 {
		size = defaultStepSize
	}
	return &stepperModel{
		filename: filename,
		format:   format,
		data:     data,
		newDec:   newDec,
		size:     size,
	}
}

type resetMsg struct {
	err error
	dec engine
}

func (m *stepperModel) Init() tea.Cmd {
	return m.reset
}

func (m *stepperModel) reset() tea.Msg {
	dec, err := m.newDec()
	if err != nil {
		return resetMsg{err: err}
	}
	return resetMsg{dec: dec}
}

func (m *stepperModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEditChunk {
			return m.updateChunkInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case " ", "n", "enter":
			if m.state == stateStepping && m.dec != nil {
				m.feedNext()
			}

		case "f":
			if m.state == stateStepping && m.dec != nil {
				m.finish()
			}

		case "+", "=":
			m.size *= 2

		case "-":
			if m.size > 1 {
				m.size /= 2
			}

		case "c":
			m.input = textinput.New()
			m.input.Prompt = "chunk size: "
			m.input.Placeholder = strconv.Itoa(m.size)
			m.input.Width = 12
			m.input.Focus()
			m.state = stateEditChunk
			return m, textinput.Blink

		case "r":
			return m, m.reset
		}

	case resetMsg:
		m.dec, m.err = msg.dec, msg.err
		m.read, m.pending = 0, 0
		m.history, m.result = nil, ""
		m.state = stateStepping
	}
	return m, nil
}

func (m *stepperModel) updateChunkInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if n, err := strconv.Atoi(strings.TrimSpace(m.input.Value())); err == nil && n > 0 {
			m.size = n
		}
		m.state = stateStepping
		return m, nil
	case "esc":
		m.state = stateStepping
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// feedNext hands the decoder its unconsumed tail plus the next chunk, the
// way the stream pump does.
func (m *stepperModel) feedNext() {
	if m.read == len(m.data) {
		m.finish()
		return
	}
	m.read = min(m.read+m.size, len(m.data))
	window := m.data[m.pending:m.read]

	n, err := m.dec.Feed(window)
	m.pending += n
	m.record(len(window), n)
	if err != nil {
		m.err, m.state = err, stateFinished
		return
	}
	if m.dec.Done() {
		m.complete()
	}
}

func (m *stepperModel) finish() {
	if err := m.dec.Finish(); err != nil {
		m.err, m.state = err, stateFinished
		return
	}
	m.record(0, 0)
	m.complete()
}

func (m *stepperModel) record(fed, consumed int) {
	m.history = append(m.history, step{
		mode:     m.dec.Mode(),
		fed:      fed,
		consumed: consumed,
		need:     m.dec.BytesNeeded(),
		depth:    m.dec.Depth(),
	})
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

// complete renders the decoded value as indented JSON.
func (m *stepperModel) complete() {
	m.state = stateFinished
	v := m.dec.Value()
	if !v.IsValid() {
		m.result = "null"
		return
	}
	opts := json.DefaultOptions()
	opts.Indent = "  "
	s, err := json.NewCodec(opts).MarshalString(v.Interface())
	if err != nil {
		m.err = err
		return
	}
	m.result = s
}

func (m *stepperModel) View() string {
	if m.dec == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Preparing decoder..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("framecodec stepper"))
	fmt.Fprintf(&b, " %s (%s, %d bytes)\n\n", m.filename, m.format, len(m.data))

	fmt.Fprintf(&b, "offset %s  depth %s  mode %s  bytes needed %s  chunk %s\n\n",
		numStyle.Render(strconv.Itoa(m.dec.Offset())),
		numStyle.Render(strconv.Itoa(m.dec.Depth())),
		modeStyle.Render(m.dec.Mode()),
		numStyle.Render(strconv.Itoa(m.dec.BytesNeeded())),
		numStyle.Render(strconv.Itoa(m.size)))

	b.WriteString(m.preview())
	b.WriteString("\n\n")

	for _, s := range m.history {
		fmt.Fprintf(&b, "  fed %4d  consumed %4d  need %4d  depth %3d  %s\n",
			s.fed, s.consumed, s.need, s.depth, modeStyle.Render(s.mode))
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	switch m.state {
	case stateEditChunk:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter apply • esc cancel"))

	case stateFinished:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("r restart • q quit"))

	default:
		b.WriteString(helpStyle.Render("space feed • f finish • +/- chunk • c set chunk • r restart • q quit"))
	}
	return b.String()
}

// preview shows the consumed bytes, the tail the decoder left for the next
// feed, and the first unread bytes.
func (m *stepperModel) preview() string {
	from := max(0, m.pending-previewBytes/2)
	to := min(len(m.data), m.read+previewBytes/2)

	render := func(p []byte) string {
		if m.format == binary.Name {
			return fmt.Sprintf("% x", p)
		}
		return strconv.Quote(string(p))
	}

	var parts []string
	if from < m.pending {
		parts = append(parts, consumedStyle.Render(render(m.data[from:m.pending])))
	}
	if m.pending < m.read {
		parts = append(parts, pendingStyle.Render(render(m.data[m.pending:m.read])))
	}
	if m.read < to {
		parts = append(parts, helpStyle.Render(render(m.data[m.read:to])))
	}
	return strings.Join(parts, " ")
}

func runInteractive(path, format string, cfg *config, size int) error {
	data, err := readInput(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var newDec func() (engine, error)
	switch format {
	case binary.Name:
		opts, err := cfg.binaryOptions()
		if err != nil {
			return err
		}
		newDec = func() (engine, error) { return binary.NewDecoder(reflect.TypeFor[any](), opts) }
	case json.Name:
		opts, err := cfg.jsonOptions()
		if err != nil {
			return err
		}
		newDec = func() (engine, error) { return json.NewDecoder(reflect.TypeFor[any](), opts) }
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	p := tea.NewProgram(newStepperModel(path, format, data, newDec, size), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
