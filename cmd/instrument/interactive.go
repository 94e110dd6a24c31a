package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/jvm-instrument/analyzer"
	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/instrument"
	"github.com/wippyai/jvm-instrument/typemodel"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	listingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectClass modelState = iota
	stateSelectMethod
	stateInputPoint
	stateShowListing
)

// classInfo is one loaded class with its analyzed model.
type classInfo struct {
	typ  *typemodel.Type
	file string
	data []byte
}

type interactiveModel struct {
	err        error
	dispatcher string
	files      []string
	classes    []classInfo
	visible    []int
	filter     textinput.Model
	pointInput textinput.Model
	title      string
	listing    string
	selected   int
	method     int
	state      modelState
	loaded     bool
}

func newInteractiveModel(files []string, dispatcher string) *interactiveModel {
	filter := textinput.New()
	filter.Placeholder = "class filter"
	filter.Prompt = "/ "
	filter.Width = 40
	filter.Focus()

	pt := textinput.New()
	pt.Placeholder = "sensor id"
	pt.Prompt = "id: "
	pt.Width = 20

	return &interactiveModel{
		files:      files,
		dispatcher: dispatcher,
		filter:     filter,
		pointInput: pt,
		state:      stateSelectClass,
	}
}

type loadedMsg struct {
	err     error
	classes []classInfo
}

type listingMsg struct {
	err     error
	title   string
	listing string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadClasses
}

func (m *interactiveModel) loadClasses() tea.Msg {
	reg := typemodel.NewRegistry()
	a := analyzer.New("")
	classes := make([]classInfo, 0, len(m.files))
	for _, f := range m.files {
		data, err := os.ReadFile(f)
		if err != nil {
			return loadedMsg{err: err}
		}
		t, err := a.AnalyzeInto(reg, data)
		if err != nil {
			return loadedMsg{err: fmt.Errorf("%s: %w", f, err)}
		}
		classes = append(classes, classInfo{typ: t, file: f, data: data})
	}
	return loadedMsg{classes: classes}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateSelectClass && m.state != stateInputPoint {
				return m, tea.Quit
			}

		case "up":
			m.move(-1)
			return m, nil

		case "down":
			m.move(1)
			return m, nil

		case "enter":
			switch m.state {
			case stateSelectClass:
				if len(m.visible) > 0 {
					m.state = stateSelectMethod
					m.method = 0
				}
				return m, nil
			case stateSelectMethod:
				return m, m.showOriginal
			case stateInputPoint:
				return m, m.showInstrumented
			case stateShowListing:
				m.state = stateSelectMethod
				m.listing = ""
				m.err = nil
				return m, nil
			}

		case "s":
			if m.state == stateSelectMethod {
				m.state = stateInputPoint
				m.pointInput.SetValue("")
				m.pointInput.Focus()
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateSelectMethod:
				m.state = stateSelectClass
			case stateInputPoint, stateShowListing:
				m.state = stateSelectMethod
				m.listing = ""
				m.err = nil
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.classes = msg.classes
		m.loaded = true
		m.applyFilter()
		return m, nil

	case listingMsg:
		m.title = msg.title
		m.listing = msg.listing
		m.err = msg.err
		m.state = stateShowListing
		return m, nil
	}

	var cmd tea.Cmd
	switch m.state {
	case stateSelectClass:
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
	case stateInputPoint:
		m.pointInput, cmd = m.pointInput.Update(msg)
	}
	return m, cmd
}

func (m *interactiveModel) move(delta int) {
	switch m.state {
	case stateSelectClass:
		if n := m.selected + delta; n >= 0 && n < len(m.visible) {
			m.selected = n
		}
	case stateSelectMethod:
		if n := m.method + delta; n >= 0 && n < len(m.current().typ.Methods) {
			m.method = n
		}
	}
}

func (m *interactiveModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, c := range m.classes {
		if q == "" || strings.Contains(strings.ToLower(c.typ.FQN), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *interactiveModel) current() *classInfo {
	return &m.classes[m.visible[m.selected]]
}

func (m *interactiveModel) currentMethod() (*classInfo, *typemodel.Method, error) {
	c := m.current()
	if m.method >= len(c.typ.Methods) {
		return nil, nil, fmt.Errorf("%s declares no methods", c.typ.FQN)
	}
	return c, c.typ.Methods[m.method], nil
}

func (m *interactiveModel) showOriginal() tea.Msg {
	c, meth, err := m.currentMethod()
	if err != nil {
		return listingMsg{err: err}
	}
	listing, err := disassembleMethod(c.data, meth)
	return listingMsg{title: meth.Signature(), listing: listing, err: err}
}

func (m *interactiveModel) showInstrumented() tea.Msg {
	c, meth, err := m.currentMethod()
	if err != nil {
		return listingMsg{err: err}
	}
	id, err := strconv.ParseUint(strings.TrimSpace(m.pointInput.Value()), 10, 64)
	if err != nil {
		return listingMsg{err: fmt.Errorf("sensor id: %w", err)}
	}

	cfg := instrument.Config{
		Class: c.typ.FQN,
		Methods: []instrument.MethodMatch{{
			Name:       meth.Name,
			ReturnType: meth.ReturnType,
			Parameters: meth.Parameters,
			Points:     []instrument.Point{instrument.SensorPoint{ID: id}},
		}},
	}
	res, err := instrument.New(instrument.Options{Dispatcher: m.dispatcher}).Instrument(c.data, []instrument.Config{cfg})
	if err != nil {
		return listingMsg{err: err}
	}
	if !res.Modified {
		return listingMsg{err: fmt.Errorf("%s was not instrumented", meth.Signature())}
	}
	listing, err := disassembleMethod(res.Bytes, meth)
	return listingMsg{title: fmt.Sprintf("%s with sensor %d", meth.Signature(), id), listing: listing, err: err}
}

func disassembleMethod(data []byte, meth *typemodel.Method) (string, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return "", err
	}
	for i := range cf.Methods {
		mem := &cf.Methods[i]
		if cf.MemberName(mem) != meth.Name {
			continue
		}
		params, _, err := classfile.ParseMethodDescriptor(cf.MemberDescriptor(mem))
		if err != nil {
			return "", err
		}
		names := make([]string, len(params))
		for j, p := range params {
			names[j] = p.JavaName()
		}
		if !meth.Matches(meth.Name, names) {
			continue
		}
		if cf.FindAttribute(mem.Attributes, classfile.AttrCode) < 0 {
			return "no code", nil
		}
		code, err := cf.DecodeCode(mem)
		if err != nil {
			return "", err
		}
		return classfile.Disassemble(cf.ConstantPool, code), nil
	}
	return "", fmt.Errorf("method %s not found", meth.Signature())
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowListing {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}

	if !m.loaded {
		return "Loading classes..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Class Instrumenter"))
	b.WriteString(fmt.Sprintf(" %d classes", len(m.classes)))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectClass:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		for i, idx := range m.visible {
			c := m.classes[idx]
			line := fmt.Sprintf("%s %s", typeStyle.Render(c.typ.Kind.String()), classStyle.Render(c.typ.FQN))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + c.typ.Kind.String() + " " + c.typ.FQN))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("type to filter • ↑/↓ select • enter methods • ctrl+c quit"))

	case stateSelectMethod:
		c := m.current()
		b.WriteString(fmt.Sprintf("Methods of %s\n\n", classStyle.Render(c.typ.FQN)))
		for i, meth := range c.typ.Methods {
			if i == m.method {
				b.WriteString(selectedStyle.Render("> " + formatMethodPlain(meth)))
			} else {
				b.WriteString("  " + formatMethod(meth))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter disassemble • s add sensor • esc back • q quit"))

	case stateInputPoint:
		_, meth, _ := m.currentMethod()
		if meth != nil {
			b.WriteString(fmt.Sprintf("Sensor on %s\n\n", formatMethod(meth)))
		}
		b.WriteString(m.pointInput.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter instrument • esc back"))

	case stateShowListing:
		b.WriteString(classStyle.Render(m.title))
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(listingStyle.Render(m.listing))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatMethod(meth *typemodel.Method) string {
	params := make([]string, len(meth.Parameters))
	for i, p := range meth.Parameters {
		params[i] = typeStyle.Render(p)
	}
	return typeStyle.Render(meth.ReturnType) + " " + classStyle.Render(meth.Name) + "(" + strings.Join(params, ", ") + ")"
}

func formatMethodPlain(meth *typemodel.Method) string {
	return meth.ReturnType + " " + meth.Signature()
}

func runInteractive(files []string, dispatcher string) error {
	p := tea.NewProgram(newInteractiveModel(files, dispatcher), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
