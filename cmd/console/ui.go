package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/campaign-engine/pkg/engine"
)

const PlaceHolderText = "Type a command, or help..."

// ConsoleUI is the BubbleTea model that runs the GM console.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	env          *engine.Snapshot
	feed         []string
	lastResponse string
	feedViewport viewport.Model
	envViewport  viewport.Model
	input        textinput.Model
	ready        bool
	width        int
	height       int
	loading      bool
	status       string

	showQuitModal bool
}

type commandResultMsg struct {
	input string
	body  []byte
	err   error
}

type environmentMsg struct {
	env *engine.Snapshot
	err error
}

var (
	feedPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2)

	envPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingRight(2).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, env *engine.Snapshot) ConsoleUI {
	ti := textinput.New()
	ti.Placeholder = PlaceHolderText
	ti.Prompt = promptStyle.Render(":: ")
	ti.CharLimit = 200
	ti.Focus()

	feedVp := viewport.New(60, 20)
	feedVp.MouseWheelEnabled = true

	return ConsoleUI{
		config:       cfg,
		client:       client,
		env:          env,
		input:        ti,
		feedViewport: feedVp,
		envViewport:  viewport.New(30, 20),
		feed:         []string{titleStyle.Render("CAMPAIGN ENGINE") + "\n" + promptStyle.Render("Type help for commands.")},
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return textinput.Blink
}

func (m ConsoleUI) layout() (feedWidth, envWidth int) {
	envWidth = 34
	if m.width < 80 {
		envWidth = m.width / 3
	}
	return m.width - envWidth - 4, envWidth
}

func (m *ConsoleUI) resize() {
	feedWidth, envWidth := m.layout()
	m.feedViewport.Width = feedWidth - 2
	m.feedViewport.Height = m.height - 5
	m.envViewport.Width = envWidth - 2
	m.envViewport.Height = m.height - 2
	m.input.Width = feedWidth - 6
}

func (m *ConsoleUI) refreshFeed() {
	m.feedViewport.SetContent(strings.Join(m.feed, "\n\n"))
	m.feedViewport.GotoBottom()
}

func (m *ConsoleUI) appendFeed(block string) {
	m.feed = append(m.feed, block)
	m.refreshFeed()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.feedViewport, vpCmd = m.feedViewport.Update(msg)
		return m, vpCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.refreshFeed()
		m.envViewport.SetContent(writeEnvironment(m.env))

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			if m.lastResponse == "" {
				m.status = "Nothing to copy yet"
			} else if err := clipboard.WriteAll(m.lastResponse); err != nil {
				m.status = "Copy failed: " + err.Error()
			} else {
				m.status = "Copied last response"
			}
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.input.Value())
			if input == "" {
				return m, nil
			}
			m.input.Reset()
			return m.handleInput(input)
		}

	case commandResultMsg:
		m.loading = false
		feedWidth, _ := m.layout()
		if msg.err != nil {
			m.status = ""
			m.appendFeed(errorStyle.Render(wordwrap.String("Error: "+msg.err.Error(), feedWidth-4)))
			return m, nil
		}
		m.lastResponse = indentJSON(msg.body)
		m.status = ""
		m.appendFeed(renderResponse(msg.body, feedWidth-4))
		return m, m.refreshEnvironment()

	case environmentMsg:
		if msg.err == nil && msg.env != nil {
			m.env = msg.env
			m.envViewport.SetContent(writeEnvironment(m.env))
		}
	}

	m.input, tiCmd = m.input.Update(msg)
	m.feedViewport, vpCmd = m.feedViewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m ConsoleUI) handleInput(input string) (tea.Model, tea.Cmd) {
	m.appendFeed(commandStyle.Render("> " + input))

	switch strings.ToLower(input) {
	case "help", "?":
		m.appendFeed(helpText)
		return m, nil
	case "quit", "exit":
		m.showQuitModal = true
		return m, nil
	case "clear":
		m.feed = m.feed[:0]
		m.refreshFeed()
		return m, nil
	}

	cmd, err := parseCommand(input)
	if err != nil {
		m.appendFeed(errorStyle.Render(err.Error()))
		return m, nil
	}
	m.loading = true
	m.status = "Working..."
	return m, m.sendCommand(input, cmd)
}

func (m ConsoleUI) sendCommand(input string, cmd *apiCommand) tea.Cmd {
	return func() tea.Msg {
		body, err := doCommand(m.client, m.config.APIBaseURL, m.config.CampaignID, cmd)
		return commandResultMsg{input: input, body: body, err: err}
	}
}

func (m ConsoleUI) refreshEnvironment() tea.Cmd {
	return func() tea.Msg {
		env, err := getEnvironment(m.client, m.config.APIBaseURL, m.config.CampaignID)
		return environmentMsg{env, err}
	}
}

// renderResponse formats an outcome as an event feed and anything else as
// indented JSON.
func renderResponse(body []byte, width int) string {
	if width < 20 {
		width = 20
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err == nil {
		if _, ok := probe["events"]; ok {
			var out engine.CombatOutcome
			if err := json.Unmarshal(body, &out); err == nil {
				return renderOutcome(&out, width)
			}
		}
	}
	return wordwrap.String(indentJSON(body), width)
}

func renderOutcome(out *engine.CombatOutcome, width int) string {
	var b strings.Builder
	if out.Environment != nil && out.Environment.EnvironmentState != nil {
		b.WriteString(labelStyle.Render(out.Environment.Time().String()) + " " + out.Environment.TimeOfDay + "\n")
	}
	if len(out.Events) == 0 && len(out.Fired) == 0 && len(out.Notifications) == 0 {
		b.WriteString(promptStyle.Render("No events."))
	}
	for _, ev := range out.Events {
		b.WriteString(eventStyle.Render(wordwrap.String("• "+ev.Message, width)) + "\n")
	}
	if out.Encounter != nil {
		b.WriteString(noticeStyle.Render("Encounter: "+out.Encounter.Name) + "\n")
	}
	for _, f := range out.Fired {
		line := fmt.Sprintf("Rule %s (%s)", f.RuleName, f.Mode)
		if f.BatchID != "" {
			line += " batch " + f.BatchID
		}
		b.WriteString(labelStyle.Render(wordwrap.String(line, width)) + "\n")
	}
	for _, n := range out.Notifications {
		b.WriteString(noticeStyle.Render(wordwrap.String(fmt.Sprintf("[%d] %s: %s", n.ID, n.Title, n.Message), width)) + "\n")
	}
	if out.Combat != nil {
		status := fmt.Sprintf("Combat round %d", out.Combat.Round)
		if c, ok := out.Combat.Current(); ok {
			status += ", turn: " + combatantName(c.Name, c.CharacterID)
		}
		if out.RoundAdvanced {
			status += " (new round)"
		}
		b.WriteString(labelStyle.Render(status) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeEnvironment(env *engine.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ENVIRONMENT") + "\n\n")
	if env == nil || env.EnvironmentState == nil {
		b.WriteString("No environment loaded\n")
		return b.String()
	}

	b.WriteString(labelStyle.Render("Date") + "\n")
	date := fmt.Sprintf("Year %d, day %d", env.Year, env.Day)
	if env.MonthName != "" {
		date += " of " + env.MonthName
	} else {
		date += fmt.Sprintf(" of month %d", env.Month)
	}
	b.WriteString(date + "\n")
	if env.Weekday != "" {
		b.WriteString(env.Weekday + "\n")
	}
	b.WriteString(fmt.Sprintf("%02d:%02d %s\n\n", env.Hour, env.Minute, env.TimeOfDay))

	b.WriteString(labelStyle.Render("Season") + "\n" + env.Season + "\n\n")
	b.WriteString(labelStyle.Render("Weather") + "\n" + env.Weather + "\n\n")

	b.WriteString(labelStyle.Render("Position") + "\n")
	switch {
	case env.CurrentLocationID != nil:
		b.WriteString(fmt.Sprintf("Location %d\n\n", *env.CurrentLocationID))
	case env.CurrentEdgeID != nil:
		b.WriteString(fmt.Sprintf("Edge %d, %.0f%%\n\n", *env.CurrentEdgeID, env.EdgeProgress*100))
	default:
		b.WriteString("Unknown\n\n")
	}

	if env.ActiveEncounterID != nil {
		b.WriteString(noticeStyle.Render(fmt.Sprintf("Encounter %d active", *env.ActiveEncounterID)) + "\n\n")
	}

	if env.Combat != nil && env.Combat.Active {
		b.WriteString(labelStyle.Render(fmt.Sprintf("Combat, round %d", env.Combat.Round)) + "\n")
		for i, c := range env.Combat.Combatants {
			marker := "  "
			if i == env.Combat.TurnIndex {
				marker = "▶ "
			}
			b.WriteString(fmt.Sprintf("%s%s (%d)\n", marker, combatantName(c.Name, c.CharacterID), c.Initiative))
		}
	}
	return b.String()
}

func combatantName(name string, id int64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

func indentJSON(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.input.Focus()
				return m, textinput.Blink
			}
		}
	}
	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Console?"))
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	feedWidth, envWidth := m.layout()

	status := m.status
	if status == "" {
		status = fmt.Sprintf("campaign %d", m.config.CampaignID)
	}

	feedPanel := feedPanelStyle.Width(feedWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.feedViewport.View(),
			promptStyle.Render(strings.Repeat("─", max(feedWidth-4, 1))),
			m.input.View(),
			promptStyle.Render(status),
		),
	)
	envPanel := envPanelStyle.Width(envWidth).Height(m.height - 2).Render(m.envViewport.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, feedPanel, envPanel)
}
