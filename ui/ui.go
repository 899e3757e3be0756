// Package ui provides the interactive practice drill. Every key press is a
// user gesture, so the first one unlocks audio for the session.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/orchestrator"
	"github.com/dgnsrekt/cuecast/internal/profile"
	"github.com/dgnsrekt/cuecast/internal/queue"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "stopped"
	ellipsis             = "…"
	volumeStep           = 0.1
)

// Player is the part of the orchestrator the drill drives.
type Player interface {
	UnlockAudio()
	PlayCharacterSound(text string) *queue.Handle
	PrefetchCharacters(tokens []string)
	PlayPraise(cat cue.PraiseCategory) *queue.Handle
	PlayEncouragement() *queue.Handle
	PlaySound(kind cue.ToneKind)
	StopAll() int
	SetVolume(v float64)
	Volume() float64
	Profile() profile.Profile
	Stats() orchestrator.Stats
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, player Player) *tea.Program {
	log.Debug("Starting drill", "tokens", len(cfg.Tokens), "autoplay", cfg.AutoPlay)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, player), opts...)
}

type (
	playbackDoneMsg struct {
		name  string
		state queue.State
	}
	statusMessageTimeoutMsg struct{}
)

type model struct {
	cfg    Config
	player Player

	index    int
	answered map[int]bool
	correct  int
	streak   int

	inFlight int
	status   string
	spinner  spinner.Model
	showHelp bool

	width  int
	height int
}

func newModel(cfg Config, player Player) model {
	if cfg.PrefetchAhead < 0 {
		cfg.PrefetchAhead = 0
	}
	if cfg.ComboStreak <= 0 {
		cfg.ComboStreak = 3
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return model{
		cfg:      cfg,
		player:   player,
		answered: make(map[int]bool),
		spinner:  sp,
	}
}

func (m model) Init() tea.Cmd {
	m.prefetchFrom(0)
	return m.spinner.Tick
}

func (m model) current() string {
	if m.index < 0 || m.index >= len(m.cfg.Tokens) {
		return ""
	}
	return m.cfg.Tokens[m.index]
}

// prefetchFrom warms the tokens starting at i.
func (m model) prefetchFrom(i int) {
	if m.cfg.PrefetchAhead == 0 || i >= len(m.cfg.Tokens) {
		return
	}
	end := min(i+m.cfg.PrefetchAhead, len(m.cfg.Tokens))
	m.player.PrefetchCharacters(m.cfg.Tokens[i:end])
}

func (m *model) track(h *queue.Handle) tea.Cmd {
	m.inFlight++
	return func() tea.Msg {
		<-h.Done()
		return playbackDoneMsg{name: h.Name(), state: h.State()}
	}
}

func (m *model) setStatus(s string) tea.Cmd {
	m.status = s
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}

func (m *model) move(delta int) tea.Cmd {
	next := m.index + delta
	if next < 0 || next >= len(m.cfg.Tokens) {
		m.player.PlaySound(cue.ToneWrong)
		return nil
	}
	m.index = next
	m.player.PlaySound(cue.ToneButton)
	m.prefetchFrom(m.index + 1)
	if m.cfg.AutoPlay {
		return m.track(m.player.PlayCharacterSound(m.current()))
	}
	return nil
}

// praiseCategory picks the praise for the current streak.
func (m model) praiseCategory() cue.PraiseCategory {
	switch {
	case m.correct == len(m.cfg.Tokens) && len(m.answered) == len(m.cfg.Tokens):
		return cue.PraisePerfect
	case m.streak >= m.cfg.ComboStreak:
		return cue.PraiseCombo
	default:
		return cue.PraiseBasic
	}
}

func (m *model) answer(right bool) tea.Cmd {
	if m.current() == "" {
		return nil
	}
	if _, seen := m.answered[m.index]; !seen && right {
		m.correct++
	}
	m.answered[m.index] = right

	if right {
		m.streak++
		m.player.PlaySound(cue.ToneCorrect)
		return m.track(m.player.PlayPraise(m.praiseCategory()))
	}
	m.streak = 0
	m.player.PlaySound(cue.ToneWrong)
	return m.track(m.player.PlayEncouragement())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		m.player.UnlockAudio()

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.player.StopAll()
			return m, tea.Quit
		case " ", "enter":
			if tok := m.current(); tok != "" {
				return m, m.track(m.player.PlayCharacterSound(tok))
			}
		case "right", "l", "n":
			return m, m.move(1)
		case "left", "h", "p":
			return m, m.move(-1)
		case "y":
			return m, m.answer(true)
		case "x":
			return m, m.answer(false)
		case "s":
			n := m.player.StopAll()
			return m, m.setStatus(fmt.Sprintf("stopped %d", n))
		case "+", "=":
			m.player.SetVolume(m.player.Volume() + volumeStep)
			return m, m.setStatus(fmt.Sprintf("volume %d%%", percent(m.player.Volume())))
		case "-":
			m.player.SetVolume(m.player.Volume() - volumeStep)
			return m, m.setStatus(fmt.Sprintf("volume %d%%", percent(m.player.Volume())))
		case "?":
			m.showHelp = !m.showHelp
			m.player.PlaySound(cue.ToneButton)
		}
		return m, nil

	case playbackDoneMsg:
		if m.inFlight > 0 {
			m.inFlight--
		}
		if msg.state == queue.StateFailed {
			return m, m.setStatus("no audio for " + msg.name)
		}
		return m, nil

	case statusMessageTimeoutMsg:
		m.status = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n\n")

	if len(m.cfg.Tokens) == 0 {
		b.WriteString(indent(dimStyle.Render("Nothing to practise."), 2))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(indent(m.cardView(), 2))
	b.WriteString("\n")
	b.WriteString(indent(m.progressView(), 2))
	b.WriteString("\n\n")
	b.WriteString(indent(m.statusView(), 2))
	b.WriteString("\n")
	b.WriteString(m.helpView())
	return b.String()
}

func (m model) cardView() string {
	tok := m.current()
	maxWidth := 24
	if m.width > 10 {
		maxWidth = min(maxWidth, m.width-10)
	}
	tok = runewidth.Truncate(tok, maxWidth, ellipsis)

	style := cardStyle
	if right, ok := m.answered[m.index]; ok {
		if right {
			style = style.BorderForeground(green)
		} else {
			style = style.BorderForeground(red)
		}
	}
	return style.Render(tok)
}

func (m model) progressView() string {
	return dimStyle.Render(fmt.Sprintf("%d/%d  ·  correct %d  ·  streak %d",
		m.index+1, len(m.cfg.Tokens), m.correct, m.streak))
}

func (m model) statusView() string {
	var parts []string
	if m.inFlight > 0 {
		parts = append(parts, m.spinner.View()+" playing")
	}
	if q := m.player.Stats().Queue; q.CurrentSize > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", q.CurrentSize))
	}
	if m.status != "" {
		parts = append(parts, statusStyle.Render(m.status))
	}
	return strings.Join(parts, "  ")
}

func percent(v float64) int {
	return int(v*100 + 0.5)
}

func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}
