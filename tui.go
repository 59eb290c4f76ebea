package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wavscribe/log"
)

// TUI message types
type RecordingStartMsg struct{}
type RecordingStopMsg struct{}
type RecordingTickMsg struct{ Duration float64 }
type AudioLevelMsg struct{ Level float64 }
type TranscribingMsg struct{}
type TranscriptionMsg struct {
	Text            string
	ProcessDuration string
	Metrics         []string
	Copied          bool
}
type ErrorMsg struct{ Text string }
type NoVoiceWarningMsg struct{}
type VoiceClearedMsg struct{}
type tickMsg time.Time

type tuiState int

const (
	tuiStateIdle tuiState = iota
	tuiStateRecording
	tuiStateTranscribing
)

type tuiModel struct {
	state             tuiState
	recordingDuration float64
	audioLevel        float64
	peakLevel         float64
	noVoice           bool
	msgCount          int
	width, height     int
	modeLine          string
	deviceLine        string
	lastText          string
	lastDuration      string
	lastMetrics       []string
	copiedToClipboard bool
	lastErr           string

	toggle  chan<- struct{}
	history *history
}

var (
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	modeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	meterStyles  = [3]lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func newTUIModel(toggle chan<- struct{}, h *history, modeLine, deviceLine string) tuiModel {
	return tuiModel{toggle: toggle, history: h, modeLine: modeLine, deviceLine: deviceLine}
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case " ", "enter":
			if m.state == tuiStateTranscribing {
				break
			}
			select {
			case m.toggle <- struct{}{}:
			default:
			}
		}

	case tickMsg:
		return m, tuiTick()

	case RecordingStartMsg:
		m.state = tuiStateRecording
		m.recordingDuration = 0
		m.audioLevel = 0
		m.peakLevel = 0
		m.noVoice = false
		m.lastErr = ""

	case RecordingStopMsg:
		m.state = tuiStateIdle
		m.audioLevel = 0

	case RecordingTickMsg:
		m.recordingDuration = msg.Duration

	case AudioLevelMsg:
		if m.state == tuiStateRecording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			m.peakLevel = max(m.peakLevel, msg.Level)
		}

	case NoVoiceWarningMsg:
		m.noVoice = true

	case VoiceClearedMsg:
		m.noVoice = false

	case TranscribingMsg:
		m.state = tuiStateTranscribing

	case TranscriptionMsg:
		m.state = tuiStateIdle
		m.msgCount++
		m.lastText = msg.Text
		m.lastDuration = msg.ProcessDuration
		m.lastMetrics = msg.Metrics
		m.copiedToClipboard = msg.Copied

	case ErrorMsg:
		m.state = tuiStateIdle
		m.lastErr = msg.Text
	}
	return m, nil
}

// levelMeter draws an RMS level as a bar of width cells. Levels are scaled
// so normal speech (~0.1 RMS) fills about half the bar.
func levelMeter(level float64, width int) string {
	filled := min(int(level*5*float64(width)+0.5), width)
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i >= filled {
			b.WriteString(dimStyle.Render("·"))
			continue
		}
		style := meterStyles[0]
		switch {
		case i >= width*9/10:
			style = meterStyles[2]
		case i >= width*7/10:
			style = meterStyles[1]
		}
		b.WriteString(style.Render("█"))
	}
	return b.String()
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const leftWidth = 40
	var left []string

	switch m.state {
	case tuiStateRecording:
		left = append(left, recStyle.Render(fmt.Sprintf("● REC %.1fs", m.recordingDuration)))
		left = append(left, levelMeter(m.audioLevel, leftWidth-4))
		if m.noVoice || (m.recordingDuration > 1.0 && m.peakLevel < speechLevel) {
			left = append(left, warnStyle.Render("  ⚠ no voice detected"))
		}
	case tuiStateTranscribing:
		left = append(left, busyStyle.Render("◌ TRANSCRIBING"))
	default:
		left = append(left, dimStyle.Render("○ STANDBY"))
	}
	left = append(left, "")

	if m.modeLine != "" {
		left = append(left, modeStyle.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		left = append(left, dimStyle.Render(m.deviceLine))
	}

	if m.history != nil {
		if table := m.history.Table(); table != "" {
			left = append(left, "")
			for _, line := range strings.Split(table, "\n") {
				left = append(left, dimStyle.Render(line))
			}
		}
	}

	left = append(left, "")
	left = append(left, helpKeyStyle.Render("space")+helpStyle.Render(" record/stop  ")+
		helpKeyStyle.Render("q")+helpStyle.Render(" quit"))
	left = append(left, helpStyle.Render("wavscribe "+version))

	rightWidth := max(m.width-leftWidth-1, 20)
	wrapWidth := max(rightWidth-2, 10)

	var right strings.Builder
	if m.lastErr != "" {
		for _, line := range wrapText("Error: "+m.lastErr, wrapWidth) {
			right.WriteString(warnStyle.Render(line) + "\n")
		}
		right.WriteString("\n")
	}
	if m.msgCount > 0 {
		right.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).
			Render(fmt.Sprintf("Last transcription (#%d)", m.msgCount)) + "\n\n")

		text := m.lastText
		if text == "" {
			text = "(empty transcription)"
		}
		lines := wrapText(text, wrapWidth)
		for i, line := range lines {
			right.WriteString(textStyle.Render(line))
			if i == len(lines)-1 && m.copiedToClipboard {
				right.WriteString(" " + okStyle.Render("[✓ copied]"))
			}
			right.WriteString("\n")
		}
		right.WriteString("\n")
		if m.lastDuration != "" {
			right.WriteString(modeStyle.Render("processing time: "+m.lastDuration) + "\n")
		}
		for _, metric := range m.lastMetrics {
			right.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Render(metric) + "\n")
		}
	} else if m.lastErr == "" {
		right.WriteString(dimStyle.Render("No transcriptions yet"))
	}

	leftPanel := lipgloss.NewStyle().
		Width(leftWidth - 1).
		Height(m.height).
		Render(strings.Join(left, "\n"))
	rightPanel := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(right.String())

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// runTUI records on space/enter and transcribes each recording until the
// user quits or ctx ends.
func runTUI(ctx context.Context, a *app, modeLine string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	toggle := make(chan struct{}, 1)
	p := tea.NewProgram(
		newTUIModel(toggle, &a.history, modeLine, deviceLineText(a.deviceName())),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	a.ui = p.Send
	a.out = io.Discard

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-toggle:
			}
			r, err := a.record(ctx, toggle)
			if err != nil {
				log.Errorf("recording error: %v", err)
				continue
			}
			a.finish(ctx, r)
		}
	}()

	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
