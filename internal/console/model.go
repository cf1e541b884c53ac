// Package console is the interactive terminal view of a running pipeline.
package console

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/pkg/version"
)

// RefreshInterval is how often the view re-reads the pipeline counters.
const RefreshInterval = 500 * time.Millisecond

const historyLen = 40

// StatsSource is the read side of the pipeline.
type StatsSource interface {
	Stats() types.Stats
}

type tickMsg time.Time

// pipelineDoneMsg is sent when the pipeline stops on its own.
type pipelineDoneMsg struct{}

// Model is the bubbletea model for the console.
type Model struct {
	source     StatsSource
	done       <-chan struct{}
	listenAddr string
	outputPath string

	stats    types.Stats
	prev     types.Stats
	prevAt   time.Time
	rate     float64
	history  []float64
	width    int
	quitting bool
}

// NewModel builds the console for source. done, when closed, ends the program;
// pass the pipeline's Done channel so a fatal error also closes the console.
func NewModel(source StatsSource, done <-chan struct{}, listenAddr, outputPath string) *Model {
	return &Model{
		source:     source,
		done:       done,
		listenAddr: listenAddr,
		outputPath: outputPath,
		history:    make([]float64, 0, historyLen),
	}
}

func (m *Model) Init() tea.Cmd {
	m.refresh(time.Now())
	return tea.Batch(tickEvery(RefreshInterval), waitDone(m.done))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		m.refresh(time.Time(msg))
		return m, tickEvery(RefreshInterval)

	case pipelineDoneMsg:
		m.refresh(time.Now())
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	s := m.stats
	header := HeaderStyle.Render(fmt.Sprintf("%s  %s", version.GetInfo().Short(), StateBadge(s.State)))

	ingress := panel("Ingress",
		row("listen", m.listenAddr),
		row("packets", formatNumber(s.PacketsReceived)),
		row("bytes", formatBytes(s.BytesReceived)),
		row("rate", fmt.Sprintf("%.0f pkt/s", m.rate)),
		row("truncated", formatNumber(s.PacketsTruncated)),
		row("rate limited", formatNumber(s.PacketsRateLimited)),
		MutedStyle.Render(sparkline(m.history, historyLen)),
	)

	records := panel("Records",
		row("ascii", formatNumber(s.RecordsASCII)),
		row("utf8", formatNumber(s.RecordsUTF8)),
		row("binary", formatNumber(s.RecordsBinary)),
		row("written", formatNumber(s.RecordsWritten)),
		row("file bytes", formatBytes(s.BytesWritten)),
		row("output", m.outputPath),
	)

	queues := panel("Queues",
		row("inbound", fmt.Sprintf("%d/%d", s.InboundDepth, s.InboundCapacity)),
		row("outbound", fmt.Sprintf("%d/%d", s.OutboundDepth, s.OutboundCapacity)),
		row("drop rate", dropRate(s.Dropped(), s.PacketsReceived)),
		row("uptime", s.Uptime(time.Now()).Truncate(time.Second).String()),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top, ingress, records, queues)
	if m.width > 0 && lipgloss.Width(body) > m.width {
		body = lipgloss.JoinVertical(lipgloss.Left, ingress, records, queues)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		MutedStyle.Render("press q to quit"),
	) + "\n"
}

// refresh reads the counters and updates the packet rate.
func (m *Model) refresh(now time.Time) {
	m.prev = m.stats
	m.stats = m.source.Stats()

	if !m.prevAt.IsZero() {
		if dt := now.Sub(m.prevAt).Seconds(); dt > 0 && m.stats.PacketsReceived >= m.prev.PacketsReceived {
			m.rate = float64(m.stats.PacketsReceived-m.prev.PacketsReceived) / dt
		}
		if len(m.history) == historyLen {
			m.history = m.history[1:]
		}
		m.history = append(m.history, m.rate)
	}
	m.prevAt = now
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitDone(done <-chan struct{}) tea.Cmd {
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		<-done
		return pipelineDoneMsg{}
	}
}

func panel(title string, rows ...string) string {
	content := PanelTitleStyle.Render(title) + "\n" + strings.Join(rows, "\n")
	return PanelStyle.Render(content)
}

func row(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}

// sparkline draws data scaled into eight levels across width cells.
func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return strings.Repeat("▁", width)
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	if maxVal == minVal {
		return strings.Repeat("▄", width)
	}

	sparkChars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	var b strings.Builder
	for i := 0; i < width; i++ {
		idx := i * len(data) / width
		normalized := (data[idx] - minVal) / (maxVal - minVal)
		b.WriteRune(sparkChars[min(int(normalized*7), 7)])
	}
	return b.String()
}

func formatNumber(n uint64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	}
	return fmt.Sprintf("%d", n)
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// dropRate colours the share of received packets lost to full queues.
func dropRate(dropped, total uint64) string {
	if total == 0 || dropped == 0 {
		return SuccessStyle.Render("0%")
	}
	pct := float64(dropped) / float64(total) * 100
	switch {
	case pct < 1:
		return ValueStyle.Render(fmt.Sprintf("%.2f%%", pct))
	case pct < 5:
		return WarningStyle.Render(fmt.Sprintf("%.1f%%", pct))
	default:
		return ErrorStyle.Render(fmt.Sprintf("%.1f%%", pct))
	}
}
