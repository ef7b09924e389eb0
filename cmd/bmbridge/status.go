package main

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/bmbridge/bmbridge/internal/core"
	"github.com/bmbridge/bmbridge/internal/state"
)

var statusWatch bool

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "show the current session and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBridge(ctx, cfgFile)
			if err != nil {
				return err
			}
			if !statusWatch {
				printStatusLine(cmd.OutOrStdout(), b)
				return nil
			}
			_, err = tea.NewProgram(newStatusModel(b)).Run()
			return err
		},
	}
	cmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "render a live-updating status dashboard")
	return cmd
}

func printStatusLine(w io.Writer, b *core.Bridge) {
	sess := b.SessionSummary()
	fmt.Fprintf(w, "status:   %s\n", sess.Status)
	fmt.Fprintf(w, "profile:  %s\n", sess.ActiveClientID)
	fmt.Fprintf(w, "queue:    %d\n", b.QueueDepth())
	if sess.LastError != "" {
		fmt.Fprintf(w, "error:    %s\n", sess.LastError)
	}
}

var (
	statusLabelStyle = lipgloss.NewStyle().Bold(true).Width(10)
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type tickMsg time.Time

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// statusModel polls the bridge's in-memory state on a fixed interval
// rather than subscribing to change events: the bridge exposes no push
// channel for session/queue changes, only point-in-time snapshots.
type statusModel struct {
	bridge *core.Bridge
	sess   state.Session
}

func newStatusModel(b *core.Bridge) *statusModel {
	return &statusModel{bridge: b, sess: b.SessionSummary()}
}

func (m *statusModel) Init() tea.Cmd {
	return tickEvery(time.Second)
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.sess = m.bridge.SessionSummary()
		return m, tickEvery(time.Second)
	}
	return m, nil
}

func (m *statusModel) View() string {
	statusStyle := statusOKStyle
	switch m.sess.Status {
	case state.StatusConnecting, state.StatusReconnecting:
		statusStyle = statusWarnStyle
	case state.StatusDisconnected:
		statusStyle = statusErrStyle
	}

	lines := []string{
		statusLabelStyle.Render("status") + statusStyle.Render(string(m.sess.Status)),
		statusLabelStyle.Render("profile") + m.sess.ActiveClientID,
		statusLabelStyle.Render("queue") + fmt.Sprintf("%d outbound / %d inbound", m.sess.QueuedOutbound, m.sess.QueuedInbound),
		statusLabelStyle.Render("attempt") + fmt.Sprintf("%d", m.sess.ReconnectAttempt),
	}
	if m.sess.LastError != "" {
		lines = append(lines, statusLabelStyle.Render("error")+statusErrStyle.Render(m.sess.LastError))
	}
	lines = append(lines, "", "press q to quit")
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
