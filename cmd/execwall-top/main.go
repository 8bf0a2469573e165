// Command execwall-top is the operator terminal dashboard: it dials
// execwalld's live decision stream and renders allow/monitor/enforce
// rows as they arrive using a Bubble Tea model/update/view loop. On a
// non-terminal (piped output, no tty) it falls back to printing one
// plain line per event instead.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	gws "github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/strongdm/execwall/internal/live"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("execwall-top %s (%s)\n", version, commit)
		return
	}

	var sub string
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		sub = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	var err error
	switch sub {
	case "export":
		err = runExport(os.Args[1:])
	case "", "watch":
		err = runWatch(os.Args[1:])
	default:
		err = fmt.Errorf("execwall-top: unknown subcommand %q (want watch, export)", sub)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("execwall-top watch", flag.ContinueOnError)
	addr := fs.String("addr", "ws://127.0.0.1:7870/ws", "Websocket URL of the execwalld decision stream")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := gws.DefaultDialer.DialContext(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("execwall-top: dial %s: %w", *addr, err)
	}
	defer conn.Close()

	events := make(chan live.LogEntry, 256)
	go readEvents(conn, events)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return watchPlain(ctx, events)
	}
	return watchTUI(ctx, events)
}

// readEvents decodes every websocket text frame as one-or-more NDJSON
// lines (the hub sends a multi-line bulk frame on connect, then one
// line per subsequent frame) and forwards each as a live.LogEntry.
func readEvents(conn *gws.Conn, out chan<- live.LogEntry) {
	defer close(out)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var e live.LogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			if e.Event == "execwall.heartbeat" || e.Event == "execwall.hello" {
				continue
			}
			out <- e
		}
	}
}

func watchPlain(ctx context.Context, events <-chan live.LogEntry) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Println(formatPlainLine(e))
		}
	}
}

func formatPlainLine(e live.LogEntry) string {
	decision := e.Decision
	if decision == "" {
		decision = "-"
	}
	cgid := "-"
	if e.Cgid != nil {
		cgid = strconv.FormatUint(*e.Cgid, 10)
	}
	return fmt.Sprintf("%s %-6s %-7s cgid=%-8s %s", e.Time, e.Mode, decision, cgid, e.Path)
}

func watchTUI(ctx context.Context, events <-chan live.LogEntry) error {
	m := newTopModel()
	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())

	go func() {
		for e := range events {
			prog.Send(rowMsg(e))
		}
		prog.Send(streamClosedMsg{})
	}()

	_, err := prog.Run()
	return err
}

// rowMsg carries one decoded event into the Bubble Tea update loop.
type rowMsg live.LogEntry

type streamClosedMsg struct{}

const maxRows = 200

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	allowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	denyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626"))
	monitorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type topModel struct {
	rows   []live.LogEntry
	closed bool
	width  int
	height int
}

func newTopModel() *topModel {
	return &topModel{}
}

func (m *topModel) Init() tea.Cmd { return nil }

func (m *topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case rowMsg:
		m.rows = append(m.rows, live.LogEntry(msg))
		if len(m.rows) > maxRows {
			m.rows = m.rows[len(m.rows)-maxRows:]
		}
	case streamClosedMsg:
		m.closed = true
	}
	return m, nil
}

func (m *topModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-24s %-8s %-7s %-10s %s", "TIME", "MODE", "DECISION", "CGID", "PATH")))
	b.WriteString("\n")

	visible := m.rows
	capacity := m.height - 3
	if capacity > 0 && len(visible) > capacity {
		visible = visible[len(visible)-capacity:]
	}
	for _, e := range visible {
		b.WriteString(renderRow(e))
		b.WriteString("\n")
	}

	if m.closed {
		b.WriteString(mutedStyle.Render("\n[stream closed, press q to exit]"))
	}
	return b.String()
}

func renderRow(e live.LogEntry) string {
	cgid := "-"
	if e.Cgid != nil {
		cgid = strconv.FormatUint(*e.Cgid, 10)
	}
	style := mutedStyle
	switch e.Decision {
	case "allow":
		style = allowStyle
	case "deny":
		style = denyStyle
	}
	if e.Decision == "" && e.Mode == "monitor" {
		style = monitorStyle
	}
	return style.Render(fmt.Sprintf("%-24s %-8s %-7s %-10s %s", e.Time, e.Mode, displayDecision(e.Decision), cgid, e.Path))
}

func displayDecision(d string) string {
	if d == "" {
		return "-"
	}
	return d
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("execwall-top export", flag.ContinueOnError)
	addr := fs.String("addr", "http://127.0.0.1:7870/api/export", "URL of the execwalld export endpoint")
	out := fs.String("out", "execwall-events.ndjson.zst", "Output file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("execwall-top: %w", err)
	}

	resp, err := http.Get(u.String())
	if err != nil {
		return fmt.Errorf("execwall-top: export request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("execwall-top: export request returned %s", resp.Status)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("execwall-top: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("execwall-top: writing %s: %w", *out, err)
	}
	fmt.Printf("wrote %d bytes to %s\n", n, *out)
	return nil
}
