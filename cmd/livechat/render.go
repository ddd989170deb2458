package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/session"
)

var (
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	selfStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#AFAFAF"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// printer writes timeline additions and connection notices as lines.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	me     string
	styled bool
}

func newPrinter(out io.Writer, me string) *printer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd())
	}
	return &printer{out: out, me: me, styled: styled}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) formatMessage(m chat.Message) string {
	who, style := m.SenderID, peerStyle
	if p.me != "" && m.SenderID == p.me {
		who, style = "you", selfStyle
	}
	return fmt.Sprintf("%s %s: %s",
		p.render(timeStyle, m.CreatedAt.Local().Format("2006-01-02 15:04")),
		p.render(style, who),
		m.Content)
}

func (p *printer) messages(msgs []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		fmt.Fprintln(p.out, p.formatMessage(m))
	}
}

func (p *printer) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.render(noticeStyle, "-- "+fmt.Sprintf(format, args...)))
}

func (p *printer) failure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.render(errorStyle, "!! "+err.Error()))
}

func (p *printer) onTimeline(u session.TimelineUpdate) {
	if u.Source == session.SourceOlder {
		p.notice("%d older messages", len(u.Added))
	}
	p.messages(u.Added)
}

func (p *printer) onState(c chat.StateChange) {
	switch {
	case c.From == c.To && c.Err != nil:
		p.notice("reconnect attempt failed: %v", c.Err)
	case c.Err != nil:
		p.notice("%s (%v)", c.To, c.Err)
	default:
		p.notice("%s", c.To)
	}
}
