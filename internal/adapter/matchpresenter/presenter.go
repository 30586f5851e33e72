// Package matchpresenter turns participant views and match events into text for a terminal.
package matchpresenter

import (
	"io"
	"strings"
	"sync"

	"github.com/park285/cheese-match/internal/participant"
	"github.com/park285/cheese-match/pkg/matchproto"
)

// Presenter writes formatted output without coupling the session to a terminal.
type Presenter struct {
	mu   sync.Mutex
	out  io.Writer
	f    *Formatter
	last string
}

func NewPresenter(out io.Writer, f *Formatter) *Presenter {
	return &Presenter{out: out, f: f}
}

// Render prints the view unless it renders identically to the previous one.
func (p *Presenter) Render(v participant.View) error {
	if p == nil {
		return nil
	}
	text := p.f.View(v)
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == p.last {
		return nil
	}
	p.last = text
	return p.write(text)
}

// Redraw prints the view even if it did not change.
func (p *Presenter) Redraw(v participant.View) error {
	p.mu.Lock()
	p.last = ""
	p.mu.Unlock()
	return p.Render(v)
}

// Notice prints a one-line notice for ev, if it has one.
func (p *Presenter) Notice(ev *matchproto.Event) error {
	if p == nil {
		return nil
	}
	text := p.f.Event(ev)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write("» " + text)
}

func (p *Presenter) Help() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(p.f.Help())
}

func (p *Presenter) write(text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(p.out, text)
	return err
}
