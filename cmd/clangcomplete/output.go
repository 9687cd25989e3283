package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/dshills/clangcomplete/internal/completer"
)

// printer writes command results, colored when enabled.
type printer struct {
	out io.Writer
	err io.Writer

	location *color.Color
	errorTag *color.Color
	warnTag  *color.Color
	infoTag  *color.Color
	kind     *color.Color
	notice   *color.Color
}

func newPrinter(opts *globalOptions) (*printer, error) {
	enabled, err := useColor(opts.color, opts.stdout)
	if err != nil {
		return nil, err
	}

	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}

	return &printer{
		out:      opts.stdout,
		err:      opts.stderr,
		location: mk(color.Bold),
		errorTag: mk(color.FgRed, color.Bold),
		warnTag:  mk(color.FgYellow, color.Bold),
		infoTag:  mk(color.FgCyan),
		kind:     mk(color.FgBlue),
		notice:   mk(color.FgYellow),
	}, nil
}

// useColor resolves the --color mode; auto colors terminals only.
func useColor(mode string, out io.Writer) (bool, error) {
	switch mode {
	case "on", "always":
		return true, nil
	case "off", "never":
		return false, nil
	case "auto", "":
		f, ok := out.(*os.File)
		return ok && isTerminal(f), nil
	default:
		return false, fmt.Errorf("invalid --color %q (must be auto, on or off)", mode)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// diagnostic prints file:line:col: type: text.
func (p *printer) diagnostic(name string, v completer.DiagnosticView) {
	loc := p.location.Sprintf("%s:%d:%d:", name, v.Line, v.Column)
	fmt.Fprintf(p.out, "%s %s %s\n", loc, p.tag(v.Type).Sprint(v.Type+":"), v.Text)
}

func (p *printer) tag(t string) *color.Color {
	switch t {
	case "E":
		return p.errorTag
	case "W":
		return p.warnTag
	default:
		return p.infoTag
	}
}

// completion prints word, kind and menu text separated by tabs.
func (p *printer) completion(item completer.CompletionItem) {
	kind := item.Kind
	if kind == "" {
		kind = "-"
	}
	fmt.Fprintf(p.out, "%s\t%s\t%s\n", item.Word, p.kind.Sprint(kind), item.Menu)
}

func (p *printer) line(s string) {
	fmt.Fprintln(p.out, s)
}

// notices prints host messages to stderr.
func (p *printer) notices(msgs []string) {
	for _, m := range msgs {
		fmt.Fprintln(p.err, p.notice.Sprint(m))
	}
}
