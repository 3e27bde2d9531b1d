package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// PlainIO implements IO using plain line-oriented output. It is used when
// stdout is not a terminal.
type PlainIO struct {
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer
	mu      sync.Mutex
}

// NewPlainIO creates a PlainIO on stdin/stdout.
func NewPlainIO() *PlainIO {
	return newPlainIO(os.Stdin, os.Stdout, os.Stderr)
}

func newPlainIO(in io.Reader, out, errOut io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errOut: errOut}
}

func (p *PlainIO) ReadInput() (string, error) {
	p.print("\n> ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) Welcome(info WelcomeInfo) {
	p.print(fmt.Sprintf("vesselcheck %s  provider=%s model=%s session=%s\n",
		versionOrDev(info.Version), info.Provider, info.Model, info.SessionID))
	if info.Progress != "" {
		p.print(info.Progress + "\n")
	}
}

func (p *PlainIO) ThinkingStart() {
	p.print("\n")
}

func (p *PlainIO) Assistant(text string) {
	p.print(text + "\n")
}

func (p *PlainIO) StatusUpdate(text string) {
	p.print("\n" + strings.Repeat("-", 30) + "\n" + text + "\n")
}

func (p *PlainIO) SystemMessage(text string) {
	p.print(text + "\n")
}

func (p *PlainIO) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

func (p *PlainIO) print(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, s)
}

func versionOrDev(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}
