package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/kballard/go-shellquote"
	"github.com/mattn/go-isatty"
)

// Pager shows a document through an external pager program when output goes
// to a terminal, and writes it straight through otherwise.
type Pager struct {
	Command string    // e.g. "less -R"; empty writes straight through
	Out     io.Writer // defaults to os.Stdout
	Err     io.Writer // defaults to os.Stderr
}

// Page displays data.
func (p *Pager) Page(ctx context.Context, data []byte) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	errOut := p.Err
	if errOut == nil {
		errOut = os.Stderr
	}

	if p.Command == "" || !isTerminal(out) {
		_, err := out.Write(data)
		return err
	}

	args, err := shellquote.Split(p.Command)
	if err != nil || len(args) == 0 {
		return fmt.Errorf("invalid pager command %q: %v", p.Command, err)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = out
	cmd.Stderr = errOut
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			_, werr := out.Write(data)
			return werr
		}
		return fmt.Errorf("pager %s: %w", args[0], err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
