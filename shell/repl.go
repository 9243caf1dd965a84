package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aep/docsql/dsql"
	"github.com/peterh/liner"
)

// lineBuffer collects input lines until they form a statement: a dot
// command, a line ending in ';', a blank line after some input, or text that
// already parses.
type lineBuffer struct {
	lines []string
}

func (b *lineBuffer) empty() bool {
	return len(b.lines) == 0
}

func (b *lineBuffer) reset() {
	b.lines = nil
}

func (b *lineBuffer) feed(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)

	if b.empty() {
		if trimmed == "" {
			return "", false
		}
		if strings.HasPrefix(trimmed, ".") {
			return trimmed, true
		}
	}

	if trimmed == "" {
		return b.flush(), true
	}

	b.lines = append(b.lines, line)
	if strings.HasSuffix(trimmed, ";") {
		return b.flush(), true
	}
	if _, err := dsql.Parse(strings.Join(b.lines, "\n")); err == nil {
		return b.flush(), true
	}
	return "", false
}

func (b *lineBuffer) flush() string {
	stmt := strings.TrimSpace(strings.Join(b.lines, "\n"))
	b.reset()
	return strings.TrimSuffix(stmt, ";")
}

var dotCommands = []string{
	".next", ".prev", ".edit", ".insert", ".history", ".export",
	".connect", ".disconnect", ".help", ".exit",
}

// Run reads from the terminal until .exit or end of input.
func (sh *Shell) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string {
		var out []string
		for _, c := range dotCommands {
			if strings.HasPrefix(c, in) {
				out = append(out, c)
			}
		}
		return out
	})
	for _, item := range sh.sess.History().Items() {
		line.AppendHistory(item.Query)
	}

	fmt.Fprintln(sh.out, "docsql shell. Type .help for commands.")

	var buf lineBuffer
	for {
		prompt := sh.prompt()
		if !buf.empty() {
			prompt = strings.Repeat(" ", len(prompt)-5) + "...> "
		}

		in, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			buf.reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(sh.out)
			return nil
		}
		if err != nil {
			return err
		}

		stmt, ok := buf.feed(in)
		if !ok {
			continue
		}
		line.AppendHistory(stmt)
		if !sh.Exec(ctx, stmt) {
			return nil
		}
	}
}
