// Package shell is the interactive front end: it reads statements and dot
// commands, runs them on a session and prints the results as tables.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aep/docsql/dsql"
	"github.com/aep/docsql/session"
	"github.com/aep/docsql/store"
)

type Options struct {
	// Endpoint is dialed by .connect without an argument.
	Endpoint string
	Dial     func(endpoint string) (store.Client, error)
}

type Shell struct {
	sess *session.Session
	out  io.Writer
	opts Options

	client   store.Client
	endpoint string
}

func New(sess *session.Session, out io.Writer, opts Options) *Shell {
	return &Shell{sess: sess, out: out, opts: opts}
}

// Connect dials endpoint and makes it the session's store. The previous
// store, if any, is closed.
func (sh *Shell) Connect(endpoint string) error {
	if sh.opts.Dial == nil {
		return errors.New("connecting is not supported here")
	}
	if endpoint == "" {
		endpoint = sh.opts.Endpoint
	}
	c, err := sh.opts.Dial(endpoint)
	if err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}
	sh.sess.Conn().Connect(c)
	if sh.client != nil {
		sh.client.Close()
	}
	sh.client = c
	sh.endpoint = endpoint
	slog.Debug("[shell].Connect:", "endpoint", endpoint)
	return nil
}

func (sh *Shell) Disconnect() {
	sh.sess.Conn().Disconnect()
	if sh.client != nil {
		sh.client.Close()
		sh.client = nil
	}
	sh.endpoint = ""
}

func (sh *Shell) Close() {
	sh.Disconnect()
}

func (sh *Shell) prompt() string {
	if !sh.sess.Conn().Connected() {
		return "docsql (disconnected)> "
	}
	return "docsql> "
}

// Exec runs one statement or dot command. It returns false once the user
// asked to leave.
func (sh *Shell) Exec(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return true
	}
	if !strings.HasPrefix(input, ".") {
		res := sh.sess.Submit(ctx, strings.TrimSuffix(input, ";"))
		Render(sh.out, res, sh.sess.Page())
		return true
	}

	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch name {
	case ".exit", ".quit":
		return false
	case ".help":
		sh.help()
	case ".next":
		sh.page(sh.sess.Next(ctx))
	case ".prev":
		sh.page(sh.sess.Prev(ctx))
	case ".edit":
		err = sh.edit(ctx, rest)
	case ".insert":
		err = sh.insert(ctx, rest)
	case ".history":
		renderHistory(sh.out, sh.sess.History().Items())
	case ".export":
		err = sh.export(rest)
	case ".connect":
		if err = sh.Connect(rest); err == nil {
			fmt.Fprintf(sh.out, "Connected to %s\n", sh.endpoint)
		}
	case ".disconnect":
		sh.Disconnect()
		fmt.Fprintln(sh.out, "Disconnected")
	default:
		err = fmt.Errorf("unknown command %s, try .help", name)
	}

	if err != nil {
		Render(sh.out, dsql.ErrorResult(err.Error()), 0)
	}
	return true
}

func (sh *Shell) page(res *dsql.Result, ok bool) {
	if !ok {
		if res != nil && res.Type == dsql.ResultError {
			Render(sh.out, res, 0)
			return
		}
		fmt.Fprintln(sh.out, "No page there.")
		return
	}
	Render(sh.out, res, sh.sess.Page())
}

// .edit <id> <field> [mode] <value>
func (sh *Shell) edit(ctx context.Context, args string) error {
	id, args, _ := strings.Cut(args, " ")
	field, args, _ := strings.Cut(strings.TrimSpace(args), " ")
	args = strings.TrimSpace(args)
	if id == "" || field == "" {
		return errors.New("usage: .edit <id> <field> [string|number|boolean|json|null] <value>")
	}

	ed := sh.sess.NewCellEditor()
	if err := ed.Begin(sh.sess.Result(), id, field); err != nil {
		return err
	}

	first, value, _ := strings.Cut(args, " ")
	if mode, err := dsql.ParseEditMode(first); err == nil && (value != "" || mode == dsql.EditNull) {
		ed.SetMode(mode)
		args = strings.TrimSpace(value)
	}
	ed.SetRaw(args)

	if err := ed.Save(ctx); err != nil {
		return err
	}
	Render(sh.out, sh.sess.Result(), sh.sess.Page())
	return nil
}

// .insert {json}
func (sh *Shell) insert(ctx context.Context, args string) error {
	dec := json.NewDecoder(strings.NewReader(args))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("usage: .insert {\"field\": value, ...}: %w", err)
	}

	id, err := sh.sess.InsertRow(ctx, fields)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Inserted %s\n", id)
	Render(sh.out, sh.sess.Result(), sh.sess.Page())
	return nil
}

// .export csv|json|yaml [file]
func (sh *Shell) export(args string) error {
	format, path, _ := strings.Cut(args, " ")
	path = strings.TrimSpace(path)
	if format == "" {
		format = string(FormatCSV)
	}

	if path == "" {
		return Export(sh.out, sh.sess.Result(), Format(format))
	}

	var buf bytes.Buffer
	if err := Export(&buf, sh.sess.Result(), Format(format)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Wrote %s\n", path)
	return nil
}

func (sh *Shell) help() {
	fmt.Fprintln(sh.out, "Statements:")
	fmt.Fprintln(sh.out, "  SELECT * FROM <collection> [WHERE <field> <op> <value>]")
	fmt.Fprintln(sh.out, "  INSERT INTO <collection> JSON {...}")
	fmt.Fprintln(sh.out, "  UPDATE <collection> SET JSON {...} WHERE id = <id>")
	fmt.Fprintln(sh.out, "  DELETE FROM <collection> WHERE id = <id>")
	fmt.Fprintln(sh.out, "  operators: = == != < <= > >= array-contains")
	fmt.Fprintln(sh.out)
	fmt.Fprintln(sh.out, "Commands:")
	fmt.Fprintln(sh.out, "  .next                     next page of the current query")
	fmt.Fprintln(sh.out, "  .prev                     previous page")
	fmt.Fprintln(sh.out, "  .edit <id> <field> [mode] <value>")
	fmt.Fprintln(sh.out, "                            change one cell, mode is string|number|boolean|json|null")
	fmt.Fprintln(sh.out, "  .insert {json}            add a document to the current collection")
	fmt.Fprintln(sh.out, "  .history                  statements run so far")
	fmt.Fprintln(sh.out, "  .export [csv|json|yaml] [file]")
	fmt.Fprintln(sh.out, "  .connect [endpoint]       endpoint is a server url or \"local\"")
	fmt.Fprintln(sh.out, "  .disconnect")
	fmt.Fprintln(sh.out, "  .help")
	fmt.Fprintln(sh.out, "  .exit")
}
