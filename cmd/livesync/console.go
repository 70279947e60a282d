package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/subscription"
)

// defaultShowLimit is the row count shown by "show" without a limit.
const defaultShowLimit = 20

var errManualFailure = errors.New("manual failure")

// Console handles interactive mode.
type Console struct {
	app *App
	rl  *readline.Instance
	out io.Writer
}

// NewConsole creates a readline-backed console for app.
func NewConsole(app *App) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "livesync> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{app: app, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until exit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.exec(line) {
			cancel()
			return
		}
	}
}

// exec runs one command line. It reports whether the console should exit.
func (c *Console) exec(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "st":
		renderStatus(c.out, c.app.Manager().Handles())

	case "show", "s":
		c.cmdShow(args)

	case "emit", "e":
		c.cmdEmit(input)

	case "enrich":
		c.cmdEnrich(input)

	case "fail":
		c.cmdFail(args)

	case "drop":
		c.cmdDrop(args)

	case "reconnect", "rc":
		c.cmdReconnect(args)

	case "close":
		c.cmdClose(args)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
livesync Commands:
  Feeds:
    status                              - Show every subscription
    show <resource> [limit]             - Show table rows
    reconnect <resource>                - Retry a disconnected or failed feed
    close <resource>                    - Unsubscribe a feed

  Memory transport:
    emit <resource> <insert|update|delete> <json>
                                        - Push a change to the feed
    enrich <resource> <key> <json>      - Merge fields into an existing row
    fail <resource>                     - Fail the feed's channel
    drop <resource>                     - Close the feed's channel cleanly

  General:
    help                                - Show this help
    exit                                - Quit`)
}

func (c *Console) cmdShow(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: show <resource> [limit]")
		return
	}
	t, err := c.app.Table(args[0])
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	limit := defaultShowLimit
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			fmt.Fprintf(c.out, "Invalid limit: %s\n", args[1])
			return
		}
		limit = n
	}

	fmt.Fprintf(c.out, "%s (%d rows, %s)\n", t.Resource(), t.Len(), indicatorFor(t.Handle()))
	renderRows(c.out, t.KeyField(), t.Snapshot(), limit)
}

// cmdEmit parses "emit <resource> <kind> <json>". The JSON may contain
// spaces, so it is taken from the raw line.
func (c *Console) cmdEmit(input string) {
	fields, body, ok := splitArgs(input, 3)
	if !ok {
		fmt.Fprintln(c.out, "Usage: emit <resource> <insert|update|delete> <json>")
		return
	}
	hub := c.app.Hub()
	if hub == nil {
		fmt.Fprintln(c.out, "emit requires the memory transport")
		return
	}
	resource := fields[1]
	t, err := c.app.Table(resource)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	kind, err := feed.ParseKind(fields[2])
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	rec, err := feed.DecodeRecord([]byte(body))
	if err != nil {
		fmt.Fprintf(c.out, "Invalid JSON: %v\n", err)
		return
	}

	var ev feed.ChangeEvent
	switch kind {
	case feed.KindCreated:
		ev = feed.Created(resource, rec)
	case feed.KindChanged:
		ev = feed.Changed(resource, oldValueFor(t.KeyField(), rec, t.Get), rec)
	case feed.KindRemoved:
		ev = feed.Removed(resource, rec)
	}

	n, err := hub.Emit(ev)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	fmt.Fprintf(c.out, "Delivered to %d channel(s)\n", n)
}

func (c *Console) cmdEnrich(input string) {
	fields, body, ok := splitArgs(input, 3)
	if !ok {
		fmt.Fprintln(c.out, "Usage: enrich <resource> <key> <json>")
		return
	}
	t, err := c.app.Table(fields[1])
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	rec, err := feed.DecodeRecord([]byte(body))
	if err != nil {
		fmt.Fprintf(c.out, "Invalid JSON: %v\n", err)
		return
	}
	if !t.Enrich(fields[2], rec) {
		fmt.Fprintf(c.out, "No row with %s=%s\n", t.KeyField(), fields[2])
		return
	}
	fmt.Fprintln(c.out, "Row enriched")
}

func (c *Console) cmdFail(args []string) {
	ch := c.channel("fail", args)
	if ch == nil {
		return
	}
	if !ch.Fail(errManualFailure) {
		fmt.Fprintln(c.out, "Channel already closed")
	}
}

func (c *Console) cmdDrop(args []string) {
	ch := c.channel("drop", args)
	if ch == nil {
		return
	}
	if !ch.Drop() {
		fmt.Fprintln(c.out, "Channel already closed")
	}
}

func (c *Console) cmdReconnect(args []string) {
	h := c.handle("reconnect", args)
	if h == nil {
		return
	}
	if err := h.Reconnect(); err != nil {
		fmt.Fprintf(c.out, "Reconnect failed: %v\n", err)
	}
}

func (c *Console) cmdClose(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: close <resource>")
		return
	}
	t, err := c.app.Table(args[0])
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	t.Close()
	fmt.Fprintf(c.out, "Unsubscribed %s\n", args[0])
}

func (c *Console) handle(cmd string, args []string) *subscription.Handle {
	if len(args) < 1 {
		fmt.Fprintf(c.out, "Usage: %s <resource>\n", cmd)
		return nil
	}
	t, err := c.app.Table(args[0])
	if err != nil {
		fmt.Fprintln(c.out, err)
		return nil
	}
	h := t.Handle()
	if h == nil {
		fmt.Fprintf(c.out, "%s is not subscribed\n", args[0])
	}
	return h
}

// channel returns the newest memory channel for the named feed.
func (c *Console) channel(cmd string, args []string) channelControl {
	if c.handle(cmd, args) == nil {
		return nil
	}
	hub := c.app.Hub()
	if hub == nil {
		fmt.Fprintf(c.out, "%s requires the memory transport\n", cmd)
		return nil
	}
	ch := hub.Last(args[0])
	if ch == nil {
		fmt.Fprintf(c.out, "No channel for %s\n", args[0])
		return nil
	}
	return ch
}

// channelControl is the part of a memory channel the console drives.
type channelControl interface {
	Fail(err error) bool
	Drop() bool
}

// splitArgs splits off n leading words and returns the rest of the line.
func splitArgs(input string, n int) (fields []string, rest string, ok bool) {
	rest = strings.TrimSpace(input)
	for i := 0; i < n; i++ {
		word, tail, found := strings.Cut(rest, " ")
		if !found {
			return nil, "", false
		}
		fields = append(fields, word)
		rest = strings.TrimSpace(tail)
	}
	return fields, rest, rest != ""
}

// oldValueFor returns the stored row for rec's key, or a key-only record.
func oldValueFor(keyField string, rec feed.Record, get func(string) (feed.Record, bool)) feed.Record {
	v, ok := rec[keyField]
	if !ok {
		return feed.Record{}
	}
	if old, found := get(feed.FormatValue(v)); found {
		return old
	}
	return feed.Record{keyField: v}
}

func indicatorFor(h *subscription.Handle) string {
	if h == nil {
		return "unsubscribed"
	}
	return h.Indicator()
}
