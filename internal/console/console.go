package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hupe1980/miniclaw/agent"
	"github.com/hupe1980/miniclaw/logging"
)

// Banner is printed on start and by /help.
const Banner = `
╔══════════════════════════════════════════╗
║              🦀 MiniClaw                 ║
║      Educational Sandbox Assistant       ║
╚══════════════════════════════════════════╝

Commands:
  /exit, /quit  - Exit the CLI
  /reset        - Reset session (new chat id)
  /help         - Show this help

Type your message and press Enter.
`

const rule = "────────────────────────────────────────"

// Chatter is the conversational backend driven by the console.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string) (*agent.Result, error)
	Reset(sessionID string) error
}

// Options configures a Console.
type Options struct {
	In     io.Reader
	Out    io.Writer
	Logger logging.Logger
	// ChatID seeds the first session; a fresh id is generated when empty.
	ChatID string
}

// Console is a line based chat loop bound to one Chatter.
type Console struct {
	chat   Chatter
	in     io.Reader
	out    io.Writer
	logger logging.Logger
	chatID string
}

// New creates a Console reading stdin and writing stdout by default.
func New(chat Chatter, optFns ...func(o *Options)) *Console {
	opts := Options{
		In:     os.Stdin,
		Out:    os.Stdout,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ChatID == "" {
		opts.ChatID = NewChatID()
	}

	return &Console{
		chat:   chat,
		in:     opts.In,
		out:    opts.Out,
		logger: opts.Logger,
		chatID: opts.ChatID,
	}
}

// NewChatID returns a session id of the form "cli-" followed by 8 hex digits.
func NewChatID() string {
	id := uuid.New()
	return fmt.Sprintf("cli-%x", id[:4])
}

// ChatID returns the current session id.
func (c *Console) ChatID() string { return c.chatID }

// Run starts the REPL and returns when the user exits, input ends or ctx is
// cancelled. Cancellation takes effect while waiting at the prompt. Turn
// failures are printed and the loop continues.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprint(c.out, Banner)
	fmt.Fprintf(c.out, "Session: %s\n\n", c.chatID)
	c.logger.Info("console.session.start", "chat_id", c.chatID)

	done := make(chan struct{})
	defer close(done)

	lines, scanErr := readLines(c.in, done)

	for {
		if ctx.Err() != nil {
			return c.interrupted()
		}

		fmt.Fprint(c.out, "you> ")

		var (
			line string
			ok   bool
		)

		select {
		case <-ctx.Done():
			return c.interrupted()
		case line, ok = <-lines:
		}

		if !ok {
			fmt.Fprintln(c.out, "\n👋 Goodbye!")
			return <-scanErr
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if isCommand(input) {
			if !c.handleCommand(input) {
				return nil
			}
			continue
		}

		c.Send(ctx, input)
	}
}

// readLines scans r on its own goroutine so the caller can select on
// cancellation. lines is closed at end of input, after the scan error has
// been sent on errc. The goroutine stops handing out lines once done is
// closed; a read already blocked in r ends only with the input.
func readLines(r io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}

		errc <- scanner.Err()
	}()

	return lines, errc
}

func (c *Console) interrupted() error {
	fmt.Fprintln(c.out, "\n⚡ Interrupted")
	fmt.Fprintln(c.out, "👋 Goodbye!")
	c.logger.Info("console.session.interrupt", "chat_id", c.chatID)

	return nil
}

// Send processes one message and prints the reply. It reports whether the
// turn succeeded.
func (c *Console) Send(ctx context.Context, message string) bool {
	res, err := c.chat.Chat(ctx, c.chatID, message)
	if err != nil {
		fmt.Fprintf(c.out, "\n❌ Error: %v\n", err)
		c.logger.Error("console.turn.error", "chat_id", c.chatID, "error", err)
		return false
	}

	fmt.Fprintln(c.out, FormatResponse(res))
	c.logger.Info("console.turn.done", "chat_id", c.chatID, "stop_reason", res.StopReason.String(), "turns", res.Turns)

	return true
}

// FormatResponse renders a result between rules, with a warning line for
// runs that did not complete.
func FormatResponse(res *agent.Result) string {
	lines := []string{"\n" + rule, res.Response, rule}

	if res.Partial() {
		lines = append(lines, fmt.Sprintf("⚠ Stopped: %s (turns: %d)", res.StopReason, res.Turns))
	}

	return strings.Join(lines, "\n")
}

func isCommand(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(input, "/") || lower == "exit" || lower == "quit"
}

// handleCommand returns false when the console should exit. Unknown commands
// are ignored.
func (c *Console) handleCommand(command string) bool {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/exit", "/quit", "exit", "quit":
		fmt.Fprintln(c.out, "\n👋 Goodbye!")
		c.logger.Info("console.session.end", "chat_id", c.chatID)
		return false
	case "/reset":
		c.reset()
	case "/help":
		fmt.Fprint(c.out, Banner)
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (try /help)\n", command)
	}

	return true
}

func (c *Console) reset() {
	old := c.chatID

	if err := c.chat.Reset(old); err != nil {
		c.logger.Warn("console.session.reset.error", "chat_id", old, "error", err)
	}

	c.chatID = NewChatID()
	c.logger.Info("console.session.reset", "old_chat_id", old, "chat_id", c.chatID)
	fmt.Fprintf(c.out, "\n✓ Session reset. New chat id: %s\n", c.chatID)
}
