// Package interactive provides the interactive console of someipd.
package interactive

import (
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// Terminal is the readline front end of the console.
type Terminal struct {
	rl *readline.Instance
}

// NewTerminal opens the readline terminal.
func NewTerminal() (*Terminal, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "someipd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Terminal{rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (t *Terminal) Stdout() io.Writer {
	return t.rl.Stdout()
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("status"),
	readline.PcItem("services"),
	readline.PcItem("subs"),
	readline.PcItem("routes"),
	readline.PcItem("catalog"),
	readline.PcItem("conns"),
	readline.PcItem("connect"),
	readline.PcItem("disconnect"),
	readline.PcItem("request"),
	readline.PcItem("release"),
	readline.PcItem("subscribe"),
	readline.PcItem("unsubscribe"),
	readline.PcItem("offer"),
	readline.PcItem("stopoffer"),
	readline.PcItem("recv"),
	readline.PcItem("inject",
		readline.PcItem("offer"),
		readline.PcItem("stopoffer"),
		readline.PcItem("ack"),
		readline.PcItem("nack"),
	),
	readline.PcItem("network",
		readline.PcItem("up"),
		readline.PcItem("down"),
	),
	readline.PcItem("quit"),
)
