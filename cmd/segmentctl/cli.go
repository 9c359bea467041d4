package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/veesix-networks/segmentd/pkg/version"
)

type CLI struct {
	client      *Client
	out         io.Writer
	rl          *readline.Instance
	running     bool
	tree        *CommandTree
	currentLine string
}

func NewCLI(client *Client, out io.Writer) *CLI {
	cli := &CLI{
		client:  client,
		out:     out,
		running: true,
		tree:    NewCommandTree(),
	}
	RegisterCommands(cli.tree)
	return cli
}

func (c *CLI) Run() error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:              "segmentd> ",
		HistoryFile:         os.ExpandEnv("$HOME/.segmentctl_history"),
		AutoComplete:        c.buildCompleter(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		FuncFilterInputRune: c.filterInputWithHelp,
		Listener:            c,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer c.rl.Close()

	c.printBanner()

	for c.running {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					break
				}
				continue
			} else if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.processCommand(line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	return nil
}

func (c *CLI) Stop() {
	c.running = false
}

// Exec runs a single command line, as in one-shot mode.
func (c *CLI) Exec(ctx context.Context, line string) error {
	return c.tree.Execute(ctx, c, line)
}

func (c *CLI) printBanner() {
	fmt.Fprintln(c.out, "=====================================")
	fmt.Fprintf(c.out, "    segmentctl %s\n", version.Version)
	fmt.Fprintln(c.out, "=====================================")
	fmt.Fprintf(c.out, "Connected to: %s\n", c.client.BaseURL())
	fmt.Fprintln(c.out, "Type '?' for available commands")
	fmt.Fprintln(c.out, "Type 'exit' or 'quit' to exit")
	fmt.Fprintln(c.out)
}

func (c *CLI) OnChange(line []rune, pos int, key rune) (newLine []rune, newPos int, ok bool) {
	c.currentLine = string(line)
	return nil, 0, false
}

func (c *CLI) filterInputWithHelp(r rune) (rune, bool) {
	if r == '?' {
		fmt.Fprint(c.out, "?\n")
		c.showHelp(c.currentLine)
		c.rl.Write([]byte(c.currentLine))
		return 0, false
	}
	return filterInput(r)
}

func (c *CLI) showHelp(input string) {
	if strings.HasSuffix(input, " ") || input == "" {
		c.tree.ShowHelp(c.out, strings.TrimSpace(input))
		return
	}
	completions := c.tree.GetCompletions(input)
	if len(completions) == 0 {
		c.tree.ShowHelp(c.out, input)
		return
	}
	fmt.Fprintln(c.out)
	for _, comp := range completions {
		fmt.Fprintf(c.out, "  %s\n", comp)
	}
	fmt.Fprintln(c.out)
}

func (c *CLI) processCommand(line string) error {
	if line == "exit" || line == "quit" {
		c.running = false
		return nil
	}

	if strings.HasSuffix(line, "?") {
		c.showHelp(strings.TrimSuffix(line, "?"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return c.Exec(ctx, line)
}
