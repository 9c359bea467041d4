package main

import (
	"context"
	"fmt"
	"io"
	"strings"
)

type CommandHandler func(ctx context.Context, cli *CLI, args *Args) error

type ArgumentType int

const (
	// ArgKeyword is an optional name followed by one of Values.
	ArgKeyword ArgumentType = iota
	// ArgUserInput is a required positional value.
	ArgUserInput
	// ArgKeywordWithValue is an optional name followed by a free value.
	ArgKeywordWithValue
)

type Argument struct {
	Name        string
	Description string
	Type        ArgumentType
	Values      []string
	Required    bool
}

// Args is a parsed command line: positional values in declaration order,
// keyword options by name, and the output format selected with "| json" or
// "| yaml".
type Args struct {
	Positional []string
	Options    map[string]string
	Format     OutputFormat
}

func (a *Args) Option(name string) (string, bool) {
	v, ok := a.Options[name]
	return v, ok
}

type CommandNode struct {
	Name        string
	Description string
	Handler     CommandHandler
	Children    []*CommandNode
	Arguments   []*Argument
}

type CommandTree struct {
	root *CommandNode
}

func NewCommandTree() *CommandTree {
	return &CommandTree{
		root: &CommandNode{
			Name:     "root",
			Children: make([]*CommandNode, 0),
		},
	}
}

func (t *CommandTree) AddRoot(path []string, description string) {
	current := t.root
	for _, part := range path {
		current = current.child(part, true)
	}
	if current.Description == "" {
		current.Description = description
	}
}

func (t *CommandTree) AddCommand(path []string, description string, handler CommandHandler, args ...*Argument) {
	current := t.root
	for _, part := range path {
		current = current.child(part, true)
	}
	current.Description = description
	current.Handler = handler
	current.Arguments = args
}

func (n *CommandNode) child(name string, create bool) *CommandNode {
	for _, child := range n.Children {
		if child.Name == name {
			return child
		}
	}
	if !create {
		return nil
	}
	node := &CommandNode{Name: name, Children: make([]*CommandNode, 0)}
	n.Children = append(n.Children, node)
	return node
}

// walk follows tokens down the tree and returns the deepest node reached
// and the number of tokens consumed.
func (t *CommandTree) walk(tokens []string) (*CommandNode, int) {
	current := t.root
	depth := 0
	for _, token := range tokens {
		next := current.child(token, false)
		if next == nil {
			break
		}
		current = next
		depth++
	}
	return current, depth
}

func (t *CommandTree) Execute(ctx context.Context, cli *CLI, input string) error {
	tokens := strings.Fields(input)
	if len(tokens) == 0 {
		return nil
	}

	node, depth := t.walk(tokens)
	if node.Handler == nil {
		if depth == len(tokens) && depth > 0 {
			return fmt.Errorf("incomplete command")
		}
		return fmt.Errorf("unrecognized command")
	}

	args, err := parseArguments(node, tokens[depth:])
	if err != nil {
		return err
	}
	return node.Handler(ctx, cli, args)
}

func parseArguments(cmd *CommandNode, tokens []string) (*Args, error) {
	args := &Args{Options: make(map[string]string), Format: FormatCLI}

	if i := indexOf(tokens, "|"); i >= 0 {
		if i+1 >= len(tokens) {
			return nil, fmt.Errorf("output format required after |")
		}
		format, err := ParseOutputFormat(tokens[i+1])
		if err != nil {
			return nil, err
		}
		args.Format = format
		tokens = tokens[:i]
	}

	var positional []*Argument
	keywords := make(map[string]*Argument)
	for _, arg := range cmd.Arguments {
		if arg.Type == ArgUserInput {
			positional = append(positional, arg)
		} else {
			keywords[arg.Name] = arg
		}
	}

	if len(tokens) < len(positional) {
		names := make([]string, 0, len(positional))
		for _, arg := range positional[len(tokens):] {
			names = append(names, "<"+arg.Name+">")
		}
		if len(names) == 1 {
			return nil, fmt.Errorf("%s required", names[0])
		}
		return nil, fmt.Errorf("missing required arguments: %s", strings.Join(names, ", "))
	}
	args.Positional = tokens[:len(positional)]

	rest := tokens[len(positional):]
	for i := 0; i < len(rest); i += 2 {
		arg, ok := keywords[rest[i]]
		if !ok {
			return nil, fmt.Errorf("unknown argument: %s", rest[i])
		}
		if i+1 >= len(rest) {
			return nil, fmt.Errorf("missing value for %s", rest[i])
		}
		value := rest[i+1]
		if arg.Type == ArgKeyword && len(arg.Values) > 0 && indexOf(arg.Values, value) < 0 {
			return nil, fmt.Errorf("invalid %s %q, expected one of: %s", arg.Name, value, strings.Join(arg.Values, ", "))
		}
		args.Options[arg.Name] = value
	}

	for name, arg := range keywords {
		if _, ok := args.Options[name]; arg.Required && !ok {
			return nil, fmt.Errorf("%s required", name)
		}
	}

	return args, nil
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}

func (t *CommandTree) GetCompletions(input string) []string {
	tokens := strings.Fields(input)
	endsWithSpace := len(input) > 0 && input[len(input)-1] == ' '

	complete := tokens
	prefix := ""
	if !endsWithSpace && len(tokens) > 0 {
		complete = tokens[:len(tokens)-1]
		prefix = tokens[len(tokens)-1]
	}

	node, depth := t.walk(complete)
	if depth < len(complete) && node.Handler == nil {
		return nil
	}

	var completions []string
	if depth == len(complete) {
		for _, child := range node.Children {
			if strings.HasPrefix(child.Name, prefix) {
				completions = append(completions, child.Name)
			}
		}
	}

	if node.Handler == nil || len(node.Arguments) == 0 {
		return completions
	}

	argTokens := complete[depth:]
	positional := 0
	for _, arg := range node.Arguments {
		if arg.Type == ArgUserInput {
			positional++
		}
	}
	if len(argTokens) < positional {
		return completions
	}

	kv := argTokens[positional:]
	if len(kv)%2 == 1 {
		last := kv[len(kv)-1]
		for _, arg := range node.Arguments {
			if arg.Name == last && arg.Type == ArgKeyword {
				for _, v := range arg.Values {
					if strings.HasPrefix(v, prefix) {
						completions = append(completions, v)
					}
				}
			}
		}
		return completions
	}

	used := make(map[string]bool)
	for i := 0; i < len(kv); i += 2 {
		used[kv[i]] = true
	}
	for _, arg := range node.Arguments {
		if arg.Type != ArgUserInput && !used[arg.Name] && strings.HasPrefix(arg.Name, prefix) {
			completions = append(completions, arg.Name)
		}
	}
	return completions
}

func (t *CommandTree) ShowHelp(w io.Writer, input string) {
	node, _ := t.walk(strings.Fields(input))

	if len(node.Children) > 0 {
		fmt.Fprintln(w)
		for _, child := range node.Children {
			if child.Description != "" {
				fmt.Fprintf(w, "  %-20s %s\n", child.Name, child.Description)
			} else {
				fmt.Fprintf(w, "  %s\n", child.Name)
			}
		}
		fmt.Fprintln(w)
		return
	}

	if node.Handler != nil && len(node.Arguments) > 0 {
		fmt.Fprintln(w)
		for _, arg := range node.Arguments {
			switch arg.Type {
			case ArgUserInput:
				fmt.Fprintf(w, "  %-20s %s\n", "<"+arg.Name+">", arg.Description)
			case ArgKeyword:
				fmt.Fprintf(w, "  %-20s %s (%s)\n", arg.Name, arg.Description, strings.Join(arg.Values, "|"))
			case ArgKeywordWithValue:
				fmt.Fprintf(w, "  %-20s %s\n", arg.Name+" <value>", arg.Description)
			}
		}
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w, "\n  <cr>")
}
