package main

import (
	"sort"
	"strings"

	"github.com/chzyer/readline"
)

func (c *CLI) buildCompleter() readline.AutoCompleter {
	return completer{tree: c.tree}
}

// completer returns the untyped suffix of each candidate word. A lone
// candidate gets a trailing space so the next word can be typed directly.
type completer struct {
	tree *CommandTree
}

func (c completer) Do(line []rune, pos int) ([][]rune, int) {
	input := string(line[:pos])
	candidates := c.tree.GetCompletions(input)
	if len(candidates) == 0 {
		return nil, 0
	}
	sort.Strings(candidates)

	word := input[strings.LastIndexByte(input, ' ')+1:]
	out := make([][]rune, 0, len(candidates))
	for _, cand := range candidates {
		suffix := strings.TrimPrefix(cand, word)
		if len(candidates) == 1 {
			suffix += " "
		}
		out = append(out, []rune(suffix))
	}
	return out, len([]rune(word))
}

func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}
