package util

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	helpMaxWidth = 120
	helpIndent   = "   "
	flagIndent   = "  "
	flagGap      = 2
)

var (
	sectionColor  = color.New(color.FgGreen, color.Bold).SprintFunc()
	categoryColor = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func terminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return fallback
}

// wrapText breaks text into lines no longer than width, keeping words whole.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	lines := []string{words[0]}
	for _, w := range words[1:] {
		last := &lines[len(lines)-1]
		if len(*last)+1+len(w) > width {
			lines = append(lines, w)
			continue
		}
		*last += " " + w
	}
	return lines
}

func flagField(f cli.Flag, name string) reflect.Value {
	v := reflect.ValueOf(f)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return v.FieldByName(name)
}

func splitFlag(f cli.Flag) (label, usage string) {
	label, usage, _ = strings.Cut(strings.TrimRight(f.String(), "\n"), "\t")
	return
}

type flagGroup struct {
	name  string
	flags []cli.Flag
}

func groupFlags(flags []cli.Flag) []flagGroup {
	index := map[string]int{}
	groups := []flagGroup{}
	for _, f := range flags {
		if hidden := flagField(f, "Hidden"); hidden.IsValid() && hidden.Kind() == reflect.Bool && hidden.Bool() {
			continue
		}
		if label, _ := splitFlag(f); strings.HasPrefix(label, "--help") {
			continue
		}
		category := ""
		if c := flagField(f, "Category"); c.IsValid() && c.Kind() == reflect.String {
			category = c.String()
		}
		if category == "" {
			category = "Global Options"
		}
		i, ok := index[category]
		if !ok {
			i = len(groups)
			index[category] = i
			groups = append(groups, flagGroup{name: category})
		}
		groups[i].flags = append(groups[i].flags, f)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].name < groups[j].name
	})
	return groups
}

// WriteHelp renders help for a *cli.App or *cli.Command with flags grouped
// by their Category.
func WriteHelp(w io.Writer, data interface{}, width int) bool {
	var (
		flags []cli.Flag
		cmds  []*cli.Command
		name  string
		usage string
		desc  string
	)
	switch v := data.(type) {
	case *cli.App:
		flags, cmds, name, usage, desc = v.Flags, v.Commands, v.HelpName, v.Usage, v.Description
	case *cli.Command:
		flags, cmds, name, usage, desc = v.Flags, v.Subcommands, v.HelpName, v.Usage, v.Description
	default:
		return false
	}

	fmt.Fprintf(w, "%s\n%s%s - %s\n\n", sectionColor("NAME:"), helpIndent, name, usage)

	fmt.Fprintf(w, "%s\n%s%s", sectionColor("USAGE:"), helpIndent, name)
	if len(cmds) > 0 {
		fmt.Fprint(w, " command")
	}
	if len(flags) > 0 {
		fmt.Fprint(w, " [options]")
	}
	fmt.Fprint(w, "\n\n")

	if desc != "" {
		fmt.Fprintln(w, sectionColor("DESCRIPTION:"))
		for _, line := range wrapText(desc, width-len(helpIndent)) {
			fmt.Fprintf(w, "%s%s\n", helpIndent, line)
		}
		fmt.Fprintln(w)
	}

	listed := false
	for _, c := range cmds {
		if c.Hidden || c.Name == "help" {
			continue
		}
		if !listed {
			fmt.Fprintln(w, sectionColor("COMMANDS:"))
			listed = true
		}
		fmt.Fprintf(w, "%s%-20s  %s\n", helpIndent, c.Name, c.Usage)
	}
	if listed {
		fmt.Fprintln(w)
	}

	groups := groupFlags(flags)
	if len(groups) == 0 {
		return true
	}
	fmt.Fprintf(w, "%s\n\n", sectionColor("OPTIONS:"))

	labelWidth := 0
	for _, g := range groups {
		for _, f := range g.flags {
			label, _ := splitFlag(f)
			labelWidth = max(labelWidth, len(label))
		}
	}
	usageWidth := max(width-len(flagIndent)-labelWidth-flagGap, 20)
	continuation := strings.Repeat(" ", len(flagIndent)+labelWidth+flagGap+2)

	for _, g := range groups {
		fmt.Fprintf(w, "%s%s\n", flagIndent, categoryColor(g.name))
		for _, f := range g.flags {
			label, text := splitFlag(f)
			lines := wrapText(text, usageWidth)
			fmt.Fprintf(w, "%s%-*s%s%s\n", flagIndent, labelWidth, label, strings.Repeat(" ", flagGap), lines[0])
			for _, l := range lines[1:] {
				fmt.Fprintf(w, "%s%s\n", continuation, l)
			}
		}
		fmt.Fprintln(w)
	}
	return true
}

// CategorizedHelp replaces the default cli help output with WriteHelp.
func CategorizedHelp() {
	fallback := cli.HelpPrinter
	width := min(helpMaxWidth, terminalWidth(helpMaxWidth)) - 4
	cli.HelpPrinter = func(w io.Writer, templ string, data interface{}) {
		if !WriteHelp(w, data, width) {
			fallback(w, templ, data)
		}
	}
}
