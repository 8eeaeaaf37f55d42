package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gnana997/propspec/pkg/catalog"
)

const maxWidth = 80

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("inspect", "-catalog <file> [flags] <component>", stderr)
	catalogPath := fs.String("catalog", "", "catalog file written by 'propspec scan -catalog'")
	asJSON := fs.Bool("json", false, "print the component as JSON")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 || *catalogPath == "" {
		fs.Usage()
		return errUsage
	}

	qs, err := catalog.LoadAndQuery(*catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	comp, ok := qs.GetComponent(positional[0])
	if !ok {
		var names []string
		for _, hit := range qs.SearchComponents(positional[0]) {
			names = append(names, hit.Component.Name)
		}
		if len(names) > 0 {
			return fmt.Errorf("component %q not found, did you mean: %s", positional[0], strings.Join(names, ", "))
		}
		return fmt.Errorf("component %q not found", positional[0])
	}

	if *asJSON {
		return writeJSON(stdout, comp)
	}
	printComponentHuman(stdout, comp)
	return nil
}

// printComponentHuman prints a human-readable component summary.
func printComponentHuman(w io.Writer, comp *catalog.Component) {
	fmt.Fprintf(w, "%s  [%s]\n", comp.Name, comp.Category)
	fmt.Fprintf(w, "  %s", comp.FilePath)
	if comp.Export != "" {
		fmt.Fprintf(w, "  (%s export)", comp.Export)
	}
	fmt.Fprintln(w)

	if comp.ImportPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Import")
		if comp.Export == "named" {
			fmt.Fprintf(w, "  import { %s } from %q\n", comp.Name, comp.ImportPath)
		} else {
			fmt.Fprintf(w, "  import %s from %q\n", comp.Name, comp.ImportPath)
		}
	}

	fmt.Fprintln(w)
	printPropsSection(w, "Props", comp.Props)
}

// printPropsSection renders the props table with dynamic column widths.
func printPropsSection(w io.Writer, title string, props []catalog.Prop) {
	if len(props) == 0 {
		fmt.Fprintf(w, "%s  (none)\n", title)
		return
	}

	fmt.Fprintln(w, title)

	nameW := len("NAME")
	typeW := len("TYPE")
	defW := len("DEFAULT")
	for _, p := range props {
		nameW = max(nameW, len(p.Name))
		typeW = max(typeW, len(p.Type))
		defW = max(defW, len(defaultText(p)))
	}

	sepLen := nameW + typeW + defW + 11
	fmt.Fprintf(w, "  %-*s  %-*s  %-3s  %-*s\n", nameW, "NAME", typeW, "TYPE", "REQ", defW, "DEFAULT")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", sepLen))

	indent := strings.Repeat(" ", nameW+4)
	for _, p := range props {
		req := "no"
		if p.Required {
			req = "yes"
		}
		fmt.Fprintf(w, "  %-*s  %-*s  %-3s  %s\n", nameW, p.Name, typeW, p.Type, req, defaultText(p))

		if p.Description != "" {
			printWrapped(w, p.Description, len(indent), maxWidth)
		}
		if len(p.AllowedValues) > 0 {
			fmt.Fprintf(w, "%sallowed: %s\n", indent, wrapAllowed(strings.Join(p.AllowedValues, " | "), len(indent)+len("allowed: ")))
		}
	}
}

func defaultText(p catalog.Prop) string {
	if p.Default == "" {
		return "—"
	}
	return p.Default
}

// wrapAllowed wraps the allowed values string if it exceeds maxWidth.
func wrapAllowed(allowed string, indent int) string {
	if indent+len(allowed) <= maxWidth {
		return allowed
	}
	parts := strings.Split(allowed, " | ")
	var sb strings.Builder
	lineLen := indent
	for i, part := range parts {
		addition := len(part)
		if i > 0 {
			addition += 3 // " | "
		}
		if lineLen+addition > maxWidth && i > 0 {
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat(" ", indent))
			lineLen = indent
		}
		if i > 0 {
			sb.WriteString(" | ")
			lineLen += 3
		}
		sb.WriteString(part)
		lineLen += len(part)
	}
	return sb.String()
}

// printWrapped prints text word-wrapped at width with the given left indent.
// Line breaks in text are kept.
func printWrapped(w io.Writer, text string, indent, width int) {
	prefix := strings.Repeat(" ", indent)
	for _, paragraph := range strings.Split(text, "\n") {
		line := prefix
		for _, word := range strings.Fields(paragraph) {
			switch {
			case line == prefix:
				line += word
			case len(line)+len(word)+1 > width:
				fmt.Fprintln(w, line)
				line = prefix + word
			default:
				line += " " + word
			}
		}
		if line != prefix {
			fmt.Fprintln(w, line)
		}
	}
}
