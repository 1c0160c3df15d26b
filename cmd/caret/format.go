package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text", "yaml"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, ", "))
}

// colorEnabled decides whether output to f is coloured under mode.
func colorEnabled(mode string, f *os.File) bool {
	switch mode {
	case colorModeAlways:
		return true
	case colorModeNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func outputResult(result CLIResult) error {
	return writeResult(os.Stdout, viper.GetString("format"), newStyles(os.Stdout, colorEnabled(viper.GetString("color"), os.Stdout)), result)
}

func writeResult(w io.Writer, format string, st styles, result CLIResult) error {
	switch format {
	case "text":
		return writeResultText(w, st, result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In text mode it goes to stderr; otherwise it is
// written to stdout as a CLIResult envelope.
func outputError(command string, err error) error {
	errorHandled = true
	format := viper.GetString("format")
	if format == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = writeResult(os.Stdout, format, newStyles(os.Stdout, false), CLIResult{Command: command, Error: err.Error()})
	return err
}

// styles holds the lipgloss styles for text output.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label:   r.NewStyle().Foreground(lipgloss.Color("42")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
		warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		err:     r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func writeResultText(w io.Writer, st styles, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIReport:
		for i, r := range v {
			if i > 0 {
				fmt.Fprintln(w)
			}
			formatReportText(w, st, r)
		}
	case []CLILanguage:
		formatLanguagesText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// formatReportText writes one report: a title line, then either the notice
// or the facts and counts.
func formatReportText(w io.Writer, st styles, r CLIReport) {
	title := r.Path
	if r.Language != "" {
		title += " (" + r.Language + ")"
	}
	fmt.Fprintln(w, st.title.Render(title))

	switch r.Status {
	case "cancelled":
		fmt.Fprintln(w, st.warning.Render(r.Message))
		return
	case "ok":
	default:
		fmt.Fprintln(w, st.err.Render(r.Message))
		return
	}

	if r.Element != "" {
		fmt.Fprintf(w, "%s %s\n", st.label.Render("Element at caret:"), r.Element)
	}
	if r.Method != "" {
		fmt.Fprintf(w, "%s %s\n", st.label.Render("Containing method:"), r.Method)
	}
	if r.Class != "" {
		fmt.Fprintf(w, "%s %s\n", st.label.Render("Containing class:"), r.Class)
	}
	if len(r.Locals) > 0 {
		fmt.Fprintln(w, st.label.Render("Local variables:"))
		for _, name := range r.Locals {
			fmt.Fprintf(w, "- %s\n", name)
		}
	}
	for _, kind := range countKinds(r.Counts) {
		fmt.Fprintf(w, "%s %d\n", st.muted.Render("count."+kind+":"), r.Counts[kind])
	}
}

// formatLanguagesText formats CLILanguage results as aligned columns.
func formatLanguagesText(w io.Writer, langs []CLILanguage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANGUAGE\tWALK\tEXTENSIONS")
	for _, l := range langs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Name, l.Variant, strings.Join(l.Extensions, " "))
	}
	tw.Flush()
}
