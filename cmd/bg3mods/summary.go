package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"

	"github.com/aheadley/overviewer-bg3-mods/pkg/installer"
)

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func paintWarn(s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return pterm.FgYellow.Sprint(s)
}

func paintDanger(s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return pterm.FgRed.Sprint(s)
}

func paintBold(s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return pterm.Bold.Sprint(s)
}

func paintError(s string) string {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return s
	}
	return pterm.FgRed.Sprint(s)
}

// stepLine renders one planned step. Destructive steps carry a [!]
// marker, overwrites of files the deployment does not own carry [!!].
func stepLine(step installer.Step) string {
	switch step.Action {
	case installer.ActionDelete:
		return paintWarn(fmt.Sprintf("  [!] delete    %s", step.Path))
	case installer.ActionRestore:
		return paintWarn(fmt.Sprintf("  [!] restore   %s (from %s)", step.Path, step.Source))
	case installer.ActionRmdir:
		return paintWarn(fmt.Sprintf("  [!] rmdir     %s", step.Path))
	case installer.ActionForget:
		return fmt.Sprintf("      keep      %s (%s)", step.Path, step.Note)
	case installer.ActionMkdir:
		return fmt.Sprintf("      mkdir     %s", step.Path)
	case installer.ActionBackup:
		return paintDanger(fmt.Sprintf(" [!!] backup    %s (to %s)", step.Path, step.Source))
	case installer.ActionInstall:
		return fmt.Sprintf("      install   %s", step.Path)
	default:
		return fmt.Sprintf("      %-9s %s", step.Action, step.Path)
	}
}

// renderPlan prints the planned steps for one target root. Roots with
// nothing to do are omitted entirely.
func renderPlan(w io.Writer, root string, steps []installer.Step) {
	if len(steps) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", paintBold(root))
	for _, step := range steps {
		fmt.Fprintln(w, stepLine(step))
	}
	fmt.Fprintln(w)
}

// confirm asks the user whether to apply the rendered plan. Without a
// terminal it falls back to reading a single line from stdin.
func confirm() bool {
	if stdoutIsTerminal() {
		ok, err := pterm.DefaultInteractiveConfirm.
			WithDefaultValue(false).
			Show("Apply these changes?")
		return err == nil && ok
	}

	fmt.Print("Apply these changes? [y/N] ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
