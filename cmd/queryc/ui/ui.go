// Package ui renders CLI diagnostics. Modeled on the teacher's
// cli/internal/ui package, trimmed to the subset this engine's surface
// needs: colored status lines (fatih/color) and a pretty-printed program
// tree (pterm) for the `compile --explain` path, instead of the teacher's
// full glamour/lipgloss markdown-rendering header treatment, which had no
// equivalent output in this CLI's narrower surface.
package ui

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	info    = color.New(color.FgCyan)
)

func PrintSuccess(format string, args ...interface{}) {
	success.Println("✓ " + fmt.Sprintf(format, args...))
}

func PrintError(format string, args ...interface{}) {
	failure.Println("✗ " + fmt.Sprintf(format, args...))
}

func PrintWarning(format string, args ...interface{}) {
	warn.Println("! " + fmt.Sprintf(format, args...))
}

func PrintInfo(format string, args ...interface{}) {
	info.Println(fmt.Sprintf(format, args...))
}

// ProgramTree renders a compiled program's guard list as an indented tree,
// used by `queryc compile --explain`.
func ProgramTree(action, model string, guards []string) {
	root := pterm.TreeNode{Text: fmt.Sprintf("%s %s", action, model)}
	for _, g := range guards {
		root.Children = append(root.Children, pterm.TreeNode{Text: "validate orRaise " + g})
	}
	_ = pterm.DefaultTree.WithRoot(root).Render()
}
