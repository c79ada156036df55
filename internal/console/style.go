package console

import "github.com/charmbracelet/lipgloss"

// Styling for the console subcommand's banner and prompt, adapted from
// the teacher's internal/ui/colorize package: the same "named,
// semantic style function per role" shape (Address/Tag/Key/...), but
// built on lipgloss instead of hand-rolled ANSI escapes and Chroma
// lexing, since this repo's domain stack carries lipgloss rather than
// a disassembly syntax highlighter.
var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#56B6E4"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC800"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#B4B4B4"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5050"))
)

// Banner renders the console's startup banner.
func Banner(version string) string {
	return bannerStyle.Render("jbridge console " + version)
}

// Prompt renders the input prompt.
func Prompt() string {
	return promptStyle.Render("jbridge> ")
}

// Result renders a successful evaluation result.
func Result(s string) string {
	return resultStyle.Render(s)
}

// Error renders an evaluation error.
func Error(s string) string {
	return errorStyle.Render(s)
}
