package discovery

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// IsInteractive returns true if stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PromptResult represents the user's choice when prompted for a field.
type PromptResult int

const (
	// PromptAccept indicates the user accepted this field.
	PromptAccept PromptResult = iota
	// PromptReject indicates the user rejected this field.
	PromptReject
	// PromptAcceptAll indicates the user wants to accept all remaining fields.
	PromptAcceptAll
	// PromptRejectAll indicates the user wants to reject all remaining fields.
	PromptRejectAll
	// PromptQuit indicates the user wants to stop without saving.
	PromptQuit
)

// InteractivePrompter asks the user about discovered fields.
type InteractivePrompter struct {
	scanner *bufio.Scanner
	writer  io.Writer
}

// NewInteractivePrompter creates a new InteractivePrompter with the given reader and writer.
// Use os.Stdin and os.Stdout for normal operation, or buffers for testing.
func NewInteractivePrompter(reader io.Reader, writer io.Writer) *InteractivePrompter {
	return &InteractivePrompter{
		scanner: bufio.NewScanner(reader),
		writer:  writer,
	}
}

// PromptForField shows a discovered field and reads the user's choice.
// End of input is treated as quit.
func (p *InteractivePrompter) PromptForField(field DiscoveredField) (PromptResult, error) {
	fmt.Fprintf(p.writer, "\nDiscovered region field:\n")
	fmt.Fprintf(p.writer, "  Field: %s\n", field.Name)
	fmt.Fprintf(p.writer, "  Found in: %s\n", field.Table)
	fmt.Fprintf(p.writer, "  Provinces: %d of %d values (%.0f%%)\n", field.Matched, field.Values, field.Share()*100)

	fmt.Fprintf(p.writer, "\nAdd this field? (y)es, (n)o, (a)ccept all, (r)eject all, (q)uit: ")

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return PromptQuit, fmt.Errorf("error reading input: %w", err)
		}
		return PromptQuit, nil
	}

	input := strings.TrimSpace(strings.ToLower(p.scanner.Text()))
	switch input {
	case "y", "yes":
		return PromptAccept, nil
	case "n", "no":
		return PromptReject, nil
	case "a", "accept all":
		return PromptAcceptAll, nil
	case "r", "reject all":
		return PromptRejectAll, nil
	case "q", "quit":
		return PromptQuit, nil
	default:
		fmt.Fprintf(p.writer, "Invalid input '%s', treating as reject.\n", input)
		return PromptReject, nil
	}
}

// SelectFields walks the prompter through fields and returns the accepted
// ones. ok is false when the user quit.
func (p *InteractivePrompter) SelectFields(fields []DiscoveredField) (accepted []DiscoveredField, ok bool, err error) {
	for i, f := range fields {
		choice, err := p.PromptForField(f)
		if err != nil {
			return nil, false, err
		}
		switch choice {
		case PromptAccept:
			accepted = append(accepted, f)
		case PromptAcceptAll:
			return append(accepted, fields[i:]...), true, nil
		case PromptRejectAll:
			return accepted, true, nil
		case PromptQuit:
			return nil, false, nil
		}
	}
	return accepted, true, nil
}

// AddToConfig appends the names of fields to the configured region
// fields, skipping names already present.
func AddToConfig(names []string, fields []DiscoveredField) []string {
	seen := make(map[string]bool)
	for _, n := range names {
		seen[strings.ToUpper(n)] = true
	}
	for _, f := range fields {
		key := strings.ToUpper(f.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, f.Name)
	}
	return names
}
