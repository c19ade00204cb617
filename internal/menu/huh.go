package menu

import (
	"context"
	"io"

	"github.com/charmbracelet/huh"
)

// HuhPrompter prompts on the terminal with huh forms. Accessible switches
// to plain line prompts, which also works when stdin is not a TTY.
type HuhPrompter struct {
	In         io.Reader
	Out        io.Writer
	Accessible bool
}

func (p *HuhPrompter) form(fields ...huh.Field) *huh.Form {
	f := huh.NewForm(huh.NewGroup(fields...)).WithAccessible(p.Accessible)
	if p.In != nil {
		f = f.WithInput(p.In)
	}
	if p.Out != nil {
		f = f.WithOutput(p.Out)
	}
	return f
}

// Choose shows items as a select list and returns the chosen item's key.
func (p *HuhPrompter) Choose(ctx context.Context, title string, items []Item) (string, error) {
	opts := make([]huh.Option[string], 0, len(items))
	for _, it := range items {
		opts = append(opts, huh.NewOption(it.Title, it.Key))
	}
	var choice string
	sel := huh.NewSelect[string]().
		Title(title).
		Options(opts...).
		Value(&choice)
	if err := p.form(sel).RunWithContext(ctx); err != nil {
		return "", err
	}
	return choice, nil
}

// Ask reads one line of text, prefilled with initial.
func (p *HuhPrompter) Ask(ctx context.Context, title, initial string) (string, error) {
	value := initial
	in := huh.NewInput().Title(title).Value(&value)
	if err := p.form(in).RunWithContext(ctx); err != nil {
		return "", err
	}
	return value, nil
}

// Confirm asks a yes/no question. The default answer is no.
func (p *HuhPrompter) Confirm(ctx context.Context, title string) (bool, error) {
	var ok bool
	c := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&ok)
	if err := p.form(c).RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

var _ Prompter = (*HuhPrompter)(nil)
