package menu

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers Choose from a fixed list of keys.
type scripted struct {
	keys   []string
	titles []string
	err    error
}

func (s *scripted) Choose(ctx context.Context, title string, items []Item) (string, error) {
	if s.titles == nil {
		for _, it := range items {
			s.titles = append(s.titles, it.Title)
		}
	}
	if len(s.keys) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return QuitKey, nil
	}
	k := s.keys[0]
	s.keys = s.keys[1:]
	return k, nil
}

func (s *scripted) Ask(ctx context.Context, title, initial string) (string, error) {
	return initial, nil
}

func (s *scripted) Confirm(ctx context.Context, title string) (bool, error) {
	return true, nil
}

func TestMenu_RunsActionsUntilQuit(t *testing.T) {
	var ran []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return nil
		}
	}
	prompt := &scripted{keys: []string{"up", "status", "up", QuitKey, "status"}}
	var out bytes.Buffer
	m := &Menu{
		Title:  "OSSS",
		Items:  []Item{{Key: "up", Title: "Start profile", Run: record("up")}, {Key: "status", Title: "Status", Run: record("status")}},
		Prompt: prompt,
		Out:    &out,
	}

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []string{"up", "status", "up"}, ran)
	assert.Equal(t, []string{"1) Start profile", "2) Status", "0) Quit"}, prompt.titles)
}

// TestMenu_ErrorsDoNotExit verifies failing and panicking actions are
// reported and the loop carries on.
func TestMenu_ErrorsDoNotExit(t *testing.T) {
	calls := 0
	var out bytes.Buffer
	m := &Menu{
		Items: []Item{
			{Key: "fail", Title: "Fail", Run: func(context.Context) error { return errors.New("compose up failed") }},
			{Key: "boom", Title: "Boom", Run: func(context.Context) error { panic("nil map") }},
			{Key: "count", Title: "Count", Run: func(context.Context) error { calls++; return nil }},
		},
		Prompt: &scripted{keys: []string{"fail", "boom", "count"}},
		Out:    &out,
	}

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Contains(t, out.String(), IconFail)
	assert.Contains(t, out.String(), "compose up failed")
	assert.Contains(t, out.String(), "panic: nil map")
}

func TestMenu_AbortedActionContinues(t *testing.T) {
	var out bytes.Buffer
	m := &Menu{
		Items:  []Item{{Key: "ask", Title: "Ask", Run: func(context.Context) error { return huh.ErrUserAborted }}},
		Prompt: &scripted{keys: []string{"ask"}},
		Out:    &out,
	}
	require.NoError(t, m.Run(context.Background()))
	assert.Contains(t, out.String(), "cancelled")
}

func TestMenu_UnknownChoice(t *testing.T) {
	var out bytes.Buffer
	m := &Menu{Prompt: &scripted{keys: []string{"nope"}}, Out: &out}
	require.NoError(t, m.Run(context.Background()))
	assert.Contains(t, out.String(), `unknown choice "nope"`)
}

func TestMenu_PromptAbortQuits(t *testing.T) {
	m := &Menu{Prompt: &scripted{err: huh.ErrUserAborted}, Out: &bytes.Buffer{}}
	assert.NoError(t, m.Run(context.Background()))

	m = &Menu{Prompt: &scripted{err: errors.New("tty gone")}, Out: &bytes.Buffer{}}
	assert.EqualError(t, m.Run(context.Background()), "tty gone")
}

func TestMenu_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &Menu{Prompt: &scripted{keys: []string{"x"}}, Out: &bytes.Buffer{}}
	assert.ErrorIs(t, m.Run(ctx), context.Canceled)
}

func TestStatusLines(t *testing.T) {
	var out bytes.Buffer
	OK(&out, "started %d services", 3)
	Warn(&out, "port %d busy", 8080)
	Fail(&out, "failed")
	s := out.String()
	assert.Contains(t, s, IconOK)
	assert.Contains(t, s, "started 3 services")
	assert.Contains(t, s, IconWarn)
	assert.Contains(t, s, IconFail)
}
