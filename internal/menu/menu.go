package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/logging"
)

// QuitKey is the item key that ends the loop.
const QuitKey = "quit"

// Item is one numbered menu entry. Run is nil only for the quit entry.
type Item struct {
	Key   string
	Title string
	Run   func(ctx context.Context) error
}

// Prompter asks the user questions. HuhPrompter is the terminal
// implementation; tests script one.
type Prompter interface {
	Choose(ctx context.Context, title string, items []Item) (string, error)
	Ask(ctx context.Context, title, initial string) (string, error)
	Confirm(ctx context.Context, title string) (bool, error)
}

// Menu is the interactive loop.
type Menu struct {
	Title  string
	Items  []Item
	Prompt Prompter
	Out    io.Writer
	Log    *zap.Logger
}

// Run shows the menu until the user picks quit or aborts the prompt. An
// action's error is printed and the loop continues. A cancelled ctx ends
// the loop with ctx.Err().
func (m *Menu) Run(ctx context.Context) error {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	log := logging.OrNop(m.Log)
	items := m.numbered()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := m.Prompt.Choose(ctx, m.Title, items)
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		if key == QuitKey {
			return nil
		}

		item, ok := find(items, key)
		if !ok || item.Run == nil {
			Warn(out, "unknown choice %q", key)
			continue
		}
		log.Debug("menu action", zap.String("action", item.Key))
		if err := m.runItem(ctx, item); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				Warn(out, "%s cancelled", item.Title)
				continue
			}
			Fail(out, "%s: %v", item.Title, err)
		}
		fmt.Fprintln(out)
	}
}

// runItem converts an action panic into an error so a bug in one entry
// does not take down the loop.
func (m *Menu) runItem(ctx context.Context, item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return item.Run(ctx)
}

// numbered prefixes titles with their position and appends quit when the
// caller did not provide it.
func (m *Menu) numbered() []Item {
	out := make([]Item, 0, len(m.Items)+1)
	hasQuit := false
	for i, it := range m.Items {
		if it.Key == QuitKey {
			hasQuit = true
		}
		it.Title = strconv.Itoa(i+1) + ") " + it.Title
		out = append(out, it)
	}
	if !hasQuit {
		out = append(out, Item{Key: QuitKey, Title: "0) Quit"})
	}
	return out
}

func find(items []Item, key string) (Item, bool) {
	for _, it := range items {
		if it.Key == key {
			return it, true
		}
	}
	return Item{}, false
}
