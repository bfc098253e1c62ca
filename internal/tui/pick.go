package tui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/huh"

	"github.com/1broseidon/xkit/internal/watchcfg"
)

// PickSelectors prompts for event groups with an interactive form, used
// when the tui verb starts without selectors on a terminal. Returns nil
// when the pick amounts to watching everything; a cancelled form surfaces
// as huh.ErrUserAborted.
func PickSelectors(cfg *watchcfg.Config) ([]string, error) {
	var picked []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Event groups").
				Description("Space toggles, enter confirms. Nothing selected watches everything.").
				Options(groupOptions(cfg)...).
				Value(&picked),
		),
	).WithShowHelp(true)

	if err := form.Run(); err != nil {
		return nil, err
	}

	for _, name := range picked {
		if name == "all" {
			return nil, nil
		}
	}
	if len(picked) == 0 {
		return nil, nil
	}
	return picked, nil
}

// groupOptions lists the configured event groups, the wildcard first and
// preselected, each labeled with its event count.
func groupOptions(cfg *watchcfg.Config) []huh.Option[string] {
	names := make([]string, 0, len(cfg.EventGroups))
	for name := range cfg.EventGroups {
		if name == "all" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []huh.Option[string]{huh.NewOption("all events", "all").Selected(true)}
	for _, name := range names {
		var label string
		if codes := cfg.EventGroups[name]; codes == nil {
			label = fmt.Sprintf("%s (all events)", name)
		} else {
			label = fmt.Sprintf("%s (%d events)", name, len(codes))
		}
		opts = append(opts, huh.NewOption(label, name))
	}
	return opts
}
