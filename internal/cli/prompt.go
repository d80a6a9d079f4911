package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/deltax-data-professor/server/internal/provider"
)

var selectTemplates = &promptui.SelectTemplates{
	Label:    "{{ . }}?",
	Active:   "▸ {{ . | cyan }}",
	Inactive: "  {{ . }}",
	Selected: "✓ {{ . | green }}",
}

// resolveProvider parses name, or asks for one when it is empty.
func resolveProvider(name string) (provider.Provider, error) {
	if strings.TrimSpace(name) != "" {
		return provider.Parse(name)
	}

	items := make([]string, len(provider.All))
	for i, p := range provider.All {
		items[i] = p.String()
	}
	sel := promptui.Select{
		Label:     "Select a provider",
		Items:     items,
		Templates: selectTemplates,
		Size:      len(items),
	}
	idx, _, err := sel.Run()
	if err != nil {
		return 0, fmt.Errorf("provider selection cancelled: %w", err)
	}
	return provider.All[idx], nil
}

// resolveKey returns key, else the provider's key variable, else a masked prompt.
func resolveKey(p provider.Provider, key string) (string, error) {
	if k := strings.TrimSpace(key); k != "" {
		return k, nil
	}
	desc, err := provider.Describe(p)
	if err != nil {
		return "", err
	}
	if k := strings.TrimSpace(os.Getenv(desc.KeyLabel)); k != "" {
		return k, nil
	}

	prompt := promptui.Prompt{
		Label: fmt.Sprintf("%s (get one at %s)", desc.KeyLabel, desc.HelpURL),
		Mask:  '*',
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("the key cannot be empty")
			}
			return nil
		},
	}
	k, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("key entry cancelled: %w", err)
	}
	return strings.TrimSpace(k), nil
}

// resolveModel returns model, or lets the user pick from models.
func resolveModel(model string, models []string) (string, error) {
	if m := strings.TrimSpace(model); m != "" {
		return m, nil
	}
	if len(models) == 0 {
		return "", errors.New("no models available, pass --model")
	}
	sel := promptui.Select{
		Label:     "Select a model",
		Items:     models,
		Templates: selectTemplates,
		Size:      10,
	}
	_, picked, err := sel.Run()
	if err != nil {
		return "", fmt.Errorf("model selection cancelled: %w", err)
	}
	return picked, nil
}
