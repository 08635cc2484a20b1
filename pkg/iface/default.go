package iface

import (
	"debotbrowser/pkg/config"
	"debotbrowser/pkg/engine"
	"debotbrowser/pkg/processor"
	"debotbrowser/pkg/signing"
	"debotbrowser/pkg/ui"
)

// NewDefaultRegistry registers the built-in interfaces. Interfaces that take
// user input are wrapped so a loaded script answers first.
func NewDefaultRegistry(
	codec engine.Codec,
	settings *config.SharedUserSettings,
	proc *processor.ChainProcessor,
	prompter ui.Prompter,
	boxes *signing.Registry,
) (*Registry, error) {
	reg := NewRegistry(codec)

	handlers := []Interface{
		Echo{},
		NewUserInfo(settings, boxes),
		NewScripted(NewTerminal(prompter), proc),
		NewScripted(NewMenu(prompter), proc),
		NewScripted(NewAmountInput(prompter), proc),
		NewScripted(NewConfirmInput(prompter), proc),
		NewScripted(NewAddressInput(prompter), proc),
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
