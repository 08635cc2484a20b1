package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"debotbrowser/pkg/config"
	"debotbrowser/pkg/engine"
	"debotbrowser/pkg/engine/sim"
)

// newEngine builds the engine selected by cfg. botsPath overrides the
// configured bot definitions when set.
func newEngine(cfg config.EngineConfig, botsPath string) (engine.Factory, engine.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "sim":
		if botsPath == "" {
			botsPath = cfg.SimBots
		}
		if botsPath == "" {
			return nil, nil, errors.New("sim engine needs bot definitions (engine.sim_bots or --bots)")
		}
		defs, err := sim.LoadDefinitions(botsPath)
		if err != nil {
			return nil, nil, err
		}
		return sim.NewFactory(defs), sim.Codec{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}

// qualifyAddress puts a bare account id into workchain.
func qualifyAddress(address string, workchain int) string {
	address = strings.TrimSpace(address)
	if address == "" || strings.Contains(address, ":") {
		return address
	}
	return strconv.Itoa(workchain) + ":" + address
}
