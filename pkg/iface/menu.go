package iface

import (
	"context"
	"encoding/json"
	"fmt"

	"debotbrowser/pkg/ui"
)

type menuItem struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	HandlerID   json.RawMessage `json:"handlerId"`
}

func menuItems(args callArgs) ([]menuItem, error) {
	var items []menuItem
	if err := json.Unmarshal(args["items"], &items); err != nil {
		return nil, fmt.Errorf("%w: menu items: %v", ErrInvalidArguments, err)
	}
	return items, nil
}

// menuHandler returns the answer id bound to the item at index.
func menuHandler(items []menuItem, index uint64) (uint32, error) {
	if index >= uint64(len(items)) {
		return 0, fmt.Errorf("%w: %d of %d", ErrMenuIndexOutOfRange, index, len(items))
	}
	return parseUint32(items[index].HandlerID, "handlerId")
}

// Menu lets the user pick one item; the answer goes to that item's handler.
type Menu struct {
	prompter ui.Prompter
}

func NewMenu(prompter ui.Prompter) *Menu {
	return &Menu{prompter: prompter}
}

func (*Menu) ID() string  { return MenuID }
func (*Menu) ABI() string { return menuABI }

func (m *Menu) Call(ctx context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	if function != "select" {
		return 0, nil, notImplemented(function)
	}

	args, err := parseArgs(raw)
	if err != nil {
		return 0, nil, err
	}
	items, err := menuItems(args)
	if err != nil {
		return 0, nil, err
	}

	title, _ := args.string("title")
	if description, _ := args.string("description"); description != "" {
		title += "\n" + description
	}
	options := make([]string, len(items))
	for i, item := range items {
		options[i] = item.Title
		if item.Description != "" {
			options[i] += " (" + item.Description + ")"
		}
	}

	index, err := ui.Choose(ctx, m.prompter, title, options)
	if err != nil {
		return 0, nil, err
	}
	answerID, err := menuHandler(items, uint64(index))
	if err != nil {
		return 0, nil, err
	}

	params, err := answer(map[string]int{"index": index})
	return answerID, params, err
}
