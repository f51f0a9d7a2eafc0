package types

import (
	"fmt"
	"strings"
)

// Directive is what an FCW address does to one fixture.
type Directive int

const (
	DirectiveOff Directive = iota
	DirectiveOn
	DirectiveFade
	DirectiveGreenYellow
	DirectiveWhite
)

func (d Directive) String() string {
	switch d {
	case DirectiveOff:
		return "off"
	case DirectiveOn:
		return "on"
	case DirectiveFade:
		return "fade"
	case DirectiveGreenYellow:
		return "green_yellow"
	case DirectiveWhite:
		return "WHT"
	default:
		return fmt.Sprintf("directive(%d)", int(d))
	}
}

// customDirectives lists the known custom tags.
var customDirectives = map[string]Directive{
	"WHT": DirectiveWhite,
}

// ParseDirective resolves a table spelling into a Directive.
func ParseDirective(s string) (Directive, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return DirectiveOn, nil
	case "off", "":
		return DirectiveOff, nil
	case "fade":
		return DirectiveFade, nil
	case "green_yellow", "greenyellow":
		return DirectiveGreenYellow, nil
	}
	if d, ok := customDirectives[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return DirectiveOff, fmt.Errorf("%w: unknown directive %q", ErrConfig, s)
}

type FixtureDirective struct {
	FixtureID int
	Directive Directive
}

// FcwMapping lists, in fixture order, what one FCW address does.
type FcwMapping struct {
	Address    int
	Directives []FixtureDirective
}
