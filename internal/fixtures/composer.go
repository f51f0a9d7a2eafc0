package fixtures

import (
	"fmt"
	"sort"

	"github.com/KevinKickass/FountainCore/internal/types"
	"go.uber.org/zap"
)

type Composer struct {
	logger *zap.Logger
}

func NewComposer(logger *zap.Logger) *Composer {
	return &Composer{logger: logger}
}

// ComposeMappings expands the light-group table into one FcwMapping per
// address. A group's on_code turns every fixture of the group on, its
// fade_code fades them, and each extra code applies its directive.
// Groups sharing an address are merged in table order; a fixture named
// twice under one address keeps the later directive.
func (c *Composer) ComposeMappings(table *types.GroupTable, fixtures map[int]types.FixtureDefinition) (map[int]*types.FcwMapping, error) {
	mappings := make(map[int]*types.FcwMapping)

	for _, group := range table.Groups {
		c.logger.Debug("Composing light group",
			zap.String("group", group.Name),
			zap.Int("on_code", group.OnCode),
			zap.Int("fixtures", len(group.Fixtures)))

		for _, id := range group.Fixtures {
			if _, ok := fixtures[id]; !ok {
				return nil, fmt.Errorf("%w: group %q references unknown fixture %d",
					types.ErrConfig, group.Name, id)
			}
		}

		c.bind(mappings, group.OnCode, group.Fixtures, types.DirectiveOn)

		if group.FadeCode != 0 {
			c.bind(mappings, group.FadeCode, group.Fixtures, types.DirectiveFade)
		}

		for _, code := range group.Codes {
			directive, err := types.ParseDirective(code.Directive)
			if err != nil {
				return nil, fmt.Errorf("group %q code %d: %w", group.Name, code.Code, err)
			}
			c.bind(mappings, code.Code, group.Fixtures, directive)
		}
	}

	c.logger.Info("Light groups composed",
		zap.Int("groups", len(table.Groups)),
		zap.Int("addresses", len(mappings)))

	return mappings, nil
}

func (c *Composer) bind(mappings map[int]*types.FcwMapping, address int, fixtureIDs []int, directive types.Directive) {
	mapping, ok := mappings[address]
	if !ok {
		mapping = &types.FcwMapping{Address: address}
		mappings[address] = mapping
	}

	for _, id := range fixtureIDs {
		replaced := false
		for i := range mapping.Directives {
			if mapping.Directives[i].FixtureID == id {
				mapping.Directives[i].Directive = directive
				replaced = true
				break
			}
		}
		if !replaced {
			mapping.Directives = append(mapping.Directives, types.FixtureDirective{
				FixtureID: id,
				Directive: directive,
			})
		}
	}
}

// Addresses returns the mapped addresses in ascending order.
func Addresses(mappings map[int]*types.FcwMapping) []int {
	out := make([]int, 0, len(mappings))
	for addr := range mappings {
		out = append(out, addr)
	}
	sort.Ints(out)
	return out
}
