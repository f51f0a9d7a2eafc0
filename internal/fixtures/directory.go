package fixtures

import (
	"fmt"
	"sort"

	"github.com/KevinKickass/FountainCore/internal/config"
	"github.com/KevinKickass/FountainCore/internal/types"
	"go.uber.org/zap"
)

// Directory holds the static show tables: palette, fixture map and the
// FCW address to fixture-directive mappings. It is read-only once built.
type Directory struct {
	palette  map[int]types.ColorDefinition
	colors   map[int]types.RGB
	fixtures map[int]types.FixtureDefinition
	mappings map[int]*types.FcwMapping
}

// LoadDirectory reads the three tables named in cfg. Any failure is an
// ErrConfig.
func LoadDirectory(cfg config.DirectoryConfig, logger *zap.Logger) (*Directory, error) {
	loader, err := NewTableLoader(cfg.SearchPaths)
	if err != nil {
		return nil, err
	}

	palette, err := loader.LoadPalette(cfg.Palette)
	if err != nil {
		return nil, fmt.Errorf("failed to load palette: %w", err)
	}

	fixtureTable, err := loader.LoadFixtures(cfg.Fixtures)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}

	groups, err := loader.LoadGroups(cfg.Groups)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}

	dir, err := NewDirectory(palette, fixtureTable, groups, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Fixture directory loaded",
		zap.Strings("search_paths", cfg.SearchPaths),
		zap.Int("colors", len(dir.colors)),
		zap.Int("fixtures", len(dir.fixtures)),
		zap.Int("addresses", len(dir.mappings)))

	return dir, nil
}

// NewDirectory builds a Directory from already decoded tables.
func NewDirectory(palette *types.PaletteTable, fixtureTable *types.FixtureTable, groups *types.GroupTable, logger *zap.Logger) (*Directory, error) {
	d := &Directory{
		palette:  make(map[int]types.ColorDefinition, len(palette.Colors)),
		colors:   make(map[int]types.RGB, len(palette.Colors)),
		fixtures: make(map[int]types.FixtureDefinition, len(fixtureTable.Fixtures)),
	}

	for _, c := range palette.Colors {
		rgb, err := types.ParseHexColor(c.Hex)
		if err != nil {
			return nil, fmt.Errorf("%w: palette index %d: %v", types.ErrConfig, c.Index, err)
		}
		if _, dup := d.colors[c.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate palette index %d", types.ErrConfig, c.Index)
		}
		d.palette[c.Index] = c
		d.colors[c.Index] = rgb
	}

	for _, f := range fixtureTable.Fixtures {
		if _, dup := d.fixtures[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate fixture %d", types.ErrConfig, f.ID)
		}
		if f.DMXChannel < 1 || f.DMXChannel > 512 {
			return nil, fmt.Errorf("%w: fixture %d dmx channel %d outside 1..512",
				types.ErrConfig, f.ID, f.DMXChannel)
		}
		if f.DMXChannel+f.Format.ChannelCount()-1 > 512 {
			logger.Warn("Fixture extends past channel 512, its writes will be skipped",
				zap.Int("fixture", f.ID),
				zap.Int("dmx_channel", f.DMXChannel),
				zap.String("format", string(f.Format)))
		}
		d.fixtures[f.ID] = f
	}

	mappings, err := NewComposer(logger).ComposeMappings(groups, d.fixtures)
	if err != nil {
		return nil, err
	}
	d.mappings = mappings

	return d, nil
}

// Color resolves a palette index.
func (d *Directory) Color(index int) (types.RGB, bool) {
	c, ok := d.colors[index]
	return c, ok
}

// Palette returns the palette entries ordered by index.
func (d *Directory) Palette() []types.ColorDefinition {
	out := make([]types.ColorDefinition, 0, len(d.palette))
	for _, c := range d.palette {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (d *Directory) Fixture(id int) (types.FixtureDefinition, bool) {
	f, ok := d.fixtures[id]
	return f, ok
}

// Fixtures returns every fixture ordered by id.
func (d *Directory) Fixtures() []types.FixtureDefinition {
	out := make([]types.FixtureDefinition, 0, len(d.fixtures))
	for _, f := range d.fixtures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Mapping returns the directives bound to an FCW address.
func (d *Directory) Mapping(address int) (*types.FcwMapping, bool) {
	m, ok := d.mappings[address]
	return m, ok
}

// Addresses returns every mapped FCW address in ascending order.
func (d *Directory) Addresses() []int {
	return Addresses(d.mappings)
}
