package types

// GroupTable is the light-group table. Each group is expanded into FCW
// mappings by the fixtures composer.
type GroupTable struct {
	Groups []LightGroup `json:"groups"`
}

type LightGroup struct {
	Name     string      `json:"name"`
	OnCode   int         `json:"on_code"`
	FadeCode int         `json:"fade_code,omitempty"`
	Fixtures []int       `json:"fixtures"`
	Codes    []GroupCode `json:"codes,omitempty"`
}

// GroupCode binds an extra FCW address to a directive for every fixture
// of the group. Directive is "on", "off", "fade", "green_yellow" or a
// custom tag such as "WHT".
type GroupCode struct {
	Code      int    `json:"code"`
	Directive string `json:"directive"`
}
