package scenario

// The document types mirror the scenario file format. They are decoded strictly and then
// converted into schemas.Scenario, which is what the engine runs.

type document struct {
	Name         string    `yaml:"name" json:"name"`
	Precondition *phaseDoc `yaml:"precondition" json:"precondition"`
	URL          string    `yaml:"url" json:"url"`
	Iteration    *int      `yaml:"iteration" json:"iteration"`
	Steps        []stepDoc `yaml:"steps" json:"steps"`
}

type phaseDoc struct {
	URL    string     `yaml:"url" json:"url"`
	Steps  []stepDoc  `yaml:"steps" json:"steps"`
	Ensure *ensureDoc `yaml:"ensure" json:"ensure"`
}

type stepDoc struct {
	Action *actionDoc `yaml:"action" json:"action"`
}

type actionDoc struct {
	Type     string   `yaml:"type" json:"type"`
	Form     *formDoc `yaml:"form" json:"form"`
	Selector string   `yaml:"selector" json:"selector"`

	// Duration is in milliseconds.
	Duration       *int64  `yaml:"duration" json:"duration"`
	Location       *string `yaml:"location" json:"location"`
	LocationRegexp *string `yaml:"location_regexp" json:"location_regexp"`
	Name           string  `yaml:"name" json:"name"`
}

type formDoc struct {
	Selector string   `yaml:"selector" json:"selector"`
	Name     string   `yaml:"name" json:"name"`
	Value    *string  `yaml:"value" json:"value"`
	Regexp   *string  `yaml:"regexp" json:"regexp"`
	Values   []string `yaml:"values" json:"values"`
}

type ensureDoc struct {
	Location       *string `yaml:"location" json:"location"`
	LocationRegexp *string `yaml:"location_regexp" json:"location_regexp"`
}
