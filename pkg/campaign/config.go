package campaign

// Campaign is the top-level record every other entity is scoped to.
type Campaign struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Config Config `json:"config"`
}

// Config holds the per-campaign settings read by the simulation core.
// It is owned by the CRUD layer; the core never writes it.
type Config struct {
	TimeOfDay  []TimeOfDayThreshold `json:"time_of_day"`
	Calendar   Calendar             `json:"calendar"`
	Weather    WeatherConfig        `json:"weather"`
	Encounters EncounterSettings    `json:"encounters"`
	Rules      RulesSettings        `json:"rules"`
}

// TimeOfDayThreshold names the part of the day starting at Hour:Minute.
// Thresholds are matched by "latest start <= minute of day wins" so they
// do not need to be sorted.
type TimeOfDayThreshold struct {
	Label  string `json:"label"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute,omitempty"`
}

// StartMinute returns the threshold start as minutes since midnight.
func (t TimeOfDayThreshold) StartMinute() int {
	return t.Hour*60 + t.Minute
}

type Calendar struct {
	Months   []Month  `json:"months"`
	Weekdays []string `json:"weekdays,omitempty"`
}

type Month struct {
	Name string `json:"name"`
	Days int    `json:"days"`
}

type WeatherConfig struct {
	Options    []string `json:"options"`
	Volatility float64  `json:"volatility"` // 0..1
	// Transitions is optional; when empty a default table is generated from Options.
	Transitions map[string]map[string]float64 `json:"transitions,omitempty"`
}

type EncounterSettings struct {
	Enabled          bool    `json:"enabled"`
	BaseRate         float64 `json:"base_rate"`          // per-hour probability
	MinIntervalHours float64 `json:"min_interval_hours"` // game hours between encounters
}

type RulesSettings struct {
	EngineEnabled     bool `json:"engine_enabled"`
	CascadeDepthLimit int  `json:"cascade_depth_limit"`
}

// DefaultConfig returns the settings a freshly created campaign starts with.
func DefaultConfig() Config {
	return Config{
		TimeOfDay: []TimeOfDayThreshold{
			{Label: "Dawn", Hour: 5},
			{Label: "Morning", Hour: 7},
			{Label: "Midday", Hour: 12},
			{Label: "Afternoon", Hour: 14},
			{Label: "Evening", Hour: 18},
			{Label: "Night", Hour: 21},
		},
		Calendar: Calendar{
			Months: []Month{
				{Name: "Deepwinter", Days: 30},
				{Name: "Thawing", Days: 28},
				{Name: "Seedtime", Days: 30},
				{Name: "Rainmoot", Days: 30},
				{Name: "Blossom", Days: 31},
				{Name: "Highsun", Days: 30},
				{Name: "Midsummer", Days: 31},
				{Name: "Harvest", Days: 30},
				{Name: "Leaffall", Days: 30},
				{Name: "Rotting", Days: 31},
				{Name: "Frostfall", Days: 30},
				{Name: "Longnight", Days: 31},
			},
			Weekdays: []string{"Moonday", "Towerday", "Wealday", "Thunderday", "Fireday", "Starday", "Sunday"},
		},
		Weather: WeatherConfig{
			Options:    []string{"Clear", "Overcast", "Fog", "Rain", "Heavy Rain", "Storm"},
			Volatility: 0.3,
		},
		Encounters: EncounterSettings{
			Enabled:          false,
			BaseRate:         0.05,
			MinIntervalHours: 4,
		},
		Rules: RulesSettings{
			EngineEnabled:     true,
			CascadeDepthLimit: 3,
		},
	}
}
