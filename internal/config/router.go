package config

// RoutingRule is one entry of the ordered policy list Router.decide
// evaluates in order (§4.1). The first rule whose TaskType and Complexity
// both match wins.
type RoutingRule struct {
	TaskType   string `yaml:"task_type"`
	Complexity string `yaml:"complexity"` // "any" | "easy" | "hard"
	Worker     string `yaml:"worker"`
	Model      string `yaml:"model"`
	Reason     string `yaml:"reason"`
}

// CostOverride replaces the default per-feature cost cap when a task's
// path matches Glob (§4.1).
type CostOverride struct {
	PathGlob    string  `yaml:"path_glob"`
	MaxCostUSD  float64 `yaml:"max_cost_usd"`
	Description string  `yaml:"description"`
}

// RouterConfig is the Router's policy input.
type RouterConfig struct {
	Rules                []RoutingRule  `yaml:"rules"`
	CostOverrides        []CostOverride `yaml:"cost_overrides"`
	MaxCostPerFeatureUSD float64        `yaml:"max_cost_per_feature_usd"`
	CacheSize            int            `yaml:"cache_size"`
	CheapestModel        string         `yaml:"cheapest_model"`
	PolicyPath           string         `yaml:"-"` // set at load time for fsnotify watching
}

// DefaultRouterConfig matches the worked examples in §8 (scenarios A/B/F).
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Rules: []RoutingRule{
			{TaskType: "write_test", Complexity: "easy", Worker: "scribe", Model: "cheap-tier", Reason: "simple test authoring"},
			{TaskType: "write_test", Complexity: "hard", Worker: "scribe", Model: "expensive-tier", Reason: "complex flow authoring"},
			{TaskType: "pre_validate", Complexity: "any", Worker: "critic", Model: "cheap-tier", Reason: "static review is always cheap"},
			{TaskType: "execute_test", Complexity: "any", Worker: "runner", Model: "n/a", Reason: "execution has no model cost"},
			{TaskType: "fix_bug", Complexity: "easy", Worker: "medic", Model: "cheap-tier", Reason: "straightforward repair"},
			{TaskType: "fix_bug", Complexity: "hard", Worker: "medic", Model: "expensive-tier", Reason: "complex repair needs stronger reasoning"},
			{TaskType: "validate", Complexity: "any", Worker: "gemini", Model: "vision-tier", Reason: "browser + screenshot validation"},
		},
		CostOverrides: []CostOverride{
			{PathGlob: "**/payment/**", MaxCostUSD: 3.00, Description: "critical payment flow override"},
			{PathGlob: "**/checkout/**", MaxCostUSD: 3.00, Description: "critical checkout flow override"},
			{PathGlob: "**/*-critical*", MaxCostUSD: 3.00, Description: "explicit --critical intent flag"},
		},
		MaxCostPerFeatureUSD: 0.50,
		CacheSize:            1000,
		CheapestModel:        "cheap-tier",
	}
}
