package model

// GuidanceAction 是指导页上展示的推荐操作。
type GuidanceAction struct {
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Priority    string `json:"priority" mapstructure:"priority"` // high / medium / low
	Document    string `json:"document" mapstructure:"document"`
}

// GuidanceResource 是指导页上的学习资源条目。
type GuidanceResource struct {
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Category    string `json:"category" mapstructure:"category"`
	Link        string `json:"link" mapstructure:"link"`
}

// Guidance 是会话开始时注入的静态指导内容。
type Guidance struct {
	Actions   []GuidanceAction   `json:"actions" mapstructure:"actions"`
	Resources []GuidanceResource `json:"resources" mapstructure:"resources"`
}
