package models

// CategoryGroup is a top-level grouping of job categories (e.g., development, design)
type CategoryGroup struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Categories  []Category `yaml:"categories" json:"categories"`
}

// Category is the catalog entry a Post references through CategoryID
type Category struct {
	ID      string `yaml:"id" json:"id"` // "development/backend"
	Name    string `yaml:"name" json:"name"`
	GroupID string `yaml:"-" json:"group_id"`
}
