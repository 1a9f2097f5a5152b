package core

// Preset is a quick-add shortcut offered to clients.
type Preset struct {
	Label    string          `json:"label"`
	Type     TransactionType `json:"type"`
	Category string          `json:"category,omitempty"`
	Source   string          `json:"source,omitempty"`
}

// PopularPresets lists the shortcuts shown on the quick-add bar.
func PopularPresets() []Preset {
	return []Preset{
		{Label: "Food", Type: Expense, Category: "Food"},
		{Label: "Travel", Type: Expense, Category: "Travel"},
		{Label: "Health", Type: Expense, Category: "Health"},
		{Label: "Salary", Type: Income, Source: "Salary"},
	}
}
