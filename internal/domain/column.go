package domain

// ColumnDef 表格列定义（可见性/宽度/顺序由操作员定制并持久化）
// Order is implicit in list position. IDs are unique within a layout.
type ColumnDef struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Field     string `json:"field"`
	Visible   bool   `json:"visible"`
	Width     int    `json:"width"`
	Sortable  bool   `json:"sortable"`
	Resizable bool   `json:"resizable"`
}

// CloneColumns returns a deep copy so callers can hand out layouts
// without exposing internal state to mutation.
func CloneColumns(cols []ColumnDef) []ColumnDef {
	out := make([]ColumnDef, len(cols))
	copy(out, cols)
	return out
}
