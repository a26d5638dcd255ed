package registry

import "github.com/conneroisu/sectionloader/internal/types"

// DefaultColumns is the column projection handed to the builder when a spec
// does not declare its own.
func DefaultColumns() []types.Column {
	return []types.Column{
		{Name: "Column1", DisplayName: "Column 1"},
		{Name: "Column2", DisplayName: "Column 2"},
		{Name: "Column3", DisplayName: "Column 3"},
	}
}

func eq(column, value string) types.Filter {
	return types.Filter{Column: column, Operator: types.OperatorEq, Value: value}
}

// Defaults returns the table mappings used when no registry is configured.
func Defaults() []TokenSpec {
	const master = "Master Table"

	return []TokenSpec{
		{ID: "pick-table-1", SourceName: master, Filters: []types.Filter{
			eq("Title", "'Request pick up tab intro-new'"),
		}},
		{ID: "feed-table-1", SourceName: master, Filters: []types.Filter{
			eq("Title", "'Feedback tab content'"),
		}},
		{ID: "sani-table-1", SourceName: master, Filters: []types.Filter{
			eq("Title", "'Sanitization tab content'"),
		}},
		{ID: "autopublish-table-1", SourceName: master, Filters: []types.Filter{
			eq("Title", "'Publishing tab intro'"),
		}},
		{ID: "validation-Project-table-1", SourceName: master, Filters: []types.Filter{
			eq("Title", "'Validation'"),
			eq("SubTitle", "'Project'"),
			eq("Category", "'Content in and out scope'"),
		}},
		{ID: "validation-Project-table-2", SourceName: master, Filters: []types.Filter{
			eq("Title", "'Validation'"),
			eq("SubTitle", "'Project'"),
			eq("Category", "'Request completeness - Project'"),
		}},
		{ID: "validation-Project-table-3", SourceName: master, Filters: []types.Filter{
			eq("Title", "'Validation'"),
			eq("SubTitle", "'Project'"),
			eq("Category", "'Compliance/Copyright - Project'"),
		}},
	}
}
