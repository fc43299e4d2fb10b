// Package vocab holds the closed vocabularies used when reporting an
// observation. They mirror the plant safety handbook and change rarely;
// treating them as code keeps validation cheap and exhaustive.
package vocab

import "sort"

var Locations = []string{"Lagos Plant", "Aba Plant", "Agbara Plant"}

var Units = []string{"Canline 1", "Canline 2", "Endline 1", "Warehouse", "Maintenance"}

var AreaManagers = []string{"John Doe", "Sarah Smith", "Michael Chen", "Olu Bakare"}

var Departments = []string{"Production", "Safety", "Engineering", "Logistics", "Quality"}

// categories maps each category to its allowed subcategories.
var categories = map[string][]string{
	"Body Position": {
		"Ascending/Descending", "Grip/Force", "Lifting/Lowering",
		"Line of fire", "Pivoting/Twisting", "Posture",
		"Risk of burns", "Risk of falling", "Others",
	},
	"Food Safety": {
		"CAN Contamination", "External Openings", "Access Control",
		"Raw Material Contamination", "Pest Infestation", "Personnel Hygiene",
	},
	"Peoples Initial Reaction": {
		"Adapting the task", "Adjusting PPE", "Changing position",
		"Stopping the task", "Others",
	},
	"Pollution": {
		"Air", "Land", "Water", "Others",
	},
	"PPE": {
		"Body", "Eyes and face", "Feet and legs", "Hands and arms",
		"Head", "Hearing", "Respiratory System", "Others",
	},
	"Procedures": {
		"Adequate but no followed", "Inadequate", "LOTO/Energy Isolation",
		"There are no written procedures", "Others",
	},
	"Tools & Equipment": {
		"Appropriate for the task/use", "Selection/condition",
		"Used correctly", "Others",
	},
	"Work Environment": {
		"Appropriate for the task/use", "Selection/condition",
		"Used correctly", "Others",
	},
}

// Categories returns the category names in sorted order.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SubCategories returns the allowed subcategories for a category, or nil
// for an unknown category.
func SubCategories(category string) []string {
	return categories[category]
}

// ValidSubCategory reports whether sub belongs to category's set.
func ValidSubCategory(category, sub string) bool {
	for _, s := range categories[category] {
		if s == sub {
			return true
		}
	}
	return false
}

// KnownLocation reports whether loc is a recognized plant location.
func KnownLocation(loc string) bool { return contains(Locations, loc) }

// KnownUnit reports whether unit is a recognized unit/line.
func KnownUnit(unit string) bool { return contains(Units, unit) }

// KnownAreaManager reports whether name is a recognized area manager.
func KnownAreaManager(name string) bool { return contains(AreaManagers, name) }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
