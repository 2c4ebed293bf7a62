package entity

// Expense categories offered by the entry form; rules may be scoped to one of them
const (
	CategoryTravel        = "Travel"
	CategoryMeals         = "Meals"
	CategoryAccommodation = "Accommodation"
	CategoryEquipment     = "Equipment"
	CategoryTransport     = "Transport"
	CategoryOther         = "Other"
)
