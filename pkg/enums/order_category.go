package enums

import "fmt"

// OrderCategory identifies which product family an order belongs to.
type OrderCategory string

const (
	OrderCategoryPhone OrderCategory = "phone"
	OrderCategoryEsim  OrderCategory = "esim"
	OrderCategorySmm   OrderCategory = "smm"
)

var validOrderCategories = []OrderCategory{
	OrderCategoryPhone,
	OrderCategoryEsim,
	OrderCategorySmm,
}

// String implements fmt.Stringer.
func (c OrderCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known OrderCategory.
func (c OrderCategory) IsValid() bool {
	for _, candidate := range validOrderCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseOrderCategory converts raw input into an OrderCategory.
func ParseOrderCategory(value string) (OrderCategory, error) {
	for _, candidate := range validOrderCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order category %q", value)
}
