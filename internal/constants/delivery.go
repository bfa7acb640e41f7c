package constants

// DeliveryType identifies one of the delivery-method variants that share the
// allocation engine. Each variant supplies its own group list and weight matrix.
type DeliveryType string

const (
	// DeliveryCity allocates a single city-wide group.
	DeliveryCity DeliveryType = "city"

	// DeliveryCounty allocates per county.
	DeliveryCounty DeliveryType = "county"

	// DeliveryMarket allocates per market type with a proportional cohort split.
	DeliveryMarket DeliveryType = "market"

	// DeliveryUrbanRural allocates per urban/rural classification code.
	DeliveryUrbanRural DeliveryType = "urban-rural"

	// DeliveryBusinessFormat allocates per business-format category.
	DeliveryBusinessFormat DeliveryType = "business-format"
)

// AllDeliveryTypes lists every known delivery type in display order.
var AllDeliveryTypes = []DeliveryType{
	DeliveryCity,
	DeliveryCounty,
	DeliveryMarket,
	DeliveryUrbanRural,
	DeliveryBusinessFormat,
}

// Valid returns true if the delivery type is a recognized value.
func (d DeliveryType) Valid() bool {
	switch d {
	case DeliveryCity, DeliveryCounty, DeliveryMarket, DeliveryUrbanRural, DeliveryBusinessFormat:
		return true
	}
	return false
}

// String returns the string representation of the delivery type.
func (d DeliveryType) String() string {
	return string(d)
}
