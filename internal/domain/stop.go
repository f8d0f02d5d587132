package domain

// Represents one location to be visited in a tour.
// A Stop is immutable once added to a LocationSet; equality is by ID.
// ProviderRef is the opaque locator handed to external providers
// (an address to geocode or a "lon,lat" pair).
type Stop struct {
	ID          string
	Label       string
	Address     string
	ProviderRef string
}
