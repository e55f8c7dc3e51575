package provider

import "strings"

// usAddress is a street address split into its components.
type usAddress struct {
	Street     string
	City       string
	State      string
	PostalCode string
}

// parseUSAddress splits a formatted US address of the shape
// "123 N Clark St, Chicago, IL 60614, USA" into components. Missing
// segments come back empty rather than failing; downstream resolution
// treats empty address fields as unknown.
func parseUSAddress(formatted string) usAddress {
	var addr usAddress

	parts := strings.Split(formatted, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) > 0 && (parts[len(parts)-1] == "USA" || parts[len(parts)-1] == "United States") {
		parts = parts[:len(parts)-1]
	}

	switch len(parts) {
	case 0:
		return addr
	case 1:
		addr.Street = parts[0]
		return addr
	case 2:
		addr.Street = parts[0]
		addr.City = parts[1]
	default:
		addr.Street = strings.Join(parts[:len(parts)-2], ", ")
		addr.City = parts[len(parts)-2]
		stateZip := strings.Fields(parts[len(parts)-1])
		if len(stateZip) > 0 {
			addr.State = stateZip[0]
		}
		if len(stateZip) > 1 {
			addr.PostalCode = stateZip[1]
		}
	}
	return addr
}
