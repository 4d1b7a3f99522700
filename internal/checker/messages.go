package checker

import "errors"

// UserMessage renders end-user guidance for err.
func UserMessage(err error) string {
	if errors.Is(err, ErrEmptyAddress) {
		return "Please enter an address to check."
	}
	switch Code(err) {
	case "":
		return ""
	case CodeNotReady:
		return "Opportunity Zone data is still loading. Please try again in a moment."
	case CodeLoadFailed:
		return "Opportunity Zone data could not be loaded. Please try again later."
	case CodeInvalidInput:
		return "Invalid coordinates. Latitude must be between -90 and 90 and longitude between -180 and 180."
	case CodeGeocodeAmbiguous:
		return `Building/landmark names may not work. Please try a specific street address with number, for example "4202 E Fowler Ave, Tampa, FL".`
	case CodeAddressNotFound:
		return "No address match found. Include the full street address with number and check that the address exists."
	case CodeGeocodeUnavailable:
		return "Service temporarily unavailable. Please try again in a moment or check by coordinates instead."
	default:
		return "Unable to determine if this location is in an Opportunity Zone."
	}
}
