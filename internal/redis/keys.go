package redisx

import "fmt"

const ns = "eventbook:v1"

func KeyEventAvailability(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:availability", ns, eventID)
}

func KeyLoyaltyBalance(customerID string) string {
	return fmt.Sprintf("%s:loyalty:%s", ns, customerID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelBookingsChanged() string {
	return ns + ":bookings:changed"
}
