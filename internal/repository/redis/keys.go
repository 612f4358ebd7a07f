package redis

import "fmt"

const ns = "parkgate:v1"

func KeyFacilityOccupancy(facilityID int64) string {
	return fmt.Sprintf("%s:facility:%d:occupancy", ns, facilityID)
}

func KeyFacilitySpots(facilityID int64) string {
	return fmt.Sprintf("%s:facility:%d:spots", ns, facilityID)
}

func KeyFacilityList() string {
	return ns + ":facilities"
}

func KeyRateLimitPrefix(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelLifecycle() string {
	return ns + ":lifecycle"
}
