package carpool

import "github.com/covoit/carpool-sdk/pkg/cache"

// Resource names used as the first element of cache keys.
const (
	ResourceCommunities = "communities"
	ResourceCommunity   = "community"
	ResourceTrips       = "trips"
	ResourceTrip        = "trip"
	ResourceMyTrips     = "my-trips"
	ResourceBookings    = "bookings"
	ResourceVehicles    = "vehicles"
	ResourceRatings     = "ratings"
	ResourceRatingStats = "rating-stats"
	ResourceProfile     = "profile"
)

// Mutation names a kind of write.
type Mutation string

const (
	CreateCommunity Mutation = "create-community"
	JoinCommunity   Mutation = "join-community"
	LeaveCommunity  Mutation = "leave-community"
	CreateTrip      Mutation = "create-trip"
	BookTrip        Mutation = "book-trip"
	ConfirmBooking  Mutation = "confirm-booking"
	CancelBooking   Mutation = "cancel-booking"
	CreateVehicle   Mutation = "create-vehicle"
	UpdateVehicle   Mutation = "update-vehicle"
	DeleteVehicle   Mutation = "delete-vehicle"
	RateUser        Mutation = "rate-user"
	UpdateProfile   Mutation = "update-profile"
)

func prefixes(resources ...string) []cache.Key {
	keys := make([]cache.Key, len(resources))
	for i, r := range resources {
		keys[i] = cache.Key{r}
	}
	return keys
}

// InvalidationRules lists the cache prefixes each mutation invalidates once it succeeds. It must
// not be modified.
var InvalidationRules = map[Mutation][]cache.Key{
	CreateCommunity: prefixes(ResourceCommunities),
	JoinCommunity:   prefixes(ResourceCommunities, ResourceCommunity),
	LeaveCommunity:  prefixes(ResourceCommunities, ResourceCommunity),
	CreateTrip:      prefixes(ResourceTrips, ResourceMyTrips),
	BookTrip:        prefixes(ResourceTrip, ResourceTrips, ResourceBookings, ResourceMyTrips),
	ConfirmBooking:  prefixes(ResourceBookings, ResourceTrip, ResourceMyTrips),
	CancelBooking:   prefixes(ResourceBookings, ResourceTrip, ResourceTrips, ResourceMyTrips),
	CreateVehicle:   prefixes(ResourceVehicles),
	UpdateVehicle:   prefixes(ResourceVehicles),
	DeleteVehicle:   prefixes(ResourceVehicles),
	RateUser:        prefixes(ResourceRatings, ResourceRatingStats),
	UpdateProfile:   prefixes(ResourceProfile),
}
