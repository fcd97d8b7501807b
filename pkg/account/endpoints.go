package account

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Login exchanges credentials for a token pair.
func (a *Account) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	credentials := map[string]string{"email": email, "password": password}
	return send[AuthResult](ctx, a, http.MethodPost, "auth/login/", credentials)
}

// Register creates an account and returns a token pair for it.
func (a *Account) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return send[AuthResult](ctx, a, http.MethodPost, "auth/register/", req)
}

// RefreshToken exchanges a refresh token for a new access token.
func (a *Account) RefreshToken(ctx context.Context, refresh string) (*TokenPair, error) {
	return send[TokenPair](ctx, a, http.MethodPost, "auth/token/refresh/", map[string]string{"refresh": refresh})
}

// Profile fetches the authenticated user's profile.
func (a *Account) Profile(ctx context.Context) (*User, error) {
	return get[User](ctx, a, "auth/profile/", nil)
}

// UpdateProfile applies a partial update to the authenticated user's profile.
func (a *Account) UpdateProfile(ctx context.Context, update *ProfileUpdate) (*User, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	return send[User](ctx, a, http.MethodPatch, "auth/profile/", update)
}

// Vehicles lists the authenticated user's vehicles.
func (a *Account) Vehicles(ctx context.Context) (*Page[Vehicle], error) {
	return get[Page[Vehicle]](ctx, a, "auth/vehicles/", nil)
}

// CreateVehicle registers a vehicle owned by the authenticated user.
func (a *Account) CreateVehicle(ctx context.Context, req *VehicleRequest) (*Vehicle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return send[Vehicle](ctx, a, http.MethodPost, "auth/vehicles/", req)
}

// UpdateVehicle applies a partial update to a vehicle.
func (a *Account) UpdateVehicle(ctx context.Context, id int64, req *VehicleRequest) (*Vehicle, error) {
	if err := req.ValidateUpdate(); err != nil {
		return nil, err
	}
	return send[Vehicle](ctx, a, http.MethodPatch, fmt.Sprintf("auth/vehicles/%d/", id), req)
}

// DeleteVehicle removes a vehicle.
func (a *Account) DeleteVehicle(ctx context.Context, id int64) error {
	return a.request(ctx, http.MethodDelete, fmt.Sprintf("auth/vehicles/%d/", id), nil, nil, nil)
}

// Communities lists communities matching filter.
func (a *Account) Communities(ctx context.Context, filter CommunityFilter) (*Page[Community], error) {
	return get[Page[Community]](ctx, a, "communities/", filter.Values())
}

// Community fetches a single community.
func (a *Account) Community(ctx context.Context, id int64) (*Community, error) {
	return get[Community](ctx, a, fmt.Sprintf("communities/%d/", id), nil)
}

// CreateCommunity creates a community administered by the authenticated user.
func (a *Account) CreateCommunity(ctx context.Context, req *CommunityRequest) (*Community, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return send[Community](ctx, a, http.MethodPost, "communities/", req)
}

// JoinCommunity adds the authenticated user to a community.
func (a *Account) JoinCommunity(ctx context.Context, id int64) (*Membership, error) {
	return send[Membership](ctx, a, http.MethodPost, fmt.Sprintf("communities/%d/join/", id), nil)
}

// LeaveCommunity removes the authenticated user from a community.
func (a *Account) LeaveCommunity(ctx context.Context, id int64) error {
	return a.request(ctx, http.MethodPost, fmt.Sprintf("communities/%d/leave/", id), nil, nil, nil)
}

// CommunityMembers lists a community's active memberships.
func (a *Account) CommunityMembers(ctx context.Context, id int64) (*Page[Membership], error) {
	return get[Page[Membership]](ctx, a, fmt.Sprintf("communities/%d/members/", id), nil)
}

// CommunityStats fetches activity counters for a community.
func (a *Account) CommunityStats(ctx context.Context, id int64) (*CommunityStats, error) {
	return get[CommunityStats](ctx, a, fmt.Sprintf("communities/%d/stats/", id), nil)
}

// Trips lists trips matching filter, ordered by departure time.
func (a *Account) Trips(ctx context.Context, filter TripFilter) (*Page[Trip], error) {
	return get[Page[Trip]](ctx, a, "trips/", filter.Values())
}

// Trip fetches a single trip.
func (a *Account) Trip(ctx context.Context, id int64) (*Trip, error) {
	return get[Trip](ctx, a, fmt.Sprintf("trips/%d/", id), nil)
}

// MyTrips lists the trips the authenticated user drives or rides in. The kind may be "driver",
// "passenger", or empty for both.
func (a *Account) MyTrips(ctx context.Context, kind string) (*Page[Trip], error) {
	query := url.Values{}
	if kind != "" {
		query.Set("type", kind)
	}
	return get[Page[Trip]](ctx, a, "trips/my-trips/", query)
}

// CreateTrip offers a new trip driven by the authenticated user.
func (a *Account) CreateTrip(ctx context.Context, req *TripRequest) (*Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return send[Trip](ctx, a, http.MethodPost, "trips/", req)
}

// TripBookings lists bookings on a trip. The server only returns bookings to the trip's driver.
func (a *Account) TripBookings(ctx context.Context, tripID int64) (*Page[Booking], error) {
	return get[Page[Booking]](ctx, a, fmt.Sprintf("trips/%d/bookings/", tripID), nil)
}

// Bookings lists the authenticated user's pending and confirmed bookings, optionally restricted to
// one status. The server has no booking list of its own: each trip the user rides in carries the
// user's booking, and the trip is attached to the booking it came from. Cancelled and completed
// bookings are not returned.
func (a *Account) Bookings(ctx context.Context, status string) (*Page[Booking], error) {
	trips, err := a.MyTrips(ctx, "passenger")
	if err != nil {
		return nil, err
	}
	page := &Page[Booking]{Results: []Booking{}}
	for i := range trips.Results {
		trip := trips.Results[i]
		if trip.UserBooking == nil || (status != "" && trip.UserBooking.Status != status) {
			continue
		}
		booking := *trip.UserBooking
		if booking.Trip == nil {
			trip.UserBooking = nil
			booking.Trip = &trip
		}
		page.Results = append(page.Results, booking)
	}
	page.Count = len(page.Results)
	return page, nil
}

// BookTrip reserves seats on a trip.
func (a *Account) BookTrip(ctx context.Context, tripID int64, req *BookingRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return send[Booking](ctx, a, http.MethodPost, fmt.Sprintf("trips/%d/book/", tripID), req)
}

// ConfirmBooking accepts a pending booking. Only the trip's driver may confirm.
func (a *Account) ConfirmBooking(ctx context.Context, bookingID int64) (*Booking, error) {
	return send[Booking](ctx, a, http.MethodPost, fmt.Sprintf("trips/bookings/%d/confirm/", bookingID), nil)
}

// CancelBooking cancels a booking. Either the passenger or the driver may cancel.
func (a *Account) CancelBooking(ctx context.Context, bookingID int64) (*Booking, error) {
	return send[Booking](ctx, a, http.MethodPost, fmt.Sprintf("trips/bookings/%d/cancel/", bookingID), nil)
}

// RateUser rates another participant of a completed trip.
func (a *Account) RateUser(ctx context.Context, tripID, userID int64, req *RatingRequest) (*Rating, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return send[Rating](ctx, a, http.MethodPost, fmt.Sprintf("ratings/trip/%d/user/%d/", tripID, userID), req)
}

// MyRatings lists ratings the authenticated user "received" (the default) or "given".
func (a *Account) MyRatings(ctx context.Context, kind string) (*Page[Rating], error) {
	query := url.Values{}
	if kind != "" {
		query.Set("type", kind)
	}
	return get[Page[Rating]](ctx, a, "ratings/my-ratings/", query)
}

// UserRatings lists ratings a user received. The kind may be "driver", "passenger", or empty.
func (a *Account) UserRatings(ctx context.Context, userID int64, kind string) (*Page[Rating], error) {
	query := url.Values{}
	if kind != "" {
		query.Set("type", kind)
	}
	return get[Page[Rating]](ctx, a, fmt.Sprintf("ratings/user/%d/", userID), query)
}

// UserRatingStats fetches aggregate rating statistics for a user.
func (a *Account) UserRatingStats(ctx context.Context, userID int64) (*RatingStats, error) {
	return get[RatingStats](ctx, a, fmt.Sprintf("ratings/user/%d/stats/", userID), nil)
}
