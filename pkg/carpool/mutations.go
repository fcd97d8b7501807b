package carpool

import (
	"context"

	"github.com/covoit/carpool-sdk/pkg/account"
)

func (c *Client) CreateCommunity(ctx context.Context, req *account.CommunityRequest) (*account.Community, error) {
	return mutate(ctx, c, CreateCommunity, func(ctx context.Context) (*account.Community, error) {
		return c.Account.CreateCommunity(ctx, req)
	})
}

func (c *Client) JoinCommunity(ctx context.Context, communityID int64) (*account.Membership, error) {
	return mutate(ctx, c, JoinCommunity, func(ctx context.Context) (*account.Membership, error) {
		return c.Account.JoinCommunity(ctx, communityID)
	})
}

func (c *Client) LeaveCommunity(ctx context.Context, communityID int64) error {
	_, err := mutate(ctx, c, LeaveCommunity, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Account.LeaveCommunity(ctx, communityID)
	})
	return err
}

func (c *Client) CreateTrip(ctx context.Context, req *account.TripRequest) (*account.Trip, error) {
	return mutate(ctx, c, CreateTrip, func(ctx context.Context) (*account.Trip, error) {
		return c.Account.CreateTrip(ctx, req)
	})
}

func (c *Client) BookTrip(ctx context.Context, tripID int64, req *account.BookingRequest) (*account.Booking, error) {
	return mutate(ctx, c, BookTrip, func(ctx context.Context) (*account.Booking, error) {
		return c.Account.BookTrip(ctx, tripID, req)
	})
}

func (c *Client) ConfirmBooking(ctx context.Context, bookingID int64) (*account.Booking, error) {
	return mutate(ctx, c, ConfirmBooking, func(ctx context.Context) (*account.Booking, error) {
		return c.Account.ConfirmBooking(ctx, bookingID)
	})
}

func (c *Client) CancelBooking(ctx context.Context, bookingID int64) (*account.Booking, error) {
	return mutate(ctx, c, CancelBooking, func(ctx context.Context) (*account.Booking, error) {
		return c.Account.CancelBooking(ctx, bookingID)
	})
}

func (c *Client) CreateVehicle(ctx context.Context, req *account.VehicleRequest) (*account.Vehicle, error) {
	return mutate(ctx, c, CreateVehicle, func(ctx context.Context) (*account.Vehicle, error) {
		return c.Account.CreateVehicle(ctx, req)
	})
}

func (c *Client) UpdateVehicle(ctx context.Context, vehicleID int64, req *account.VehicleRequest) (*account.Vehicle, error) {
	return mutate(ctx, c, UpdateVehicle, func(ctx context.Context) (*account.Vehicle, error) {
		return c.Account.UpdateVehicle(ctx, vehicleID, req)
	})
}

func (c *Client) DeleteVehicle(ctx context.Context, vehicleID int64) error {
	_, err := mutate(ctx, c, DeleteVehicle, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Account.DeleteVehicle(ctx, vehicleID)
	})
	return err
}

// RateUser rates a participant of a completed trip.
func (c *Client) RateUser(ctx context.Context, tripID, userID int64, req *account.RatingRequest) (*account.Rating, error) {
	return mutate(ctx, c, RateUser, func(ctx context.Context) (*account.Rating, error) {
		return c.Account.RateUser(ctx, tripID, userID, req)
	})
}

// UpdateProfile edits the user's profile and refreshes the session's copy of it.
func (c *Client) UpdateProfile(ctx context.Context, update *account.ProfileUpdate) (*account.User, error) {
	user, err := mutate(ctx, c, UpdateProfile, func(ctx context.Context) (*account.User, error) {
		return c.Account.UpdateProfile(ctx, update)
	})
	if err != nil {
		return nil, err
	}
	c.Session.UpdateUser(user)
	return user, nil
}
