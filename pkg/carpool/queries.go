package carpool

import (
	"context"
	"net/url"
	"strconv"

	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/cache"
)

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

func kindParam(kind string) url.Values {
	if kind == "" {
		return nil
	}
	return url.Values{"type": {kind}}
}

// Profile returns the logged-in user's profile.
func (c *Client) Profile(ctx context.Context) (*account.User, error) {
	return query(ctx, c, cache.Key{ResourceProfile}, c.Account.Profile)
}

func (c *Client) Communities(ctx context.Context, filter account.CommunityFilter) (*account.Page[account.Community], error) {
	return query(ctx, c, cache.NewKey(ResourceCommunities, filter.Values()), func(ctx context.Context) (*account.Page[account.Community], error) {
		return c.Account.Communities(ctx, filter)
	})
}

func (c *Client) Community(ctx context.Context, communityID int64) (*account.Community, error) {
	return query(ctx, c, cache.Key{ResourceCommunity, id(communityID)}, func(ctx context.Context) (*account.Community, error) {
		return c.Account.Community(ctx, communityID)
	})
}

func (c *Client) CommunityMembers(ctx context.Context, communityID int64) (*account.Page[account.Membership], error) {
	return query(ctx, c, cache.Key{ResourceCommunity, id(communityID), "members"}, func(ctx context.Context) (*account.Page[account.Membership], error) {
		return c.Account.CommunityMembers(ctx, communityID)
	})
}

func (c *Client) CommunityStats(ctx context.Context, communityID int64) (*account.CommunityStats, error) {
	return query(ctx, c, cache.Key{ResourceCommunity, id(communityID), "stats"}, func(ctx context.Context) (*account.CommunityStats, error) {
		return c.Account.CommunityStats(ctx, communityID)
	})
}

func (c *Client) Trips(ctx context.Context, filter account.TripFilter) (*account.Page[account.Trip], error) {
	return query(ctx, c, cache.NewKey(ResourceTrips, filter.Values()), func(ctx context.Context) (*account.Page[account.Trip], error) {
		return c.Account.Trips(ctx, filter)
	})
}

func (c *Client) Trip(ctx context.Context, tripID int64) (*account.Trip, error) {
	return query(ctx, c, cache.Key{ResourceTrip, id(tripID)}, func(ctx context.Context) (*account.Trip, error) {
		return c.Account.Trip(ctx, tripID)
	})
}

// MyTrips lists trips the user drives ("driver"), rides in ("passenger"), or both ("").
func (c *Client) MyTrips(ctx context.Context, kind string) (*account.Page[account.Trip], error) {
	return query(ctx, c, cache.NewKey(ResourceMyTrips, kindParam(kind)), func(ctx context.Context) (*account.Page[account.Trip], error) {
		return c.Account.MyTrips(ctx, kind)
	})
}

// TripBookings lists bookings on a trip the user drives.
func (c *Client) TripBookings(ctx context.Context, tripID int64) (*account.Page[account.Booking], error) {
	return query(ctx, c, cache.Key{ResourceTrip, id(tripID), "bookings"}, func(ctx context.Context) (*account.Page[account.Booking], error) {
		return c.Account.TripBookings(ctx, tripID)
	})
}

func (c *Client) Bookings(ctx context.Context, status string) (*account.Page[account.Booking], error) {
	var params url.Values
	if status != "" {
		params = url.Values{"status": {status}}
	}
	return query(ctx, c, cache.NewKey(ResourceBookings, params), func(ctx context.Context) (*account.Page[account.Booking], error) {
		return c.Account.Bookings(ctx, status)
	})
}

func (c *Client) Vehicles(ctx context.Context) (*account.Page[account.Vehicle], error) {
	return query(ctx, c, cache.Key{ResourceVehicles}, c.Account.Vehicles)
}

// Ratings lists ratings the user "received" or "given".
func (c *Client) Ratings(ctx context.Context, kind string) (*account.Page[account.Rating], error) {
	return query(ctx, c, cache.NewKey(ResourceRatings, kindParam(kind)), func(ctx context.Context) (*account.Page[account.Rating], error) {
		return c.Account.MyRatings(ctx, kind)
	})
}

func (c *Client) UserRatings(ctx context.Context, userID int64) (*account.Page[account.Rating], error) {
	return query(ctx, c, cache.Key{ResourceRatings, "user", id(userID)}, func(ctx context.Context) (*account.Page[account.Rating], error) {
		return c.Account.UserRatings(ctx, userID, "")
	})
}

func (c *Client) UserRatingStats(ctx context.Context, userID int64) (*account.RatingStats, error) {
	return query(ctx, c, cache.Key{ResourceRatingStats, id(userID)}, func(ctx context.Context) (*account.RatingStats, error) {
		return c.Account.UserRatingStats(ctx, userID)
	})
}
