package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/carpool"
	"github.com/covoit/carpool-sdk/pkg/protocol"
)

// ErrCommandNotImplemented indicates the gateway does not know how to run a command.
var ErrCommandNotImplemented = errors.New("command not implemented")

// RequestParameters holds the decoded JSON body of a request, merged with its path parameters.
type RequestParameters map[string]interface{}

// Action runs a mutation against a client and returns the value to render.
type Action func(ctx context.Context, c *carpool.Client) (interface{}, error)

// ExtractCommandAction maps a mutation name to the Action that performs it.
func ExtractCommandAction(command carpool.Mutation, params RequestParameters) (Action, error) {
	switch command {
	case carpool.CreateCommunity:
		var req account.CommunityRequest
		if err := params.decode(&req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.CreateCommunity(ctx, &req)
		}, nil
	case carpool.JoinCommunity:
		id, err := params.getID("id")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.JoinCommunity(ctx, id)
		}, nil
	case carpool.LeaveCommunity:
		id, err := params.getID("id")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return nil, c.LeaveCommunity(ctx, id)
		}, nil
	case carpool.CreateTrip:
		var req account.TripRequest
		if err := params.decode(&req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.CreateTrip(ctx, &req)
		}, nil
	case carpool.BookTrip:
		id, err := params.getID("id")
		if err != nil {
			return nil, err
		}
		var req account.BookingRequest
		if err := params.decode(&req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.BookTrip(ctx, id, &req)
		}, nil
	case carpool.ConfirmBooking:
		id, err := params.getID("id")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.ConfirmBooking(ctx, id)
		}, nil
	case carpool.CancelBooking:
		id, err := params.getID("id")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.CancelBooking(ctx, id)
		}, nil
	case carpool.CreateVehicle:
		var req account.VehicleRequest
		if err := params.decode(&req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.CreateVehicle(ctx, &req)
		}, nil
	case carpool.UpdateVehicle:
		id, err := params.getID("id")
		if err != nil {
			return nil, err
		}
		var req account.VehicleRequest
		if err := params.decode(&req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.UpdateVehicle(ctx, id, &req)
		}, nil
	case carpool.DeleteVehicle:
		id, err := params.getID("id")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return nil, c.DeleteVehicle(ctx, id)
		}, nil
	case carpool.RateUser:
		tripID, err := params.getID("trip_id")
		if err != nil {
			return nil, err
		}
		userID, err := params.getID("user_id")
		if err != nil {
			return nil, err
		}
		var req account.RatingRequest
		if err := params.decode(&req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.RateUser(ctx, tripID, userID, &req)
		}, nil
	case carpool.UpdateProfile:
		var update account.ProfileUpdate
		if err := params.decode(&update); err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *carpool.Client) (interface{}, error) {
			return c.UpdateProfile(ctx, &update)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCommandNotImplemented, command)
}

func (p RequestParameters) getString(key string, required bool) (string, error) {
	if value, ok := p[key]; ok {
		if s, ok := value.(string); ok {
			return s, nil
		}
		return "", invalidParamError(key)
	} else if !required {
		return "", nil
	}
	return "", missingParamError(key)
}

// getID reads a positive identifier. Path parameters arrive as strings and body parameters as
// JSON numbers; both are accepted.
func (p RequestParameters) getID(key string) (int64, error) {
	value, ok := p[key]
	if !ok {
		return 0, missingParamError(key)
	}
	var id int64
	switch v := value.(type) {
	case float64:
		id = int64(v)
		if float64(id) != v {
			return 0, invalidParamError(key)
		}
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, invalidParamError(key)
		}
		id = n
	default:
		return 0, invalidParamError(key)
	}
	if id <= 0 {
		return 0, invalidParamError(key)
	}
	return id, nil
}

// decode converts p into the request struct out.
func (p RequestParameters) decode(out interface{}) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return &protocol.ValidationError{Code: http.StatusBadRequest, Message: fmt.Sprintf("invalid request body: %s", err)}
	}
	return nil
}

func missingParamError(key string) error {
	return protocol.NewValidationError(key, "missing param")
}

func invalidParamError(key string) error {
	return protocol.NewValidationError(key, "invalid param")
}
