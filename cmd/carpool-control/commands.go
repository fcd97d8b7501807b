package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/carpool"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrInvalidTime     = errors.New("invalid time")
	ErrRequiresLogin   = errors.New("command requires a session; run login first")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

// output receives command results.
var output io.Writer = os.Stdout

// readSecret prompts for a password. Set by main.
var readSecret = func(prompt string) (string, error) {
	return "", fmt.Errorf("cannot prompt for %s", prompt)
}

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, client *carpool.Client, args map[string]string) error

type Command struct {
	help            string
	requiresSession bool // True if command requires a logged-in user
	args            []Argument
	optional        []Argument
	handler         Handler
}

// timeLayouts are accepted for trip times, in order. Times without a zone are local.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

// ParseTime reads a trip departure or arrival time.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: expected YYYY-MM-DD HH:MM", ErrInvalidTime)
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: expected YYYY-MM-DD HH:MM or RFC 3339, got %q", ErrInvalidTime, value)
}

// GetID parses a positive identifier argument.
func GetID(args map[string]string, name string) (int64, error) {
	id, err := strconv.ParseInt(args[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrCommandLineArgs, name)
	}
	return id, nil
}

// getInt parses an optional integer argument, returning fallback if it is absent.
func getInt(args map[string]string, name string, fallback int) (int, error) {
	value, ok := args[name]
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrCommandLineArgs, name)
	}
	return n, nil
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, string(encoded))
	return err
}

// show adapts a typed query or mutation result to a handler's return value.
func show[T any](result T, err error) error {
	if err != nil {
		return err
	}
	return printJSON(result)
}

func checkReadiness(commandName string, haveSession bool) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requiresSession && !haveSession {
		return nil, ErrRequiresLogin
	}
	return info, nil
}

func execute(ctx context.Context, client *carpool.Client, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(args[0], client.Current() != nil)
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, client, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var commands = map[string]*Command{
	"login": &Command{
		help: "Log in with EMAIL. Prompts for the password if it is not given.",
		args: []Argument{
			Argument{name: "EMAIL", help: "Account email address"},
		},
		optional: []Argument{
			Argument{name: "PASSWORD", help: "Account password"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			password, ok := args["PASSWORD"]
			if !ok {
				var err error
				if password, err = readSecret("Password"); err != nil {
					return err
				}
			}
			return show(client.Login(ctx, args["EMAIL"], password))
		},
	},
	"register": &Command{
		help: "Create an account and log in. Prompts for the password.",
		args: []Argument{
			Argument{name: "EMAIL", help: "Account email address"},
			Argument{name: "USERNAME", help: "Public user name"},
			Argument{name: "FIRST_NAME", help: "Given name"},
			Argument{name: "LAST_NAME", help: "Family name"},
		},
		optional: []Argument{
			Argument{name: "TYPE", help: "One of: driver, passenger (default), both"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			password, err := readSecret("Password")
			if err != nil {
				return err
			}
			confirm, err := readSecret("Confirm password")
			if err != nil {
				return err
			}
			req := account.RegisterRequest{
				Email:           args["EMAIL"],
				Username:        args["USERNAME"],
				FirstName:       args["FIRST_NAME"],
				LastName:        args["LAST_NAME"],
				UserType:        account.UserType(args["TYPE"]),
				Password:        password,
				PasswordConfirm: confirm,
			}
			return show(client.Register(ctx, &req))
		},
	},
	"logout": &Command{
		help: "End the session and forget persisted tokens",
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return client.Logout()
		},
	},
	"whoami": &Command{
		help:            "Print the current session",
		requiresSession: true,
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return printJSON(client.Current())
		},
	},
	"refresh": &Command{
		help: "Renew the session's access token using the persisted refresh token",
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return show(client.Refresh(ctx))
		},
	},
	"profile": &Command{
		help:            "Print the full profile of the logged-in user",
		requiresSession: true,
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return show(client.Profile(ctx))
		},
	},
	"communities": &Command{
		help:            "List communities",
		requiresSession: true,
		optional: []Argument{
			Argument{name: "SEARCH", help: "Text to search for in names and descriptions"},
			Argument{name: "TYPE", help: "One of: work, school, events, shopping, other"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return show(client.Communities(ctx, account.CommunityFilter{Search: args["SEARCH"], Type: args["TYPE"]}))
		},
	},
	"community": &Command{
		help:            "Show a community and its activity",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Community ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			community, err := client.Community(ctx, id)
			if err != nil {
				return err
			}
			stats, err := client.CommunityStats(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"community": community, "stats": stats})
		},
	},
	"members": &Command{
		help:            "List the members of a community",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Community ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return show(client.CommunityMembers(ctx, id))
		},
	},
	"create-community": &Command{
		help:            "Create a community",
		requiresSession: true,
		args: []Argument{
			Argument{name: "NAME", help: "Community name"},
			Argument{name: "TYPE", help: "One of: work, school, events, shopping, other"},
			Argument{name: "LOCATION", help: "Where members meet"},
		},
		optional: []Argument{
			Argument{name: "DESCRIPTION", help: "Free-form description"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			req := account.CommunityRequest{
				Name:          args["NAME"],
				CommunityType: args["TYPE"],
				Location:      args["LOCATION"],
				Description:   args["DESCRIPTION"],
			}
			return show(client.CreateCommunity(ctx, &req))
		},
	},
	"join": &Command{
		help:            "Join a community",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Community ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return show(client.JoinCommunity(ctx, id))
		},
	},
	"leave": &Command{
		help:            "Leave a community",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Community ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return client.LeaveCommunity(ctx, id)
		},
	},
	"trips": &Command{
		help:            "List upcoming trips with free seats",
		requiresSession: true,
		optional: []Argument{
			Argument{name: "COMMUNITY", help: "Restrict to a community ID"},
			Argument{name: "DATE", help: "Restrict to a departure date (YYYY-MM-DD)"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			filter := account.TripFilter{Date: args["DATE"], AvailableOnly: true}
			if _, ok := args["COMMUNITY"]; ok {
				id, err := GetID(args, "COMMUNITY")
				if err != nil {
					return err
				}
				filter.Community = id
			}
			return show(client.Trips(ctx, filter))
		},
	},
	"trip": &Command{
		help:            "Show a trip",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Trip ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return show(client.Trip(ctx, id))
		},
	},
	"my-trips": &Command{
		help:            "List trips you drive or ride in",
		requiresSession: true,
		optional: []Argument{
			Argument{name: "TYPE", help: "One of: driver, passenger"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return show(client.MyTrips(ctx, args["TYPE"]))
		},
	},
	"create-trip": &Command{
		help:            "Offer a trip",
		requiresSession: true,
		args: []Argument{
			Argument{name: "COMMUNITY", help: "Community ID"},
			Argument{name: "VEHICLE", help: "Vehicle ID"},
			Argument{name: "FROM", help: "Departure location"},
			Argument{name: "TO", help: "Arrival location"},
			Argument{name: "DEPARTURE", help: "Departure time (YYYY-MM-DD HH:MM)"},
			Argument{name: "ARRIVAL", help: "Estimated arrival time (YYYY-MM-DD HH:MM)"},
			Argument{name: "SEATS", help: "Seats offered (1-8)"},
		},
		optional: []Argument{
			Argument{name: "PRICE", help: "Price per seat (e.g., 4.50)"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			communityID, err := GetID(args, "COMMUNITY")
			if err != nil {
				return err
			}
			vehicleID, err := GetID(args, "VEHICLE")
			if err != nil {
				return err
			}
			departure, err := ParseTime(args["DEPARTURE"])
			if err != nil {
				return err
			}
			arrival, err := ParseTime(args["ARRIVAL"])
			if err != nil {
				return err
			}
			seats, err := getInt(args, "SEATS", 0)
			if err != nil {
				return err
			}
			req := account.TripRequest{
				CommunityID:          communityID,
				VehicleID:            vehicleID,
				DepartureLocation:    args["FROM"],
				ArrivalLocation:      args["TO"],
				DepartureTime:        departure,
				EstimatedArrivalTime: arrival,
				AvailableSeats:       seats,
				PricePerSeat:         args["PRICE"],
			}
			return show(client.CreateTrip(ctx, &req))
		},
	},
	"trip-bookings": &Command{
		help:            "List bookings on a trip you drive",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Trip ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return show(client.TripBookings(ctx, id))
		},
	},
	"book": &Command{
		help:            "Book seats on a trip",
		requiresSession: true,
		args: []Argument{
			Argument{name: "TRIP", help: "Trip ID"},
		},
		optional: []Argument{
			Argument{name: "SEATS", help: "Number of seats (default 1)"},
			Argument{name: "MESSAGE", help: "Message for the driver"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			tripID, err := GetID(args, "TRIP")
			if err != nil {
				return err
			}
			seats, err := getInt(args, "SEATS", 1)
			if err != nil {
				return err
			}
			return show(client.BookTrip(ctx, tripID, &account.BookingRequest{SeatsBooked: seats, Message: args["MESSAGE"]}))
		},
	},
	"bookings": &Command{
		help:            "List your bookings",
		requiresSession: true,
		optional: []Argument{
			Argument{name: "STATUS", help: "Either pending or confirmed"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return show(client.Bookings(ctx, args["STATUS"]))
		},
	},
	"confirm-booking": &Command{
		help:            "Accept a booking on a trip you drive",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Booking ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return show(client.ConfirmBooking(ctx, id))
		},
	},
	"cancel-booking": &Command{
		help:            "Cancel a booking",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Booking ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return show(client.CancelBooking(ctx, id))
		},
	},
	"vehicles": &Command{
		help:            "List your vehicles",
		requiresSession: true,
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return show(client.Vehicles(ctx))
		},
	},
	"add-vehicle": &Command{
		help:            "Register a vehicle",
		requiresSession: true,
		args: []Argument{
			Argument{name: "BRAND", help: "Manufacturer"},
			Argument{name: "MODEL", help: "Model name"},
			Argument{name: "YEAR", help: "Model year"},
			Argument{name: "PLATE", help: "License plate"},
		},
		optional: []Argument{
			Argument{name: "SEATS", help: "Passenger seats (default 4)"},
			Argument{name: "COLOR", help: "Body color"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			year, err := getInt(args, "YEAR", 0)
			if err != nil {
				return err
			}
			seats, err := getInt(args, "SEATS", 0)
			if err != nil {
				return err
			}
			req := account.VehicleRequest{
				Brand:        args["BRAND"],
				Model:        args["MODEL"],
				Year:         year,
				LicensePlate: args["PLATE"],
				Seats:        seats,
				Color:        args["COLOR"],
			}
			return show(client.CreateVehicle(ctx, &req))
		},
	},
	"remove-vehicle": &Command{
		help:            "Delete a vehicle",
		requiresSession: true,
		args: []Argument{
			Argument{name: "ID", help: "Vehicle ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			id, err := GetID(args, "ID")
			if err != nil {
				return err
			}
			return client.DeleteVehicle(ctx, id)
		},
	},
	"ratings": &Command{
		help:            "List ratings you received or gave",
		requiresSession: true,
		optional: []Argument{
			Argument{name: "TYPE", help: "One of: received (default), given"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			return show(client.Ratings(ctx, args["TYPE"]))
		},
	},
	"rate": &Command{
		help:            "Rate a participant of a completed trip",
		requiresSession: true,
		args: []Argument{
			Argument{name: "TRIP", help: "Trip ID"},
			Argument{name: "USER", help: "ID of the user to rate"},
			Argument{name: "SCORE", help: "Score from 1 to 5"},
		},
		optional: []Argument{
			Argument{name: "COMMENT", help: "Free-form comment"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			tripID, err := GetID(args, "TRIP")
			if err != nil {
				return err
			}
			userID, err := GetID(args, "USER")
			if err != nil {
				return err
			}
			score, err := getInt(args, "SCORE", 0)
			if err != nil {
				return err
			}
			return show(client.RateUser(ctx, tripID, userID, &account.RatingRequest{Score: score, Comment: args["COMMENT"]}))
		},
	},
	"stats": &Command{
		help:            "Show rating statistics for a user (yourself by default)",
		requiresSession: true,
		optional: []Argument{
			Argument{name: "USER", help: "User ID"},
		},
		handler: func(ctx context.Context, client *carpool.Client, args map[string]string) error {
			userID := client.Current().UserID
			if _, ok := args["USER"]; ok {
				var err error
				if userID, err = GetID(args, "USER"); err != nil {
					return err
				}
			}
			return show(client.UserRatingStats(ctx, userID))
		},
	},
}
