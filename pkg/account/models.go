package account

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// UserType describes how a member takes part in trips.
type UserType string

const (
	UserTypeDriver    UserType = "driver"
	UserTypePassenger UserType = "passenger"
	UserTypeBoth      UserType = "both"
)

// Valid returns true if t is one of the user types the server accepts.
func (t UserType) Valid() bool {
	return t == UserTypeDriver || t == UserTypePassenger || t == UserTypeBoth
}

// User is the profile of a registered member.
type User struct {
	ID             int64    `json:"id"`
	Email          string   `json:"email"`
	Username       string   `json:"username"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Phone          string   `json:"phone"`
	UserType       UserType `json:"user_type"`
	ProfilePicture *string  `json:"profile_picture,omitempty"`
	Bio            string   `json:"bio"`
	DateOfBirth    *string  `json:"date_of_birth,omitempty"`
	IsVerified     bool     `json:"is_verified"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// DisplayName returns the user's full name, falling back to the username and then the email.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Vehicle is a car registered by a driver.
type Vehicle struct {
	ID           int64  `json:"id"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Color        string `json:"color"`
	LicensePlate string `json:"license_plate"`
	Seats        int    `json:"seats"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Community groups members who share trips, such as colleagues commuting to the same site.
type Community struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	CommunityType string  `json:"community_type"`
	Location      string  `json:"location"`
	Image         *string `json:"image,omitempty"`
	Creator       *User   `json:"creator,omitempty"`
	MemberCount   int     `json:"member_count"`
	IsPrivate     bool    `json:"is_private"`
	MaxMembers    int     `json:"max_members"`
	IsMember      bool    `json:"is_member"`
	UserRole      *string `json:"user_role,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// Membership links a user to a community.
type Membership struct {
	ID        int64      `json:"id"`
	User      *User      `json:"user,omitempty"`
	Community *Community `json:"community,omitempty"`
	Role      string     `json:"role"`
	JoinedAt  string     `json:"joined_at,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// CommunityStats summarizes a community's activity.
type CommunityStats struct {
	TotalMembers  int `json:"total_members"`
	TotalTrips    int `json:"total_trips"`
	ActiveMembers int `json:"active_members"`
	RecentTrips   int `json:"recent_trips"`
}

// Trip is a journey offered by a driver. Decimal amounts are kept in the server's string form.
type Trip struct {
	ID                   int64      `json:"id"`
	Driver               *User      `json:"driver,omitempty"`
	Community            *Community `json:"community,omitempty"`
	Vehicle              *Vehicle   `json:"vehicle,omitempty"`
	DepartureLocation    string     `json:"departure_location"`
	DepartureLatitude    *string    `json:"departure_latitude,omitempty"`
	DepartureLongitude   *string    `json:"departure_longitude,omitempty"`
	ArrivalLocation      string     `json:"arrival_location"`
	ArrivalLatitude      *string    `json:"arrival_latitude,omitempty"`
	ArrivalLongitude     *string    `json:"arrival_longitude,omitempty"`
	DepartureTime        time.Time  `json:"departure_time"`
	EstimatedArrivalTime time.Time  `json:"estimated_arrival_time"`
	AvailableSeats       int        `json:"available_seats"`
	RemainingSeats       int        `json:"remaining_seats"`
	PricePerSeat         string     `json:"price_per_seat"`
	Description          string     `json:"description"`
	Recurring            bool       `json:"recurring"`
	RecurringDays        string     `json:"recurring_days"`
	Status               string     `json:"status"`
	IsFull               bool       `json:"is_full"`
	IsDriver             bool       `json:"is_driver"`
	UserBooking          *Booking   `json:"user_booking,omitempty"`
	CreatedAt            string     `json:"created_at,omitempty"`
}

// Booking is a passenger's reservation on a trip.
type Booking struct {
	ID              int64  `json:"id"`
	Trip            *Trip  `json:"trip,omitempty"`
	Passenger       *User  `json:"passenger,omitempty"`
	SeatsBooked     int    `json:"seats_booked"`
	PickupLocation  string `json:"pickup_location"`
	DropoffLocation string `json:"dropoff_location"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// Rating is a score one trip participant gave another.
type Rating struct {
	ID            int64  `json:"id"`
	Trip          *Trip  `json:"trip,omitempty"`
	Rater         *User  `json:"rater,omitempty"`
	RatedUser     *User  `json:"rated_user,omitempty"`
	RatingType    string `json:"rating_type"`
	Score         int    `json:"score"`
	Comment       string `json:"comment"`
	Punctuality   *int   `json:"punctuality,omitempty"`
	Communication *int   `json:"communication,omitempty"`
	Cleanliness   *int   `json:"cleanliness,omitempty"`
	Safety        *int   `json:"safety,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// RatingStats aggregates the ratings a user received.
type RatingStats struct {
	User                   *User  `json:"user,omitempty"`
	DriverAverageRating    string `json:"driver_average_rating"`
	DriverTotalRatings     int    `json:"driver_total_ratings"`
	PassengerAverageRating string `json:"passenger_average_rating"`
	PassengerTotalRatings  int    `json:"passenger_total_ratings"`
	OverallAverageRating   string `json:"overall_average_rating"`
	TotalRatings           int    `json:"total_ratings"`
	UpdatedAt              string `json:"updated_at,omitempty"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// UnmarshalJSON accepts both the paginated envelope and a bare JSON array, since list endpoints
// are only paginated when the server enables it.
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var results []T
		if err := json.Unmarshal(data, &results); err != nil {
			return err
		}
		*p = Page[T]{Count: len(results), Results: results}
		return nil
	}
	var e struct {
		Count    int     `json:"count"`
		Next     *string `json:"next"`
		Previous *string `json:"previous"`
		Results  []T     `json:"results"`
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	*p = Page[T]{Count: e.Count, Next: e.Next, Previous: e.Previous, Results: e.Results}
	return nil
}

// AuthResult is returned by the login and registration endpoints.
type AuthResult struct {
	User    User   `json:"user"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenPair is returned by the token refresh endpoint. Refresh is empty unless the server rotates
// refresh tokens.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// CommunityFilter narrows the community list.
type CommunityFilter struct {
	Search   string
	Type     string
	Location string
	Page     int
}

// Values returns f encoded as query parameters.
func (f CommunityFilter) Values() url.Values {
	v := url.Values{}
	setIfNotEmpty(v, "search", f.Search)
	setIfNotEmpty(v, "type", f.Type)
	setIfNotEmpty(v, "location", f.Location)
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	return v
}

// TripFilter narrows the trip list.
type TripFilter struct {
	Community     int64
	Departure     string
	Arrival       string
	Date          string // YYYY-MM-DD
	AvailableOnly bool
	Page          int
}

// Values returns f encoded as query parameters.
func (f TripFilter) Values() url.Values {
	v := url.Values{}
	if f.Community > 0 {
		v.Set("community", strconv.FormatInt(f.Community, 10))
	}
	setIfNotEmpty(v, "departure", f.Departure)
	setIfNotEmpty(v, "arrival", f.Arrival)
	setIfNotEmpty(v, "date", f.Date)
	if f.AvailableOnly {
		v.Set("available_only", "true")
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	return v
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
