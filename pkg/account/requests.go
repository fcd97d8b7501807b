package account

import (
	"net/mail"
	"time"

	"github.com/covoit/carpool-sdk/pkg/protocol"
)

// Limits enforced by the server. Requests are checked locally so that obviously invalid input
// does not cost a round-trip.
const (
	MinPasswordLength = 8
	MinTripSeats      = 1
	MaxTripSeats      = 8
	MinScore          = 1
	MaxScore          = 5
)

// RegisterRequest holds the fields required to create an account.
type RegisterRequest struct {
	Email           string   `json:"email"`
	Username        string   `json:"username"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Phone           string   `json:"phone,omitempty"`
	UserType        UserType `json:"user_type"`
	Password        string   `json:"password"`
	PasswordConfirm string   `json:"password_confirm"`
}

func (r *RegisterRequest) Validate() error {
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return protocol.NewValidationError("email", "invalid email address")
	}
	if r.Username == "" {
		return protocol.NewValidationError("username", "required")
	}
	if r.FirstName == "" || r.LastName == "" {
		return protocol.NewValidationError("name", "first and last name are required")
	}
	if r.UserType == "" {
		r.UserType = UserTypePassenger
	}
	if !r.UserType.Valid() {
		return protocol.NewValidationError("user_type", "must be driver, passenger or both")
	}
	if len(r.Password) < MinPasswordLength {
		return protocol.NewValidationError("password", "must contain at least 8 characters")
	}
	if r.PasswordConfirm == "" {
		r.PasswordConfirm = r.Password
	}
	if r.PasswordConfirm != r.Password {
		return protocol.NewValidationError("password_confirm", "passwords do not match")
	}
	return nil
}

// ProfileUpdate lists the profile fields a user may change. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName   *string   `json:"first_name,omitempty"`
	LastName    *string   `json:"last_name,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Bio         *string   `json:"bio,omitempty"`
	UserType    *UserType `json:"user_type,omitempty"`
	DateOfBirth *string   `json:"date_of_birth,omitempty"`
}

func (p *ProfileUpdate) Validate() error {
	if p.UserType != nil && !p.UserType.Valid() {
		return protocol.NewValidationError("user_type", "must be driver, passenger or both")
	}
	if p.Bio != nil && len(*p.Bio) > 500 {
		return protocol.NewValidationError("bio", "must contain at most 500 characters")
	}
	return nil
}

// CommunityRequest creates a community.
type CommunityRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	CommunityType string `json:"community_type"`
	Location      string `json:"location"`
	IsPrivate     bool   `json:"is_private"`
	MaxMembers    int    `json:"max_members,omitempty"`
}

var communityTypes = map[string]bool{
	"work":     true,
	"school":   true,
	"events":   true,
	"shopping": true,
	"other":    true,
}

func (r *CommunityRequest) Validate() error {
	if r.Name == "" || len(r.Name) > 100 {
		return protocol.NewValidationError("name", "must contain between 1 and 100 characters")
	}
	if !communityTypes[r.CommunityType] {
		return protocol.NewValidationError("community_type", "must be work, school, events, shopping or other")
	}
	if r.Location == "" {
		return protocol.NewValidationError("location", "required")
	}
	if r.MaxMembers < 0 {
		return protocol.NewValidationError("max_members", "must not be negative")
	}
	return nil
}

// TripRequest offers a new trip.
type TripRequest struct {
	CommunityID          int64     `json:"community_id"`
	VehicleID            int64     `json:"vehicle_id"`
	DepartureLocation    string    `json:"departure_location"`
	DepartureLatitude    *string   `json:"departure_latitude,omitempty"`
	DepartureLongitude   *string   `json:"departure_longitude,omitempty"`
	ArrivalLocation      string    `json:"arrival_location"`
	ArrivalLatitude      *string   `json:"arrival_latitude,omitempty"`
	ArrivalLongitude     *string   `json:"arrival_longitude,omitempty"`
	DepartureTime        time.Time `json:"departure_time"`
	EstimatedArrivalTime time.Time `json:"estimated_arrival_time"`
	AvailableSeats       int       `json:"available_seats"`
	PricePerSeat         string    `json:"price_per_seat,omitempty"`
	Description          string    `json:"description,omitempty"`
	Recurring            bool      `json:"recurring"`
	RecurringDays        string    `json:"recurring_days,omitempty"`
}

func (r *TripRequest) Validate() error {
	if r.CommunityID <= 0 {
		return protocol.NewValidationError("community_id", "required")
	}
	if r.VehicleID <= 0 {
		return protocol.NewValidationError("vehicle_id", "required")
	}
	if r.DepartureLocation == "" || r.ArrivalLocation == "" {
		return protocol.NewValidationError("location", "departure and arrival are required")
	}
	if r.AvailableSeats < MinTripSeats || r.AvailableSeats > MaxTripSeats {
		return protocol.NewValidationError("available_seats", "must be between 1 and 8")
	}
	if r.DepartureTime.IsZero() || r.EstimatedArrivalTime.IsZero() {
		return protocol.NewValidationError("departure_time", "departure and arrival times are required")
	}
	if !r.EstimatedArrivalTime.After(r.DepartureTime) {
		return protocol.NewValidationError("estimated_arrival_time", "must be after departure time")
	}
	return nil
}

// BookingRequest reserves seats on a trip.
type BookingRequest struct {
	SeatsBooked     int    `json:"seats_booked"`
	PickupLocation  string `json:"pickup_location,omitempty"`
	DropoffLocation string `json:"dropoff_location,omitempty"`
	Message         string `json:"message,omitempty"`
}

func (r *BookingRequest) Validate() error {
	if r.SeatsBooked == 0 {
		r.SeatsBooked = 1
	}
	if r.SeatsBooked < 1 {
		return protocol.NewValidationError("seats_booked", "must be at least 1")
	}
	return nil
}

// VehicleRequest registers or updates a vehicle. For updates, zero-valued fields are omitted.
type VehicleRequest struct {
	Brand        string `json:"brand,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         int    `json:"year,omitempty"`
	Color        string `json:"color,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
	Seats        int    `json:"seats,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"`
}

// Validate checks a request that creates a vehicle.
func (r *VehicleRequest) Validate() error {
	if r.Brand == "" || r.Model == "" {
		return protocol.NewValidationError("vehicle", "brand and model are required")
	}
	if r.LicensePlate == "" {
		return protocol.NewValidationError("license_plate", "required")
	}
	if r.Year <= 0 {
		return protocol.NewValidationError("year", "required")
	}
	if r.Seats == 0 {
		r.Seats = 4
	}
	return r.ValidateUpdate()
}

// ValidateUpdate checks a partial update.
func (r *VehicleRequest) ValidateUpdate() error {
	if r.Seats < 0 {
		return protocol.NewValidationError("seats", "must be at least 1")
	}
	return nil
}

// RatingRequest rates a trip participant.
type RatingRequest struct {
	Score         int    `json:"score"`
	Comment       string `json:"comment,omitempty"`
	Punctuality   *int   `json:"punctuality,omitempty"`
	Communication *int   `json:"communication,omitempty"`
	Cleanliness   *int   `json:"cleanliness,omitempty"`
	Safety        *int   `json:"safety,omitempty"`
}

func (r *RatingRequest) Validate() error {
	if !validScore(r.Score) {
		return protocol.NewValidationError("score", "must be between 1 and 5")
	}
	criteria := map[string]*int{
		"punctuality":   r.Punctuality,
		"communication": r.Communication,
		"cleanliness":   r.Cleanliness,
		"safety":        r.Safety,
	}
	for name, value := range criteria {
		if value != nil && !validScore(*value) {
			return protocol.NewValidationError(name, "must be between 1 and 5")
		}
	}
	return nil
}

func validScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}
