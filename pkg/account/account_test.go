package account_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/protocol"
)

const baseURL = "https://carpool.example.com/api/"

type staticToken string

func (s staticToken) AccessToken() (string, bool) {
	return string(s), s != ""
}

func decodeBody(r *http.Request) map[string]interface{} {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	Expect(err).ToNot(HaveOccurred())
	var out map[string]interface{}
	Expect(json.Unmarshal(body, &out)).To(Succeed())
	return out
}

var _ = Describe("Account", func() {
	var (
		ctx  context.Context
		acct *account.Account
	)

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)
		ctx = context.Background()
		var err error
		acct, err = account.Dial(baseURL, staticToken("access-1"), "test")
		Expect(err).ToNot(HaveOccurred())
	})

	Describe("Login", func() {
		It("posts credentials and decodes the token pair", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"auth/login/", func(r *http.Request) (*http.Response, error) {
				body := decodeBody(r)
				Expect(body).To(HaveKeyWithValue("email", "ana@example.com"))
				Expect(body).To(HaveKeyWithValue("password", "hunter22"))
				return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
					"user":    map[string]interface{}{"id": 7, "email": "ana@example.com", "first_name": "Ana"},
					"access":  "a",
					"refresh": "r",
				})
			})

			result, err := acct.Login(ctx, "ana@example.com", "hunter22")
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Access).To(Equal("a"))
			Expect(result.Refresh).To(Equal("r"))
			Expect(result.User.ID).To(Equal(int64(7)))
			Expect(result.User.DisplayName()).To(Equal("Ana"))
		})

		It("returns the server's message on bad credentials", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"auth/login/",
				httpmock.NewStringResponder(http.StatusBadRequest, `{"non_field_errors": ["Invalid credentials"]}`))

			_, err := acct.Login(ctx, "ana@example.com", "wrong")
			var validationErr *protocol.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Message).To(Equal("Invalid credentials"))
		})
	})

	Describe("Register", func() {
		It("validates before sending", func() {
			_, err := acct.Register(ctx, &account.RegisterRequest{Email: "ana@example.com", Username: "ana", FirstName: "A", LastName: "B", Password: "short"})
			Expect(err).To(HaveOccurred())
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})

		It("fills defaults", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"auth/register/", func(r *http.Request) (*http.Response, error) {
				body := decodeBody(r)
				Expect(body).To(HaveKeyWithValue("user_type", "passenger"))
				Expect(body).To(HaveKeyWithValue("password_confirm", "longenough"))
				return httpmock.NewJsonResponse(http.StatusCreated, map[string]interface{}{"access": "a", "refresh": "r"})
			})
			_, err := acct.Register(ctx, &account.RegisterRequest{
				Email: "ana@example.com", Username: "ana", FirstName: "Ana", LastName: "B", Password: "longenough",
			})
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("Profile", func() {
		It("authorizes the request", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"auth/profile/", func(r *http.Request) (*http.Response, error) {
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer access-1"))
				return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"id": 3, "username": "bob"})
			})
			user, err := acct.Profile(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(user.DisplayName()).To(Equal("bob"))
		})

		It("maps 401 to an unauthorized error", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"auth/profile/",
				httpmock.NewStringResponder(http.StatusUnauthorized, `{"detail": "Token is invalid or expired"}`))
			_, err := acct.Profile(ctx)
			Expect(protocol.IsUnauthorized(err)).To(BeTrue())
			Expect(err.Error()).To(Equal("Token is invalid or expired"))
		})
	})

	Describe("Trips", func() {
		It("encodes the filter and accepts paginated responses", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"trips/", func(r *http.Request) (*http.Response, error) {
				Expect(r.URL.Query().Get("community")).To(Equal("4"))
				Expect(r.URL.Query().Get("available_only")).To(Equal("true"))
				Expect(r.URL.Query().Has("arrival")).To(BeFalse())
				return httpmock.NewStringResponse(http.StatusOK, `{
					"count": 1, "next": null, "previous": null,
					"results": [{"id": 9, "departure_location": "Lyon", "departure_time": "2026-11-02T08:00:00Z",
					"estimated_arrival_time": "2026-11-02T09:30:00Z", "price_per_seat": "4.50"}]
				}`), nil
			})

			page, err := acct.Trips(ctx, account.TripFilter{Community: 4, AvailableOnly: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(page.Count).To(Equal(1))
			Expect(page.Results).To(HaveLen(1))
			Expect(page.Results[0].PricePerSeat).To(Equal("4.50"))
			Expect(page.Results[0].DepartureTime).To(Equal(time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)))
		})

		It("accepts bare arrays", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"trips/my-trips/?type=driver",
				httpmock.NewStringResponder(http.StatusOK, `[{"id": 1}, {"id": 2}]`))
			page, err := acct.MyTrips(ctx, "driver")
			Expect(err).ToNot(HaveOccurred())
			Expect(page.Count).To(Equal(2))
			Expect(page.Next).To(BeNil())
		})
	})

	Describe("CreateTrip", func() {
		It("rejects an arrival before departure without a request", func() {
			departure := time.Now().Add(time.Hour)
			_, err := acct.CreateTrip(ctx, &account.TripRequest{
				CommunityID: 1, VehicleID: 1, DepartureLocation: "A", ArrivalLocation: "B",
				DepartureTime: departure, EstimatedArrivalTime: departure.Add(-time.Minute), AvailableSeats: 3,
			})
			var validationErr *protocol.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Fields).To(HaveKey("estimated_arrival_time"))
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})
	})

	Describe("bookings", func() {
		It("books with a default of one seat", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"trips/9/book/", func(r *http.Request) (*http.Response, error) {
				Expect(decodeBody(r)).To(HaveKeyWithValue("seats_booked", BeNumerically("==", 1)))
				return httpmock.NewJsonResponse(http.StatusCreated, map[string]interface{}{"id": 5, "status": "pending", "seats_booked": 1})
			})
			booking, err := acct.BookTrip(ctx, 9, &account.BookingRequest{})
			Expect(err).ToNot(HaveOccurred())
			Expect(booking.Status).To(Equal("pending"))
		})

		It("lists bookings from the trips the user rides in", func() {
			httpmock.RegisterResponderWithQuery(http.MethodGet, baseURL+"trips/my-trips/", "type=passenger",
				httpmock.NewStringResponder(http.StatusOK, `[
					{"id": 9, "departure_location": "Lyon", "user_booking": {"id": 5, "status": "pending", "seats_booked": 2}},
					{"id": 10, "departure_location": "Annecy", "user_booking": {"id": 6, "status": "confirmed", "seats_booked": 1}},
					{"id": 11, "departure_location": "Vienne"}
				]`))

			bookings, err := acct.Bookings(ctx, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(bookings.Count).To(Equal(2))
			Expect(bookings.Results[0].ID).To(Equal(int64(5)))
			Expect(bookings.Results[0].Trip.ID).To(Equal(int64(9)))
			Expect(bookings.Results[0].Trip.DepartureLocation).To(Equal("Lyon"))
			Expect(bookings.Results[0].Trip.UserBooking).To(BeNil())

			bookings, err = acct.Bookings(ctx, "confirmed")
			Expect(err).ToNot(HaveOccurred())
			Expect(bookings.Results).To(HaveLen(1))
			Expect(bookings.Results[0].ID).To(Equal(int64(6)))
			Expect(httpmock.GetTotalCallCount()).To(Equal(2))
		})

		It("confirms and cancels", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"trips/bookings/5/confirm/",
				httpmock.NewStringResponder(http.StatusOK, `{"id": 5, "status": "confirmed"}`))
			httpmock.RegisterResponder(http.MethodPost, baseURL+"trips/bookings/5/cancel/",
				httpmock.NewStringResponder(http.StatusOK, `{"id": 5, "status": "cancelled"}`))

			booking, err := acct.ConfirmBooking(ctx, 5)
			Expect(err).ToNot(HaveOccurred())
			Expect(booking.Status).To(Equal("confirmed"))
			booking, err = acct.CancelBooking(ctx, 5)
			Expect(err).ToNot(HaveOccurred())
			Expect(booking.Status).To(Equal("cancelled"))
		})
	})

	Describe("DeleteVehicle", func() {
		It("accepts an empty response", func() {
			httpmock.RegisterResponder(http.MethodDelete, baseURL+"auth/vehicles/2/", httpmock.NewStringResponder(http.StatusNoContent, ""))
			Expect(acct.DeleteVehicle(ctx, 2)).To(Succeed())
		})
	})

	Describe("RateUser", func() {
		It("validates criteria", func() {
			bad := 6
			_, err := acct.RateUser(ctx, 1, 2, &account.RatingRequest{Score: 4, Safety: &bad})
			Expect(err).To(MatchError(ContainSubstring("safety")))
		})

		It("posts to the trip and user route", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"ratings/trip/1/user/2/",
				httpmock.NewStringResponder(http.StatusCreated, `{"id": 3, "score": 5, "rating_type": "driver"}`))
			rating, err := acct.RateUser(ctx, 1, 2, &account.RatingRequest{Score: 5})
			Expect(err).ToNot(HaveOccurred())
			Expect(rating.RatingType).To(Equal("driver"))
		})
	})

	It("reports transport failures as network errors", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL+"communities/", httpmock.NewErrorResponder(errors.New("connection refused")))
		_, err := acct.Communities(ctx, account.CommunityFilter{})
		var netErr *protocol.NetworkError
		Expect(errors.As(err, &netErr)).To(BeTrue())
		Expect(protocol.Temporary(err)).To(BeTrue())
	})
})
