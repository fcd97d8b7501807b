package carpool_test

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/cache"
	"github.com/covoit/carpool-sdk/pkg/carpool"
	"github.com/covoit/carpool-sdk/pkg/protocol"
	"github.com/covoit/carpool-sdk/pkg/session"
	"github.com/covoit/carpool-sdk/pkg/tokenstore"
)

const apiURL = "https://carpool.example.com/api/"

var loginResponse = map[string]interface{}{
	"user":    map[string]interface{}{"id": 7, "email": "alice@example.com", "first_name": "Alice", "user_type": "both"},
	"access":  "access-1",
	"refresh": "refresh-1",
}

func tripList(ids ...int) []map[string]interface{} {
	var trips []map[string]interface{}
	for _, id := range ids {
		trips = append(trips, map[string]interface{}{
			"id":                     id,
			"departure_location":     "Lyon",
			"arrival_location":       "Grenoble",
			"departure_time":         "2026-11-02T08:00:00Z",
			"estimated_arrival_time": "2026-11-02T09:30:00Z",
		})
	}
	return trips
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		store  *tokenstore.Memory
		client *carpool.Client
	)

	newClient := func() {
		var err error
		client, err = carpool.New(carpool.Config{BaseURL: apiURL, Store: store})
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(client.Close)
	}

	login := func() {
		httpmock.RegisterResponder(http.MethodPost, apiURL+"auth/login/", httpmock.NewJsonResponderOrPanic(http.StatusOK, loginResponse))
		Expect(client.Bootstrap(ctx)).To(Succeed())
		_, err := client.Login(ctx, "alice@example.com", "correct horse")
		Expect(err).ToNot(HaveOccurred())
	}

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)
		ctx = context.Background()
		store = tokenstore.NewMemory()
		newClient()
	})

	It("bootstraps anonymously without a network call", func() {
		Expect(client.Bootstrap(ctx)).To(Succeed())
		Expect(client.Session.State()).To(Equal(session.StateAnonymous))
		Expect(httpmock.GetTotalCallCount()).To(Equal(0))
	})

	It("restores a persisted session with one profile request", func() {
		Expect(store.Set(tokenstore.AccessToken, "persisted", time.Hour)).To(Succeed())
		httpmock.RegisterResponder(http.MethodGet, apiURL+"auth/profile/", func(r *http.Request) (*http.Response, error) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer persisted"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"id": 7, "email": "alice@example.com"})
		})
		Expect(client.Bootstrap(ctx)).To(Succeed())
		Expect(client.Current().UserID).To(Equal(int64(7)))
		Expect(httpmock.GetTotalCallCount()).To(Equal(1))
	})

	It("authorizes queries with the session token", func() {
		login()
		httpmock.RegisterResponder(http.MethodGet, apiURL+"trips/", func(r *http.Request) (*http.Response, error) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer access-1"))
			return httpmock.NewJsonResponse(http.StatusOK, tripList(1, 2))
		})
		trips, err := client.Trips(ctx, account.TripFilter{})
		Expect(err).ToNot(HaveOccurred())
		Expect(trips.Results).To(HaveLen(2))

		_, err = client.Trips(ctx, account.TripFilter{})
		Expect(err).ToNot(HaveOccurred())
		Expect(httpmock.GetCallCountInfo()["GET "+apiURL+"trips/"]).To(Equal(1))
	})

	It("deduplicates concurrent queries", func() {
		login()
		release := make(chan struct{})
		httpmock.RegisterResponder(http.MethodGet, apiURL+"trips/1/", func(r *http.Request) (*http.Response, error) {
			<-release
			return httpmock.NewJsonResponse(http.StatusOK, tripList(1)[0])
		})

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				trip, err := client.Trip(ctx, 1)
				Expect(err).ToNot(HaveOccurred())
				Expect(trip.ID).To(Equal(int64(1)))
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		Expect(httpmock.GetCallCountInfo()["GET "+apiURL+"trips/1/"]).To(Equal(1))
	})

	It("invalidates the trip lists after creating a trip", func() {
		login()
		httpmock.RegisterResponder(http.MethodGet, apiURL+"trips/", httpmock.NewJsonResponderOrPanic(http.StatusOK, tripList(1)))
		httpmock.RegisterResponder(http.MethodGet, apiURL+"trips/my-trips/", httpmock.NewJsonResponderOrPanic(http.StatusOK, tripList()))
		httpmock.RegisterResponder(http.MethodGet, apiURL+"auth/vehicles/", httpmock.NewJsonResponderOrPanic(http.StatusOK, []interface{}{}))
		httpmock.RegisterResponder(http.MethodPost, apiURL+"trips/", httpmock.NewJsonResponderOrPanic(http.StatusCreated, tripList(2)[0]))

		_, err := client.Trips(ctx, account.TripFilter{})
		Expect(err).ToNot(HaveOccurred())
		_, err = client.MyTrips(ctx, "")
		Expect(err).ToNot(HaveOccurred())
		_, err = client.Vehicles(ctx)
		Expect(err).ToNot(HaveOccurred())

		departure := time.Now().Add(24 * time.Hour)
		trip, err := client.CreateTrip(ctx, &account.TripRequest{
			CommunityID: 1, VehicleID: 1, DepartureLocation: "Lyon", ArrivalLocation: "Grenoble",
			DepartureTime: departure, EstimatedArrivalTime: departure.Add(90 * time.Minute), AvailableSeats: 3,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(trip.ID).To(Equal(int64(2)))

		entry, ok := client.Cache.Peek(cache.Key{carpool.ResourceTrips})
		Expect(ok).To(BeTrue())
		Expect(entry.Stale).To(BeTrue())
		entry, _ = client.Cache.Peek(cache.Key{carpool.ResourceMyTrips})
		Expect(entry.Stale).To(BeTrue())
		entry, _ = client.Cache.Peek(cache.Key{carpool.ResourceVehicles})
		Expect(entry.Stale).To(BeFalse())

		_, err = client.Trips(ctx, account.TripFilter{})
		Expect(err).ToNot(HaveOccurred())
		Expect(httpmock.GetCallCountInfo()["GET "+apiURL+"trips/"]).To(Equal(2))
	})

	It("leaves the cache untouched when a mutation fails", func() {
		login()
		httpmock.RegisterResponder(http.MethodGet, apiURL+"trips/", httpmock.NewJsonResponderOrPanic(http.StatusOK, tripList(1)))
		httpmock.RegisterResponder(http.MethodPost, apiURL+"trips/1/book/",
			httpmock.NewStringResponder(http.StatusBadRequest, `{"error": "Not enough seats available"}`))
		_, err := client.Trips(ctx, account.TripFilter{})
		Expect(err).ToNot(HaveOccurred())

		_, err = client.BookTrip(ctx, 1, &account.BookingRequest{SeatsBooked: 4})
		Expect(err).To(MatchError("Not enough seats available"))
		entry, _ := client.Cache.Peek(cache.Key{carpool.ResourceTrips})
		Expect(entry.Stale).To(BeFalse())
	})

	It("ends the session once when concurrent requests are rejected", func() {
		login()
		sub := client.Session.Subscribe()
		defer sub.Close()
		httpmock.RegisterResponder(http.MethodGet, `=~^`+apiURL+`trips/\d+/\z`,
			httpmock.NewStringResponder(http.StatusUnauthorized, `{"detail": "Given token not valid for any token type"}`))

		var wg sync.WaitGroup
		for i := int64(1); i <= 4; i++ {
			wg.Add(1)
			go func(tripID int64) {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := client.Trip(ctx, tripID)
				Expect(err).To(HaveOccurred())
			}(i)
		}
		wg.Wait()

		Expect(client.Session.State()).To(Equal(session.StateAnonymous))
		Expect(store.Len()).To(Equal(0))
		var event session.Event
		Eventually(sub.Recv()).Should(Receive(&event))
		Expect(event.State).To(Equal(session.StateAnonymous))
		Consistently(sub.Recv(), 50*time.Millisecond).ShouldNot(Receive())
	})

	It("refuses user queries after logout", func() {
		login()
		httpmock.RegisterResponder(http.MethodGet, apiURL+"auth/vehicles/", httpmock.NewJsonResponderOrPanic(http.StatusOK, []interface{}{}))
		_, err := client.Vehicles(ctx)
		Expect(err).ToNot(HaveOccurred())

		Expect(client.Logout()).To(Succeed())
		Expect(client.Current()).To(BeNil())
		Expect(client.Cache.Len()).To(Equal(0))
		_, err = client.Vehicles(ctx)
		Expect(err).To(MatchError(protocol.ErrNoSession))
		Expect(httpmock.GetCallCountInfo()["GET "+apiURL+"auth/vehicles/"]).To(Equal(1))
	})

	It("refuses queries before bootstrap", func() {
		_, err := client.Trips(ctx, account.TripFilter{})
		Expect(err).To(MatchError(protocol.ErrNotReady))
	})

	It("refuses queries while the persisted session is being restored", func() {
		Expect(store.Set(tokenstore.AccessToken, "persisted", time.Hour)).To(Succeed())
		release := make(chan struct{})
		httpmock.RegisterResponder(http.MethodGet, apiURL+"auth/profile/", func(r *http.Request) (*http.Response, error) {
			<-release
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"id": 7, "email": "alice@example.com"})
		})
		done := make(chan error, 1)
		go func() { done <- client.Bootstrap(ctx) }()
		Eventually(client.Session.State).Should(Equal(session.StateBootstrapping))

		_, err := client.Trips(ctx, account.TripFilter{})
		Expect(err).To(MatchError(protocol.ErrNotReady))
		_, err = client.Vehicles(ctx)
		Expect(err).To(MatchError(protocol.ErrNotReady))

		close(release)
		Eventually(done).Should(Receive(BeNil()))
		Expect(client.Session.State()).To(Equal(session.StateAuthenticated))
	})

	It("keeps a refreshed session when a request sent with the old token is rejected", func() {
		login()
		started := make(chan struct{})
		release := make(chan struct{})
		httpmock.RegisterResponder(http.MethodGet, apiURL+"trips/1/", func(r *http.Request) (*http.Response, error) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer access-1"))
			close(started)
			<-release
			return httpmock.NewStringResponse(http.StatusUnauthorized, `{"detail": "Given token not valid for any token type"}`), nil
		})
		httpmock.RegisterResponder(http.MethodPost, apiURL+"auth/token/refresh/",
			httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"access": "access-2"}))

		done := make(chan error, 1)
		go func() {
			_, err := client.Trip(ctx, 1)
			done <- err
		}()
		Eventually(started).Should(BeClosed())
		s, err := client.Refresh(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Token).To(Equal("access-2"))

		close(release)
		Eventually(done).Should(Receive(Satisfy(protocol.IsUnauthorized)))
		Expect(client.Session.State()).To(Equal(session.StateAuthenticated))
		token, ok := client.Session.AccessToken()
		Expect(ok).To(BeTrue())
		Expect(token).To(Equal("access-2"))
		Expect(store.Len()).To(Equal(2))
	})

	It("updates the session after a profile edit", func() {
		login()
		httpmock.RegisterResponder(http.MethodPatch, apiURL+"auth/profile/",
			httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"id": 7, "email": "alice@example.com", "first_name": "Alicia"}))
		name := "Alicia"
		_, err := client.UpdateProfile(ctx, &account.ProfileUpdate{FirstName: &name})
		Expect(err).ToNot(HaveOccurred())
		Expect(client.Current().DisplayName).To(Equal("Alicia"))
	})
})

var _ = Describe("InvalidationRules", func() {
	It("covers every mutation", func() {
		for _, m := range []carpool.Mutation{
			carpool.CreateCommunity, carpool.JoinCommunity, carpool.LeaveCommunity, carpool.CreateTrip,
			carpool.BookTrip, carpool.ConfirmBooking, carpool.CancelBooking, carpool.CreateVehicle,
			carpool.UpdateVehicle, carpool.DeleteVehicle, carpool.RateUser, carpool.UpdateProfile,
		} {
			Expect(carpool.InvalidationRules[m]).ToNot(BeEmpty(), string(m))
		}
	})

	It("invalidates the booked trip and the lists it appears in", func() {
		Expect(carpool.InvalidationRules[carpool.BookTrip]).To(ConsistOf(
			cache.Key{"trip"}, cache.Key{"trips"}, cache.Key{"bookings"}, cache.Key{"my-trips"},
		))
	})
})
