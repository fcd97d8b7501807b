package proxy_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/covoit/carpool-sdk/pkg/carpool"
	"github.com/covoit/carpool-sdk/pkg/proxy"
	"github.com/covoit/carpool-sdk/pkg/tokenstore"
)

const apiURL = "https://carpool.example.com/api/"

var loginResponse = map[string]interface{}{
	"user":    map[string]interface{}{"id": 7, "email": "alice@example.com", "first_name": "Alice", "last_name": "Martin", "user_type": "driver"},
	"access":  "access-1",
	"refresh": "refresh-1",
}

func community(id int) map[string]interface{} {
	return map[string]interface{}{"id": id, "name": "Office", "community_type": "work", "location": "Lyon"}
}

type reply struct {
	Response         json.RawMessage     `json:"response"`
	Error            string              `json:"error"`
	ErrorDescription string              `json:"error_description"`
	Fields           map[string][]string `json:"fields"`
}

func decodeReply(rr *httptest.ResponseRecorder) reply {
	var r reply
	Expect(json.Unmarshal(rr.Body.Bytes(), &r)).To(Succeed())
	return r
}

var _ = Describe("Proxy", func() {
	var (
		ctx    context.Context
		client *carpool.Client
		p      *proxy.Proxy
	)

	sendRequest := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var payload []byte
		if body != nil {
			var err error
			payload, err = json.Marshal(body)
			Expect(err).ToNot(HaveOccurred())
		}
		req := httptest.NewRequest(method, path, bytes.NewReader(payload))
		rr := httptest.NewRecorder()
		p.ServeHTTP(rr, req)
		return rr
	}

	login := func() {
		httpmock.RegisterResponder(http.MethodPost, apiURL+"auth/login/", httpmock.NewJsonResponderOrPanic(http.StatusOK, loginResponse))
		rr := sendRequest(http.MethodPost, "/auth/login", map[string]string{"email": "alice@example.com", "password": "correct horse"})
		Expect(rr.Code).To(Equal(http.StatusOK))
	}

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)
		ctx = context.Background()

		var err error
		client, err = carpool.New(carpool.Config{BaseURL: apiURL, Store: tokenstore.NewMemory()})
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(client.Close)
		Expect(client.Bootstrap(ctx)).To(Succeed())
		p = proxy.New(client)
	})

	Context("auth", func() {
		It("reports the anonymous state", func() {
			rr := sendRequest(http.MethodGet, "/auth/session", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decodeReply(rr).Response).To(MatchJSON(`{"state": "anonymous"}`))
		})

		It("logs in and exposes the session", func() {
			login()
			rr := sendRequest(http.MethodGet, "/auth/session", nil)
			var status struct {
				State   string `json:"state"`
				Session struct {
					UserID      int64  `json:"user_id"`
					DisplayName string `json:"display_name"`
					Token       string `json:"token"`
				} `json:"session"`
			}
			Expect(json.Unmarshal(decodeReply(rr).Response, &status)).To(Succeed())
			Expect(status.State).To(Equal("authenticated"))
			Expect(status.Session.UserID).To(Equal(int64(7)))
			Expect(status.Session.DisplayName).To(Equal("Alice Martin"))
			Expect(status.Session.Token).To(BeEmpty())
		})

		It("requires credentials", func() {
			rr := sendRequest(http.MethodPost, "/auth/login", map[string]string{"email": "alice@example.com"})
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeReply(rr).Fields).To(HaveKey("password"))
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})

		It("renders rejected credentials with the server's message", func() {
			httpmock.RegisterResponder(http.MethodPost, apiURL+"auth/login/",
				httpmock.NewJsonResponderOrPanic(http.StatusBadRequest, map[string]interface{}{"non_field_errors": []string{"Invalid credentials"}}))
			rr := sendRequest(http.MethodPost, "/auth/login", map[string]string{"email": "alice@example.com", "password": "wrong"})
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			r := decodeReply(rr)
			Expect(r.Error).To(Equal(http.StatusText(http.StatusBadRequest)))
			Expect(r.ErrorDescription).To(Equal("Invalid credentials"))
		})

		It("validates registrations locally", func() {
			rr := sendRequest(http.MethodPost, "/auth/register", map[string]string{
				"email": "bob@example.com", "username": "bob", "first_name": "Bob", "last_name": "Durand", "password": "short",
			})
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeReply(rr).Fields).To(HaveKey("password"))
			Expect(httpmock.GetTotalCallCount()).To(Equal(0))
		})

		It("logs out", func() {
			login()
			rr := sendRequest(http.MethodPost, "/auth/logout", nil)
			Expect(rr.Code).To(Equal(http.StatusNoContent))
			Expect(client.Current()).To(BeNil())
		})
	})

	Context("queries", func() {
		It("refuses queries without a session", func() {
			rr := sendRequest(http.MethodGet, "/api/communities", nil)
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeReply(rr).ErrorDescription).To(Equal("not logged in"))
		})

		It("serves repeated reads from the cache", func() {
			login()
			httpmock.RegisterResponder(http.MethodGet, apiURL+"communities/12/", httpmock.NewJsonResponderOrPanic(http.StatusOK, community(12)))

			for i := 0; i < 3; i++ {
				rr := sendRequest(http.MethodGet, "/api/communities/12", nil)
				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(decodeReply(rr).Response).To(ContainSubstring(`"name":"Office"`))
			}
			Expect(httpmock.GetCallCountInfo()["GET "+apiURL+"communities/12/"]).To(Equal(1))
		})

		It("passes filters through to the API", func() {
			login()
			httpmock.RegisterResponderWithQuery(http.MethodGet, apiURL+"trips/", "community=3&date=2026-11-02",
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"count": 0, "results": []interface{}{}}))
			rr := sendRequest(http.MethodGet, "/api/trips?community=3&date=2026-11-02", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decodeReply(rr).Response).To(MatchJSON(`{"count": 0, "next": null, "previous": null, "results": []}`))
		})

		It("rejects malformed filters", func() {
			login()
			rr := sendRequest(http.MethodGet, "/api/trips?community=abc", nil)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns not found for malformed identifiers", func() {
			login()
			rr := sendRequest(http.MethodGet, "/api/trips/abc", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("ends the session when the server rejects the token", func() {
			login()
			httpmock.RegisterResponder(http.MethodGet, apiURL+"auth/vehicles/",
				httpmock.NewJsonResponderOrPanic(http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"}))
			rr := sendRequest(http.MethodGet, "/api/vehicles", nil)
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(client.Current()).To(BeNil())
		})

		It("maps server failures to their status", func() {
			login()
			httpmock.RegisterResponder(http.MethodGet, apiURL+"auth/profile/", httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
			rr := sendRequest(http.MethodGet, "/api/profile", nil)
			Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Context("mutations", func() {
		It("invalidates cached lists after joining a community", func() {
			login()
			httpmock.RegisterResponder(http.MethodGet, apiURL+"communities/", httpmock.NewJsonResponderOrPanic(http.StatusOK, []interface{}{community(12)}))
			httpmock.RegisterResponder(http.MethodPost, apiURL+"communities/12/join/",
				httpmock.NewJsonResponderOrPanic(http.StatusCreated, map[string]interface{}{"id": 1, "role": "member", "is_active": true}))

			Expect(sendRequest(http.MethodGet, "/api/communities", nil).Code).To(Equal(http.StatusOK))
			rr := sendRequest(http.MethodPost, "/api/communities/12/join", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decodeReply(rr).Response).To(ContainSubstring(`"role":"member"`))
			Expect(sendRequest(http.MethodGet, "/api/communities", nil).Code).To(Equal(http.StatusOK))
			Expect(httpmock.GetCallCountInfo()["GET "+apiURL+"communities/"]).To(Equal(2))
		})

		It("creates vehicles", func() {
			login()
			httpmock.RegisterResponder(http.MethodPost, apiURL+"auth/vehicles/", func(r *http.Request) (*http.Response, error) {
				var body map[string]interface{}
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body).To(HaveKeyWithValue("license_plate", "AB-123-CD"))
				Expect(body).To(HaveKeyWithValue("seats", 4.0))
				return httpmock.NewJsonResponse(http.StatusCreated, map[string]interface{}{"id": 5, "brand": "Renault"})
			})
			rr := sendRequest(http.MethodPost, "/api/vehicles", map[string]interface{}{
				"brand": "Renault", "model": "Clio", "year": 2020, "license_plate": "AB-123-CD",
			})
			Expect(rr.Code).To(Equal(http.StatusCreated))
		})

		It("answers deletions without a body", func() {
			login()
			httpmock.RegisterResponder(http.MethodDelete, apiURL+"auth/vehicles/5/", httpmock.NewStringResponder(http.StatusNoContent, ""))
			rr := sendRequest(http.MethodDelete, "/api/vehicles/5", nil)
			Expect(rr.Code).To(Equal(http.StatusNoContent))
			Expect(rr.Body.Len()).To(Equal(0))
		})

		It("rejects invalid ratings before contacting the server", func() {
			login()
			rr := sendRequest(http.MethodPost, "/api/ratings/trip/1/user/2", map[string]interface{}{"score": 9})
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeReply(rr).Fields).To(HaveKey("score"))
			Expect(httpmock.GetCallCountInfo()["POST "+apiURL+"ratings/trip/1/user/2/"]).To(Equal(0))
		})

		It("rejects malformed JSON", func() {
			login()
			req := httptest.NewRequest(http.MethodPost, "/api/trips", strings.NewReader("{"))
			rr := httptest.NewRecorder()
			p.ServeHTTP(rr, req)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})
	})

	It("renders unknown routes as JSON errors", func() {
		rr := sendRequest(http.MethodGet, "/api/unknown", nil)
		Expect(rr.Code).To(Equal(http.StatusNotFound))
		Expect(decodeReply(rr).Error).To(Equal(http.StatusText(http.StatusNotFound)))
	})

	Context("events", func() {
		var (
			server *httptest.Server
			ws     *websocket.Conn
		)

		readMessage := func() proxy.EventMessage {
			var m proxy.EventMessage
			Expect(ws.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			Expect(ws.ReadJSON(&m)).To(Succeed())
			return m
		}

		BeforeEach(func() {
			server = httptest.NewServer(p)
			DeferCleanup(server.Close)
			var err error
			ws, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/events", nil)
			Expect(err).ToNot(HaveOccurred())
			DeferCleanup(ws.Close)
		})

		It("streams session transitions", func() {
			Expect(readMessage()).To(Equal(proxy.EventMessage{Type: proxy.MessageSession, State: "anonymous"}))
			login()

			var m proxy.EventMessage
			for m.State != "authenticated" {
				m = readMessage()
			}
			Expect(m.Type).To(Equal(proxy.MessageSession))
			Expect(m.Session.UserID).To(Equal(int64(7)))
		})

		It("streams cache invalidations", func() {
			Expect(readMessage().Type).To(Equal(proxy.MessageSession))
			login()
			httpmock.RegisterResponder(http.MethodGet, apiURL+"auth/vehicles/", httpmock.NewJsonResponderOrPanic(http.StatusOK, []interface{}{}))
			Expect(sendRequest(http.MethodGet, "/api/vehicles", nil).Code).To(Equal(http.StatusOK))
			client.Cache.Invalidate(carpool.InvalidationRules[carpool.CreateVehicle]...)

			var m proxy.EventMessage
			for m.Kind != "invalidated" {
				m = readMessage()
			}
			Expect(m.Type).To(Equal(proxy.MessageCache))
			Expect([]string(m.Key)).To(Equal([]string{carpool.ResourceVehicles}))
		})
	})
})
