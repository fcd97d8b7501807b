package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/cache"
	"github.com/covoit/carpool-sdk/pkg/carpool"
	"github.com/covoit/carpool-sdk/pkg/protocol"
)

const (
	DefaultTimeout       = 10 * time.Second
	maxRequestBodyBytes  = 64 * 1024
	proxyProtocolVersion = "carpool-http-proxy/1.0.0"
)

// Proxy exposes a carpool client over HTTP. Reads are answered from the client's query cache and
// writes go through its mutations, so every consumer of the gateway shares one session and one
// cache.
type Proxy struct {
	Timeout time.Duration

	client *carpool.Client
	router chi.Router
}

// New creates an http proxy backed by client. The caller remains responsible for bootstrapping and
// closing the client.
func New(client *carpool.Client) *Proxy {
	p := &Proxy{
		Timeout: DefaultTimeout,
		client:  client,
	}
	p.router = p.routes()
	return p
}

func (p *Proxy) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequest)
	r.Use(middleware.SetHeader("Server", proxyProtocolVersion))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", p.handleLogin)
		r.Post("/register", p.handleRegister)
		r.Post("/logout", p.handleLogout)
		r.Post("/refresh", p.handleRefresh)
		r.Get("/session", p.handleSession)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/profile", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return p.client.Profile(ctx)
		}))
		r.Patch("/profile", p.command(carpool.UpdateProfile))

		r.Get("/communities", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			filter, err := communityFilter(req.URL.Query())
			if err != nil {
				return nil, err
			}
			return p.client.Communities(ctx, filter)
		}))
		r.Post("/communities", p.command(carpool.CreateCommunity))
		r.Get("/communities/{id}", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return withID(req, "id", p.client.Community)(ctx)
		}))
		r.Get("/communities/{id}/members", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return withID(req, "id", p.client.CommunityMembers)(ctx)
		}))
		r.Get("/communities/{id}/stats", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return withID(req, "id", p.client.CommunityStats)(ctx)
		}))
		r.Post("/communities/{id}/join", p.command(carpool.JoinCommunity))
		r.Post("/communities/{id}/leave", p.command(carpool.LeaveCommunity))

		r.Get("/trips", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			filter, err := tripFilter(req.URL.Query())
			if err != nil {
				return nil, err
			}
			return p.client.Trips(ctx, filter)
		}))
		r.Post("/trips", p.command(carpool.CreateTrip))
		r.Get("/trips/my-trips", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return p.client.MyTrips(ctx, req.URL.Query().Get("type"))
		}))
		r.Get("/trips/{id}", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return withID(req, "id", p.client.Trip)(ctx)
		}))
		r.Get("/trips/{id}/bookings", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return withID(req, "id", p.client.TripBookings)(ctx)
		}))
		r.Post("/trips/{id}/book", p.command(carpool.BookTrip))

		r.Get("/bookings", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return p.client.Bookings(ctx, req.URL.Query().Get("status"))
		}))
		r.Post("/bookings/{id}/confirm", p.command(carpool.ConfirmBooking))
		r.Post("/bookings/{id}/cancel", p.command(carpool.CancelBooking))

		r.Get("/vehicles", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return p.client.Vehicles(ctx)
		}))
		r.Post("/vehicles", p.command(carpool.CreateVehicle))
		r.Patch("/vehicles/{id}", p.command(carpool.UpdateVehicle))
		r.Delete("/vehicles/{id}", p.command(carpool.DeleteVehicle))

		r.Get("/ratings", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return p.client.Ratings(ctx, req.URL.Query().Get("type"))
		}))
		r.Get("/ratings/user/{id}", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return withID(req, "id", p.client.UserRatings)(ctx)
		}))
		r.Get("/ratings/user/{id}/stats", p.query(func(ctx context.Context, req *http.Request) (interface{}, error) {
			return withID(req, "id", p.client.UserRatingStats)(ctx)
		}))
		r.Post("/ratings/trip/{trip_id}/user/{user_id}", p.command(carpool.RateUser))
	})

	r.Get("/events", p.handleEvents)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSONError(w, http.StatusNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
	})
	return r
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.router.ServeHTTP(w, req)
}

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		log.Info("Received %s request for %s (%s)", req.Method, req.URL.Path, middleware.GetReqID(req.Context()))
		next.ServeHTTP(w, req)
	})
}

// Response contains the gateway's response to a client request.
type Response struct {
	Response   interface{}         `json:"response,omitempty"`
	Error      string              `json:"error,omitempty"`
	ErrDetails string              `json:"error_description,omitempty"`
	Fields     map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, reply *Response) {
	jsonBytes, err := json.Marshal(reply)
	if err != nil {
		log.Error("Error serializing reply %+v: %s", reply, err)
		code = http.StatusInternalServerError
		jsonBytes = []byte("{\"error\": \"internal server error\"}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

// writeJSONError renders err. If err belongs to the protocol taxonomy, its status code overrides
// code.
func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := Response{}
	if err == nil {
		reply.Error = http.StatusText(code)
	} else {
		var e protocol.Error
		if errors.As(err, &e) {
			code = protocol.StatusCode(err)
		}
		reply.Error = http.StatusText(code)
		reply.ErrDetails = err.Error()
		var validationErr *protocol.ValidationError
		if errors.As(err, &validationErr) {
			reply.Fields = validationErr.Fields
		}
	}
	if code >= http.StatusInternalServerError {
		log.Error("Returning error %s: %s", http.StatusText(code), reply.ErrDetails)
	} else {
		log.Debug("Returning error %s: %s", http.StatusText(code), reply.ErrDetails)
	}
	writeJSON(w, code, &reply)
}

func writeResult(w http.ResponseWriter, code int, result interface{}, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		} else if errors.Is(err, protocol.ErrNotReady) || errors.Is(err, cache.ErrDiscarded) {
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, code, &Response{Response: result})
}

func (p *Proxy) query(fetch func(ctx context.Context, req *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
		defer cancel()
		result, err := fetch(ctx, req)
		writeResult(w, http.StatusOK, result, err)
	}
}

// creates lists the mutations answered with 201 Created.
var creates = map[carpool.Mutation]bool{
	carpool.CreateCommunity: true,
	carpool.CreateTrip:      true,
	carpool.BookTrip:        true,
	carpool.CreateVehicle:   true,
	carpool.RateUser:        true,
}

func (p *Proxy) command(name carpool.Mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		params, err := readParameters(req)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				params[key] = rctx.URLParams.Values[i]
			}
		}
		action, err := ExtractCommandAction(name, params)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
		defer cancel()
		log.Debug("Executing %s", name)
		result, err := action(ctx, p.client)
		code := http.StatusOK
		if creates[name] {
			code = http.StatusCreated
		}
		writeResult(w, code, result, err)
	}
}

func readParameters(req *http.Request) (RequestParameters, error) {
	params := RequestParameters{}
	if req.Body == nil {
		return params, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("could not read request body: %w", err)
	}
	if len(body) > maxRequestBodyBytes {
		return nil, &protocol.ValidationError{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			return nil, &protocol.ValidationError{Code: http.StatusBadRequest, Message: "error occurred while parsing request parameters"}
		}
	}
	return params, nil
}

func pathID(req *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, &protocol.ValidationError{Code: http.StatusNotFound, Message: fmt.Sprintf("invalid %s in path", key)}
	}
	return id, nil
}

func withID[T any](req *http.Request, key string, fetch func(context.Context, int64) (T, error)) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		id, err := pathID(req, key)
		if err != nil {
			return nil, err
		}
		return fetch(ctx, id)
	}
}

func queryInt(values url.Values, key string) (int64, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, protocol.NewValidationError(key, "must be a positive integer")
	}
	return n, nil
}

func communityFilter(values url.Values) (account.CommunityFilter, error) {
	page, err := queryInt(values, "page")
	if err != nil {
		return account.CommunityFilter{}, err
	}
	return account.CommunityFilter{
		Search:   values.Get("search"),
		Type:     values.Get("type"),
		Location: values.Get("location"),
		Page:     int(page),
	}, nil
}

func tripFilter(values url.Values) (account.TripFilter, error) {
	community, err := queryInt(values, "community")
	if err != nil {
		return account.TripFilter{}, err
	}
	page, err := queryInt(values, "page")
	if err != nil {
		return account.TripFilter{}, err
	}
	return account.TripFilter{
		Community:     community,
		Departure:     values.Get("departure"),
		Arrival:       values.Get("arrival"),
		Date:          values.Get("date"),
		AvailableOnly: values.Get("available_only") == "true",
		Page:          int(page),
	}, nil
}

func (p *Proxy) handleLogin(w http.ResponseWriter, req *http.Request) {
	params, err := readParameters(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	email, err := params.getString("email", true)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	password, err := params.getString("password", true)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
	defer cancel()
	s, err := p.client.Login(ctx, email, password)
	writeResult(w, http.StatusOK, s, err)
}

func (p *Proxy) handleRegister(w http.ResponseWriter, req *http.Request) {
	params, err := readParameters(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	var registration account.RegisterRequest
	if err := params.decode(&registration); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
	defer cancel()
	s, err := p.client.Register(ctx, &registration)
	writeResult(w, http.StatusCreated, s, err)
}

func (p *Proxy) handleLogout(w http.ResponseWriter, req *http.Request) {
	if err := p.client.Logout(); err != nil {
		// The session has ended regardless; only the persisted token may linger.
		log.Warning("Error removing persisted tokens: %s", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Proxy) handleRefresh(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
	defer cancel()
	s, err := p.client.Refresh(ctx)
	writeResult(w, http.StatusOK, s, err)
}

// SessionStatus describes the gateway's session to clients.
type SessionStatus struct {
	State   string      `json:"state"`
	Session interface{} `json:"session,omitempty"`
}

func (p *Proxy) handleSession(w http.ResponseWriter, req *http.Request) {
	status := SessionStatus{State: p.client.Session.State().String()}
	if s := p.client.Current(); s != nil {
		status.Session = s
	}
	writeJSON(w, http.StatusOK, &Response{Response: &status})
}
