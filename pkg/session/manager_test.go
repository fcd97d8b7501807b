package session_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/covoit/carpool-sdk/mocks"
	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/protocol"
	"github.com/covoit/carpool-sdk/pkg/session"
	"github.com/covoit/carpool-sdk/pkg/tokenstore"
)

var (
	alice = account.User{
		ID:         7,
		Email:      "alice@example.com",
		Username:   "alice",
		FirstName:  "Alice",
		LastName:   "Martin",
		UserType:   account.UserTypeBoth,
		IsVerified: true,
	}
	networkErr = &protocol.NetworkError{Err: errors.New("connection refused")}
	expiredErr = &protocol.AuthError{Code: 401, Message: "Token is invalid or expired"}
)

func stored(store tokenstore.Store, key string) string {
	value, _, err := store.Get(key)
	Expect(err).ToNot(HaveOccurred())
	return value
}

var _ = Describe("Manager", func() {
	var (
		ctx   context.Context
		ctrl  *gomock.Controller
		auth  *mocks.Authenticator
		store *tokenstore.Memory
		m     *session.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		ctrl = gomock.NewController(GinkgoT())
		auth = mocks.NewAuthenticator(ctrl)
		store = tokenstore.NewMemory()
		m = session.New(auth, store)
		DeferCleanup(m.Close)
	})

	login := func() {
		Expect(m.Bootstrap(ctx)).To(Succeed())
		auth.EXPECT().Login(gomock.Any(), "alice@example.com", "correct horse").
			Return(&account.AuthResult{User: alice, Access: "access-1", Refresh: "refresh-1"}, nil)
		_, err := m.Login(ctx, "alice@example.com", "correct horse")
		Expect(err).ToNot(HaveOccurred())
	}

	Describe("Bootstrap", func() {
		It("becomes anonymous without a network call when no token is persisted", func() {
			Expect(m.State()).To(Equal(session.StateUnbootstrapped))
			Expect(m.Bootstrap(ctx)).To(Succeed())
			Expect(m.State()).To(Equal(session.StateAnonymous))
			Expect(m.Current()).To(BeNil())
		})

		It("restores the session from a persisted token", func() {
			Expect(store.Set(tokenstore.AccessToken, "access-1", time.Hour)).To(Succeed())
			Expect(store.Set(tokenstore.RefreshToken, "refresh-1", time.Hour)).To(Succeed())
			auth.EXPECT().Profile(gomock.Any()).DoAndReturn(func(context.Context) (*account.User, error) {
				Expect(m.State()).To(Equal(session.StateBootstrapping))
				token, ok := m.AccessToken()
				Expect(ok).To(BeTrue())
				Expect(token).To(Equal("access-1"))
				user := alice
				return &user, nil
			})

			Expect(m.Bootstrap(ctx)).To(Succeed())
			Expect(m.State()).To(Equal(session.StateAuthenticated))
			s := m.Current()
			Expect(s.UserID).To(Equal(int64(7)))
			Expect(s.DisplayName).To(Equal("Alice Martin"))
			Expect(s.Role).To(Equal(account.UserTypeBoth))
			Expect(s.Verified).To(BeTrue())
			Expect(s.RefreshToken).To(Equal("refresh-1"))
			Expect(s.Expired()).To(BeFalse())
		})

		DescribeTable("clears persisted tokens when validation fails",
			func(failure error) {
				Expect(store.Set(tokenstore.AccessToken, "access-1", time.Hour)).To(Succeed())
				Expect(store.Set(tokenstore.RefreshToken, "refresh-1", time.Hour)).To(Succeed())
				auth.EXPECT().Profile(gomock.Any()).Return(nil, failure).Times(1)

				Expect(m.Bootstrap(ctx)).To(MatchError(failure))
				Expect(m.State()).To(Equal(session.StateAnonymous))
				Expect(store.Len()).To(Equal(0))
				_, ok := m.AccessToken()
				Expect(ok).To(BeFalse())
			},
			Entry("on 401", expiredErr),
			Entry("on network error", networkErr),
		)

		It("refuses to run twice", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			Expect(m.Bootstrap(ctx)).To(MatchError(protocol.ErrAlreadyBootstrapped))
			Expect(m.State()).To(Equal(session.StateAnonymous))
		})

		It("becomes anonymous if the token store fails", func() {
			broken := mocks.NewStore(ctrl)
			broken.EXPECT().Get(tokenstore.AccessToken).Return("", false, errors.New("keyring locked"))
			m = session.New(auth, broken)
			Expect(m.Bootstrap(ctx)).To(MatchError(ContainSubstring("keyring locked")))
			Expect(m.State()).To(Equal(session.StateAnonymous))
		})
	})

	Describe("Login", func() {
		It("is refused before bootstrap", func() {
			_, err := m.Login(ctx, "alice@example.com", "correct horse")
			Expect(err).To(MatchError(protocol.ErrNotReady))
		})

		It("persists tokens and authorizes requests", func() {
			login()
			Expect(m.State()).To(Equal(session.StateAuthenticated))
			Expect(m.Current().UserID).To(Equal(int64(7)))
			Expect(stored(store, tokenstore.AccessToken)).To(Equal("access-1"))
			Expect(stored(store, tokenstore.RefreshToken)).To(Equal("refresh-1"))
			token, ok := m.AccessToken()
			Expect(ok).To(BeTrue())
			Expect(token).To(Equal("access-1"))
		})

		It("does not keep a half-persisted login", func() {
			broken := mocks.NewStore(ctrl)
			m = session.New(auth, broken)
			DeferCleanup(m.Close)
			broken.EXPECT().Get(tokenstore.AccessToken).Return("", false, nil)
			Expect(m.Bootstrap(ctx)).To(Succeed())
			broken.EXPECT().Set(tokenstore.AccessToken, "access-1", gomock.Any()).Return(nil)
			broken.EXPECT().Set(tokenstore.RefreshToken, "refresh-1", gomock.Any()).Return(errors.New("keyring locked"))
			broken.EXPECT().Remove(tokenstore.AccessToken).Return(errors.New("keyring locked"))
			auth.EXPECT().Login(gomock.Any(), "alice@example.com", "correct horse").
				Return(&account.AuthResult{User: alice, Access: "access-1", Refresh: "refresh-1"}, nil)

			_, err := m.Login(ctx, "alice@example.com", "correct horse")
			Expect(err).To(MatchError(ContainSubstring("could not persist refresh token")))
			Expect(m.State()).To(Equal(session.StateAnonymous))
			Expect(m.Current()).To(BeNil())
		})

		It("surfaces the server's message as an AuthError", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			auth.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil, &protocol.ValidationError{Code: 400, Message: "Invalid credentials"})
			_, err := m.Login(ctx, "alice@example.com", "wrong")
			var authErr *protocol.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(authErr.Message).To(Equal("Invalid credentials"))
			Expect(m.State()).To(Equal(session.StateAnonymous))
			Expect(store.Len()).To(Equal(0))
		})

		It("falls back to a generic message", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			auth.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil, &protocol.ValidationError{Code: 400})
			_, err := m.Login(ctx, "alice@example.com", "wrong")
			Expect(err).To(MatchError("login failed"))
		})

		It("passes network errors through", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			auth.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, networkErr)
			_, err := m.Login(ctx, "alice@example.com", "pw")
			Expect(err).To(BeIdenticalTo(networkErr))
		})
	})

	Describe("Register", func() {
		It("logs into the new account", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			req := &account.RegisterRequest{Email: "alice@example.com", Username: "alice", Password: "longenough"}
			auth.EXPECT().Register(gomock.Any(), req).Return(&account.AuthResult{User: alice, Access: "a", Refresh: "r"}, nil)
			s, err := m.Register(ctx, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Email).To(Equal("alice@example.com"))
		})

		It("falls back to a registration message", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			auth.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, &protocol.ValidationError{Code: 400})
			_, err := m.Register(ctx, &account.RegisterRequest{})
			Expect(err).To(MatchError("registration failed"))
		})
	})

	Describe("Logout", func() {
		It("clears the session and tokens without a network call", func() {
			login()
			Expect(m.Logout()).To(Succeed())
			Expect(m.State()).To(Equal(session.StateAnonymous))
			Expect(m.Current()).To(BeNil())
			Expect(store.Len()).To(Equal(0))
			_, ok := m.AccessToken()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Invalidate", func() {
		It("ends the session exactly once under concurrent calls", func() {
			login()
			sub := m.Subscribe()
			defer sub.Close()

			var wg sync.WaitGroup
			var lock sync.Mutex
			ended := 0
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if m.Invalidate("401 from trips") {
						lock.Lock()
						ended++
						lock.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(ended).To(Equal(1))
			Expect(m.State()).To(Equal(session.StateAnonymous))
			Expect(store.Len()).To(Equal(0))

			var event session.Event
			Eventually(sub.Recv()).Should(Receive(&event))
			Expect(event.State).To(Equal(session.StateAnonymous))
			Consistently(sub.Recv(), 50*time.Millisecond).ShouldNot(Receive())
		})

		It("is a no-op when anonymous", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			Expect(m.Invalidate("401")).To(BeFalse())
		})

		It("ignores rejections of a token that was already replaced", func() {
			login()
			auth.EXPECT().RefreshToken(gomock.Any(), "refresh-1").Return(&account.TokenPair{Access: "access-2"}, nil)
			_, err := m.Refresh(ctx)
			Expect(err).ToNot(HaveOccurred())

			Expect(m.InvalidateToken("access-1", "401 from trips")).To(BeFalse())
			Expect(m.State()).To(Equal(session.StateAuthenticated))
			Expect(stored(store, tokenstore.AccessToken)).To(Equal("access-2"))

			Expect(m.InvalidateToken("access-2", "401 from trips")).To(BeTrue())
			Expect(m.State()).To(Equal(session.StateAnonymous))
			Expect(store.Len()).To(Equal(0))
		})
	})

	Describe("Refresh", func() {
		It("replaces the access token", func() {
			login()
			auth.EXPECT().RefreshToken(gomock.Any(), "refresh-1").Return(&account.TokenPair{Access: "access-2"}, nil)
			s, err := m.Refresh(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Token).To(Equal("access-2"))
			Expect(s.RefreshToken).To(Equal("refresh-1"))
			Expect(s.UserID).To(Equal(int64(7)))
			Expect(stored(store, tokenstore.AccessToken)).To(Equal("access-2"))
		})

		It("invalidates the session when the refresh token is rejected", func() {
			login()
			auth.EXPECT().RefreshToken(gomock.Any(), "refresh-1").Return(nil, expiredErr)
			_, err := m.Refresh(ctx)
			Expect(protocol.IsUnauthorized(err)).To(BeTrue())
			Expect(m.State()).To(Equal(session.StateAnonymous))
		})

		It("requires a session", func() {
			Expect(m.Bootstrap(ctx)).To(Succeed())
			_, err := m.Refresh(ctx)
			Expect(err).To(MatchError(protocol.ErrNoSession))
		})
	})

	It("publishes transitions in order", func() {
		sub := m.Subscribe()
		defer sub.Close()
		login()
		Expect(m.Logout()).To(Succeed())

		var states []session.State
		for i := 0; i < 4; i++ {
			var event session.Event
			Eventually(sub.Recv()).Should(Receive(&event))
			states = append(states, event.State)
		}
		Expect(states).To(Equal([]session.State{
			session.StateBootstrapping,
			session.StateAnonymous,
			session.StateAuthenticated,
			session.StateAnonymous,
		}))
	})
})
