// Package api is the thin HTTP glue spec §1 treats as an external
// collaborator: request routing, (a stand-in for) bearer authentication,
// and translating core package errors to wire responses. It is built the
// way the teacher's API.initRouter/registerHandlers pair is built
// (api/api.go, api/routes.go in the teacher repo): a chi.Mux, CORS,
// request logging, panic recovery, and throttling middleware, registered
// once at construction.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/civitas-vote/ballotauth/election"
	"github.com/civitas-vote/ballotauth/log"
	"github.com/civitas-vote/ballotauth/tally"
	"github.com/civitas-vote/ballotauth/token"
	"github.com/civitas-vote/ballotauth/voting"
)

// Config is the configuration needed to construct an API.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string

	Elections *election.Registry
	Tokens    *token.Authority
	Votes     *voting.Engine
	Tallies   *tally.Aggregator
}

// API is the HTTP surface over C3-C6.
type API struct {
	router    *chi.Mux
	elections *election.Registry
	tokens    *token.Authority
	votes     *voting.Engine
	tallies   *tally.Aggregator
}

// NewRouter builds an API and its chi.Mux without starting an HTTP
// listener, so tests can drive it with httptest directly.
func NewRouter(conf *Config) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Elections == nil || conf.Tokens == nil || conf.Votes == nil || conf.Tallies == nil {
		return nil, fmt.Errorf("missing core component in API configuration")
	}
	a := &API{
		elections: conf.Elections,
		tokens:    conf.Tokens,
		votes:     conf.Votes,
		tallies:   conf.Tallies,
	}
	a.initRouter(conf.CORSOrigins)
	return a, nil
}

// New constructs an API and starts its HTTP listener in the background.
func New(conf *Config) (*API, error) {
	a, err := NewRouter(conf)
	if err != nil {
		return nil, err
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", conf.Host, conf.Port)
		log.Infow("starting API server", "addr", addr)
		if err := http.ListenAndServe(addr, a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router, for use in tests.
func (a *API) Router() *chi.Mux {
	return a.router
}

func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) { httpWriteOK(w) })

	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "POST")
	a.router.Post(ElectionsEndpoint, a.createElection)
	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	a.router.Get(ElectionEndpoint, a.getElection)
	log.Infow("register handler", "endpoint", ElectionResultsEndpoint, "method", "GET")
	a.router.Get(ElectionResultsEndpoint, a.electionResults)
	log.Infow("register handler", "endpoint", ElectionPublicKeyEndpoint, "method", "GET")
	a.router.Get(ElectionPublicKeyEndpoint, a.electionPublicKey)

	log.Infow("register handler", "endpoint", BlindTokensEndpoint, "method", "POST")
	a.router.Post(BlindTokensEndpoint, a.requestBlindToken)
	log.Infow("register handler", "endpoint", MyBlindTokenEndpoint, "method", "GET")
	a.router.Get(MyBlindTokenEndpoint, a.myBlindToken)

	log.Infow("register handler", "endpoint", CastBallotEndpoint, "method", "POST")
	a.router.Post(CastBallotEndpoint, a.castBallot)
	log.Infow("register handler", "endpoint", LegacyCastBallotEndpoint, "method", "POST")
	a.router.Post(LegacyCastBallotEndpoint, a.legacyCastBallot)

	log.Infow("register handler", "endpoint", MyReceiptEndpoint, "method", "GET")
	a.router.Get(MyReceiptEndpoint, a.myReceipt)
	log.Infow("register handler", "endpoint", HasVotedEndpoint, "method", "GET")
	a.router.Get(HasVotedEndpoint, a.hasVoted)
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func (a *API) initRouter(corsOrigins []string) {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	logHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if log.Level() != log.LogLevelDebug || r.URL.Path == PingEndpoint {
				next.ServeHTTP(w, r)
				return
			}

			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "unable to read request body", http.StatusInternalServerError)
				bufPool.Put(buf)
				return
			}
			buf.Write(bodyBytes)

			log.Debugw("api request",
				"method", r.Method,
				"url", r.URL.String(),
				"body", strings.ReplaceAll(buf.String(), "\"", ""),
			)

			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bufPool.Put(buf)

			next.ServeHTTP(w, r)
		})
	}

	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Voter-Id", "X-Voter-Admin"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(logHandler)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.Use(devAuthMiddleware)

	a.registerHandlers()
}

// ctxTimeout bounds how long a single handler's core call may run, a
// defense-in-depth complement to middleware.Timeout above.
func ctxTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 30*time.Second)
}
