package router

import (
	"net/http"

	"github.com/khaled-muhammad/thoughty/internal/auth"
	"github.com/khaled-muhammad/thoughty/internal/battles"
	"github.com/khaled-muhammad/thoughty/internal/brainstorm"
	"github.com/khaled-muhammad/thoughty/internal/gamification"
	"github.com/khaled-muhammad/thoughty/internal/mentor"
	"github.com/khaled-muhammad/thoughty/internal/middleware"
	"github.com/khaled-muhammad/thoughty/internal/pods"
)

type Handlers struct {
	Auth        *auth.Handler
	Pods        *pods.Handler
	Battles     *battles.Handler
	Gamify      *gamification.Handler
	Mentor      *mentor.Handler
	Brainstorm  *brainstorm.Handler
	AuthService auth.Service
}

// New returns an http.Handler that serves the API under /api/v1.
func New(h Handlers) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	required := middleware.RequireAuth(h.AuthService)
	optional := middleware.OptionalAuth(h.AuthService)

	open := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, fn)
	}
	viewer := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, optional(fn))
	}
	authed := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, required(fn))
	}

	open("POST "+base+"/auth/register", h.Auth.Register)
	open("POST "+base+"/auth/login", h.Auth.Login)
	open("POST "+base+"/auth/guest", h.Auth.Guest)
	open("GET "+base+"/auth/me", h.Auth.Me)

	authed("POST "+base+"/pods", h.Pods.Create)
	viewer("GET "+base+"/pods", h.Pods.List)
	viewer("GET "+base+"/pods/{id}", h.Pods.Get)
	authed("PUT "+base+"/pods/{id}", h.Pods.Update)
	authed("PATCH "+base+"/pods/{id}", h.Pods.Update)
	viewer("GET "+base+"/pods/{id}/history", h.Pods.History)

	authed("POST "+base+"/battles", h.Battles.Create)
	open("GET "+base+"/battles", h.Battles.List)
	open("GET "+base+"/battles/{id}", h.Battles.Get)
	authed("POST "+base+"/battles/{id}/vote", h.Battles.Vote)
	open("GET "+base+"/battles/{id}/results", h.Battles.Results)
	open("GET "+base+"/battles/{id}/ai-verdict", h.Battles.AIVerdict)

	authed("GET "+base+"/gamification/badges", h.Gamify.ListBadges)
	open("GET "+base+"/gamification/leaderboard", h.Gamify.Leaderboard)
	authed("GET "+base+"/gamification/transactions", h.Gamify.ListTransactions)

	authed("GET "+base+"/mentor/profile", h.Mentor.Profile)
	authed("POST "+base+"/mentor/insights", h.Mentor.GenerateInsights)
	authed("GET "+base+"/mentor/suggestions", h.Mentor.Suggestions)

	open("GET "+base+"/brainstorm/prompts", h.Brainstorm.ListPrompts)
	authed("POST "+base+"/brainstorm/roulette", h.Brainstorm.Spin)
	open("GET "+base+"/brainstorm/variations", h.Brainstorm.ListVariations)
	authed("POST "+base+"/brainstorm/variations", h.Brainstorm.CreateVariations)
	authed("POST "+base+"/brainstorm/variations/{id}/pod", h.Brainstorm.CreatePod)

	return mux
}
