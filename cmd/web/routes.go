package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/httputil"
	"github.com/AdamBeresnev/bot-arena/internal/service"
	"github.com/AdamBeresnev/bot-arena/views"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type application struct {
	bots        *service.BotService
	tournaments *service.TournamentService
	matches     *service.MatchService
	scheduler   *service.Scheduler
	// baseCtx bounds scheduler loops launched from requests
	baseCtx context.Context
}

type createBotRequest struct {
	Name string `json:"name"`
}

type joinRequest struct {
	BotID uuid.UUID `json:"bot_id"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func urlID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "Invalid ID", err)
		return uuid.Nil, false
	}
	return id, true
}

// queryInts parses the non-negative integer query parameters present in
// targets. Absent keys leave their target untouched.
func queryInts(w http.ResponseWriter, query url.Values, targets map[string]*int) bool {
	for key, target := range targets {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "Invalid "+key, err)
			return false
		}
		*target = n
	}
	return true
}

func newRouter(app *application) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Post("/bots", func(w http.ResponseWriter, r *http.Request) {
		var req createBotRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, "Invalid request body", err)
			return
		}
		bot, err := app.bots.Register(r.Context(), req.Name)
		if err != nil {
			httputil.Error(w, "Failed to register bot", err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, bot)
	})

	r.Get("/bots/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r)
		if !ok {
			return
		}
		bot, err := app.bots.Get(r.Context(), id)
		if err != nil {
			httputil.Error(w, "Failed to get bot", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, bot)
	})

	r.Get("/bots/{id}/stats", func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r)
		if !ok {
			return
		}
		stats, err := app.bots.Stats(r.Context(), id, r.URL.Query().Get("game_type"))
		if err != nil {
			httputil.Error(w, "Failed to get bot stats", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, stats)
	})

	r.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter := service.LeaderboardFilter{GameType: query.Get("game_type")}
		if !queryInts(w, query, map[string]*int{"limit": &filter.Limit, "min_games": &filter.MinGames}) {
			return
		}
		entries, err := app.bots.Leaderboard(r.Context(), filter)
		if err != nil {
			httputil.Error(w, "Failed to get leaderboard", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, entries)
	})

	r.Route("/tournaments", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var input service.CreateInput
			if err := httputil.DecodeJSON(r, &input); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			tournament, err := app.tournaments.Create(r.Context(), input)
			if err != nil {
				httputil.Error(w, "Failed to create tournament", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, tournament)
		})

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			filter := service.ListFilter{
				Status:   bracket.TournamentStatus(query.Get("status")),
				GameType: query.Get("game_type"),
			}
			if !queryInts(w, query, map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset}) {
				return
			}

			page, err := app.tournaments.List(r.Context(), filter)
			if err != nil {
				httputil.Error(w, "Failed to list tournaments", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, page)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlID(w, r)
				if !ok {
					return
				}
				tournament, err := app.tournaments.Get(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to get tournament", err)
					return
				}
				participants, err := app.tournaments.Participants(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to get participants", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, map[string]any{
					"tournament":   tournament,
					"participants": participants,
				})
			})

			r.Post("/join", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlID(w, r)
				if !ok {
					return
				}
				var req joinRequest
				if err := httputil.DecodeJSON(r, &req); err != nil {
					httputil.BadRequest(w, "Invalid request body", err)
					return
				}
				participant, err := app.tournaments.Join(r.Context(), id, req.BotID)
				if err != nil {
					httputil.Error(w, "Failed to join tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, participant)
			})

			r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlID(w, r)
				if !ok {
					return
				}
				tournament, err := app.tournaments.Start(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to start tournament", err)
					return
				}
				app.scheduler.Launch(app.baseCtx, id)
				httputil.WriteJSON(w, http.StatusOK, tournament)
			})

			r.Post("/advance", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlID(w, r)
				if !ok {
					return
				}
				advanced, err := app.tournaments.Advance(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to advance tournament", err)
					return
				}
				tournament, err := app.tournaments.Get(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to get tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, map[string]any{
					"advanced":   advanced,
					"tournament": tournament,
				})
			})

			r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlID(w, r)
				if !ok {
					return
				}
				var req cancelRequest
				if err := httputil.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
					httputil.BadRequest(w, "Invalid request body", err)
					return
				}
				if req.Reason == "" {
					req.Reason = "cancelled by host"
				}
				if err := app.tournaments.Cancel(r.Context(), id, req.Reason); err != nil {
					httputil.Error(w, "Failed to cancel tournament", err)
					return
				}
				app.scheduler.Stop(id)
				w.WriteHeader(http.StatusNoContent)
			})

			r.Get("/bracket", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlID(w, r)
				if !ok {
					return
				}
				view, err := app.tournaments.GetBracket(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to get bracket", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, view)
			})

			r.Get("/bracket/view", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlID(w, r)
				if !ok {
					return
				}
				view, err := app.tournaments.GetBracket(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to get bracket", err)
					return
				}
				if err := views.Render(w, r, views.BracketPage(view)); err != nil {
					httputil.InternalServerError(w, "Failed to render bracket", err)
				}
			})
		})
	})

	r.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			id, ok := urlID(w, r)
			if !ok {
				return
			}
			match, err := app.matches.GetMatch(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, match)
		})

		r.Get("/moves", func(w http.ResponseWriter, r *http.Request) {
			id, ok := urlID(w, r)
			if !ok {
				return
			}
			moves, err := app.matches.GetMoves(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get moves", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, moves)
		})
	})

	return r
}
