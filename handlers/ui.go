package handlers

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cineverse/models"
	metadatapkg "cineverse/services/metadata"
	"cineverse/services/sessions"
	"cineverse/services/stream"
	"cineverse/utils/classify"
)

//go:embed ui_templates/*
var uiTemplates embed.FS

const (
	appName           = "CineVerse"
	sessionCookieName = "cineverse_session"

	// NetworkErrorMessage is shown for every upstream failure; the cause is only logged.
	NetworkErrorMessage = "Network Slow Please Check Your Internet Connection"
	showcaseOption      = "Some Popular Genres"
	trendingColumns     = 5
)

// View is one page of the UI. The set is closed.
type View int

const (
	ViewHome View = iota
	ViewByGenre
	ViewTrending
	ViewWatch
)

var allViews = []View{ViewHome, ViewByGenre, ViewTrending, ViewWatch}

func (v View) Label() string {
	switch v {
	case ViewByGenre:
		return "By Genre"
	case ViewTrending:
		return "Trending Movies"
	case ViewWatch:
		return "Watch"
	default:
		return "Home"
	}
}

func (v View) Path() string {
	switch v {
	case ViewByGenre:
		return "/genres"
	case ViewTrending:
		return "/trending"
	case ViewWatch:
		return "/watch"
	default:
		return "/"
	}
}

func (v View) String() string {
	return strings.ToLower(strings.ReplaceAll(v.Label(), " ", "_"))
}

func (v View) templateFile() string {
	switch v {
	case ViewByGenre:
		return "genre.html"
	case ViewTrending:
		return "trending.html"
	case ViewWatch:
		return "watch.html"
	default:
		return "home.html"
	}
}

// UIOptions sizes the lists each view shows.
type UIOptions struct {
	ShowcaseGenres   []int
	ShowcasePerGenre int
	GenreCount       int
	GenreColumns     int
	MinVotes         int
	PosterSize       string
	ProxyPosters     bool
	SessionTTL       time.Duration
	CookieSecure     bool
}

// UIHandler serves the server-rendered views.
type UIHandler struct {
	svc       metadataService
	sessions  *sessions.Store
	embed     *stream.Builder
	opts      UIOptions
	templates map[View]*template.Template
	now       func() time.Time
}

func NewUIHandler(svc metadataService, store *sessions.Store, embed *stream.Builder, opts UIOptions) (*UIHandler, error) {
	if opts.ShowcasePerGenre <= 0 {
		opts.ShowcasePerGenre = 5
	}
	if opts.GenreCount <= 0 {
		opts.GenreCount = 10
	}
	if opts.GenreColumns <= 0 {
		opts.GenreColumns = 5
	}
	if opts.PosterSize == "" {
		opts.PosterSize = "w500"
	}

	funcMap := template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}

	baseContent, err := uiTemplates.ReadFile("ui_templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("read base template: %w", err)
	}
	templates := make(map[View]*template.Template, len(allViews))
	for _, v := range allViews {
		pageContent, err := uiTemplates.ReadFile("ui_templates/" + v.templateFile())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", v.templateFile(), err)
		}
		tmpl, err := template.New("page").Funcs(funcMap).Parse(string(baseContent))
		if err != nil {
			return nil, fmt.Errorf("parse base for %s: %w", v.templateFile(), err)
		}
		if tmpl, err = tmpl.Parse(string(pageContent)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", v.templateFile(), err)
		}
		templates[v] = tmpl
	}

	return &UIHandler{
		svc:       svc,
		sessions:  store,
		embed:     embed,
		opts:      opts,
		templates: templates,
		now:       time.Now,
	}, nil
}

type menuItem struct {
	Label  string
	Path   string
	Active bool
}

// titleCard is a Title after the presentation rules ran.
type titleCard struct {
	TMDBID          int64
	Name            string
	MediaType       string
	PosterURL       string
	ReleaseLabel    string
	ReleaseDate     string
	Overview        string
	Genres          string
	Popularity      string
	PopularityLabel string
	Unreleased      bool
	Language        string
}

type showcaseRow struct {
	Genre  string
	Titles []titleCard
}

type genreOption struct {
	Name     string
	Selected bool
}

type pager struct {
	Page       int
	TotalPages int
	Prev       int
	Next       int
}

type watchPanel struct {
	Query      string
	Selected   *titleCard
	IsTV       bool
	Season     int
	Episode    int
	MaxSeason  int
	MaxEpisode int
	Played     bool
	EmbedURL   string
}

type pageData struct {
	AppName string
	Heading string
	Menu    []menuItem
	Error   string
	Notice  string

	Query  string
	Result *titleCard

	GenreOptions  []genreOption
	SelectedGenre string
	Showcase      []showcaseRow
	Grid          [][]titleCard

	Pager *pager
	Watch *watchPanel
}

func (h *UIHandler) newPage(view View) pageData {
	menu := make([]menuItem, 0, len(allViews))
	for _, v := range allViews {
		menu = append(menu, menuItem{Label: v.Label(), Path: v.Path(), Active: v == view})
	}
	return pageData{AppName: appName, Heading: view.Label(), Menu: menu}
}

func (h *UIHandler) render(w http.ResponseWriter, view View, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates[view].ExecuteTemplate(w, "base", data); err != nil {
		log.Printf("[ui] template error rendering %s: %v", view, err)
	}
}

// failure turns a service error into the message shown on the page and the
// status to answer with. Not-found is a normal outcome, not a server error.
func (h *UIHandler) failure(view View, subject string, err error) (string, int) {
	kind := metadatapkg.Classify(err)
	switch kind {
	case metadatapkg.KindNotFound:
		return fmt.Sprintf("❌ %s not found", subject), http.StatusOK
	case metadatapkg.KindInvalidInput:
		log.Printf("[ui] %s rejected input %q: %v", view, subject, err)
		return fmt.Sprintf("❌ %s not found", subject), http.StatusOK
	case metadatapkg.KindCanceled:
		return NetworkErrorMessage, http.StatusBadGateway
	default:
		log.Printf("[ui] %s failed (%s): %v", view, kind, err)
		return NetworkErrorMessage, http.StatusBadGateway
	}
}

// session returns the caller's session id and state, starting a new session
// when the cookie is missing or expired.
func (h *UIHandler) session(w http.ResponseWriter, r *http.Request) (string, sessions.ViewState) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if state, ok := h.sessions.Get(cookie.Value); ok {
			return cookie.Value, state
		}
	}
	id := h.sessions.Create()
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if h.opts.SessionTTL > 0 {
		cookie.MaxAge = int(h.opts.SessionTTL.Seconds())
	}
	http.SetCookie(w, cookie)
	state, _ := h.sessions.Get(id)
	return id, state
}

func (h *UIHandler) update(id string, fn func(*sessions.ViewState)) sessions.ViewState {
	state, err := h.sessions.Update(id, fn)
	if err != nil {
		// Expired between read and write; keep serving this request.
		var fresh sessions.ViewState
		fn(&fresh)
		return fresh
	}
	return state
}

func (h *UIHandler) posterURL(t models.Title) string {
	if t.PosterPath == "" {
		return ""
	}
	if h.opts.ProxyPosters {
		return "/images/" + h.opts.PosterSize + "/" + strings.TrimPrefix(t.PosterPath, "/")
	}
	if t.Poster != nil && t.Poster.URL != "" {
		return t.Poster.URL
	}
	return h.svc.ImageURL(t.PosterPath, h.opts.PosterSize)
}

func (h *UIHandler) card(t models.Title, now time.Time) titleCard {
	c := titleCard{
		TMDBID:          t.TMDBID,
		Name:            classify.OrNotAvailable(t.Name),
		MediaType:       t.MediaType,
		PosterURL:       h.posterURL(t),
		ReleaseLabel:    classify.ReleaseLabel(t.ReleaseDate, now),
		ReleaseDate:     classify.OrNotAvailable(t.ReleaseDate),
		Overview:        classify.OrNotAvailable(t.Overview),
		Genres:          classify.JoinOrNotAvailable(models.GenreNames(t.GenreIDs)),
		Popularity:      classify.NotAvailable,
		PopularityLabel: classify.PopularityVerdict(t.Popularity, t.ReleaseDate, now),
		Language:        classify.LanguageName(t.Language),
	}
	c.Unreleased = c.PopularityLabel == classify.LabelUnreleased
	if t.Popularity != nil {
		c.Popularity = strconv.FormatFloat(*t.Popularity, 'f', -1, 64)
	}
	return c
}

func (h *UIHandler) cards(titles []models.Title) []titleCard {
	now := h.now()
	out := make([]titleCard, 0, len(titles))
	for _, t := range titles {
		out = append(out, h.card(t, now))
	}
	return out
}

func chunk(cards []titleCard, size int) [][]titleCard {
	var rows [][]titleCard
	for len(cards) > 0 {
		n := min(size, len(cards))
		rows = append(rows, cards[:n])
		cards = cards[n:]
	}
	return rows
}

// Home searches for a movie when ?q= is given and shows its best match.
func (h *UIHandler) Home(w http.ResponseWriter, r *http.Request) {
	id, state := h.session(w, r)
	data := h.newPage(ViewHome)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		data.Query = state.HomeQuery
		h.render(w, ViewHome, http.StatusOK, data)
		return
	}
	h.update(id, func(v *sessions.ViewState) { v.HomeQuery = query })
	data.Query = query

	title, err := h.svc.Search(r.Context(), query)
	if err != nil {
		msg, status := h.failure(ViewHome, query, err)
		data.Error = msg
		h.render(w, ViewHome, status, data)
		return
	}
	card := h.card(*title, h.now())
	data.Result = &card
	h.render(w, ViewHome, http.StatusOK, data)
}

// ByGenre shows the showcase rows, or the top-rated titles of one genre.
func (h *UIHandler) ByGenre(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)
	data := h.newPage(ViewByGenre)

	selected := strings.TrimSpace(r.URL.Query().Get("genre"))
	if strings.EqualFold(selected, showcaseOption) {
		selected = ""
	}

	var genre models.Genre
	if selected != "" {
		g, ok := models.GenreByName(selected)
		if !ok {
			data.GenreOptions = genreOptions("")
			data.Error = fmt.Sprintf("❌ %s not found", selected)
			h.render(w, ViewByGenre, http.StatusOK, data)
			return
		}
		genre = g
	}
	data.SelectedGenre = genre.Name
	data.GenreOptions = genreOptions(genre.Name)

	if genre.ID == 0 {
		rows, err := h.svc.Showcase(r.Context(), h.opts.ShowcaseGenres, h.opts.ShowcasePerGenre, h.opts.MinVotes)
		if err != nil {
			msg, status := h.failure(ViewByGenre, showcaseOption, err)
			data.Error = msg
			h.render(w, ViewByGenre, status, data)
			return
		}
		for _, row := range rows {
			data.Showcase = append(data.Showcase, showcaseRow{Genre: row.Genre.Name, Titles: h.cards(row.Titles)})
		}
		h.render(w, ViewByGenre, http.StatusOK, data)
		return
	}

	titles, err := h.svc.TopByGenre(r.Context(), genre.ID, h.opts.GenreCount, true, h.opts.MinVotes)
	if err != nil {
		msg, status := h.failure(ViewByGenre, genre.Name, err)
		data.Error = msg
		h.render(w, ViewByGenre, status, data)
		return
	}
	data.Grid = chunk(h.cards(titles), h.opts.GenreColumns)
	h.render(w, ViewByGenre, http.StatusOK, data)
}

func genreOptions(selected string) []genreOption {
	options := []genreOption{{Name: showcaseOption, Selected: selected == ""}}
	for _, g := range models.SelectableGenres() {
		options = append(options, genreOption{Name: g.Name, Selected: g.Name == selected})
	}
	return options
}

// Trending shows one page of TMDB's popular movies.
func (h *UIHandler) Trending(w http.ResponseWriter, r *http.Request) {
	h.session(w, r)
	data := h.newPage(ViewTrending)

	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil && p > 0 {
			page = p
		}
	}

	result, err := h.svc.Popular(r.Context(), page)
	if err != nil {
		msg, status := h.failure(ViewTrending, "page "+strconv.Itoa(page), err)
		data.Error = msg
		h.render(w, ViewTrending, status, data)
		return
	}
	data.Grid = chunk(h.cards(result.Results), trendingColumns)
	data.Pager = newPager(page, result.TotalPages)
	h.render(w, ViewTrending, http.StatusOK, data)
}

func newPager(page, totalPages int) *pager {
	totalPages = min(totalPages, 500)
	p := &pager{Page: page, TotalPages: totalPages}
	if page > 1 {
		p.Prev = page - 1
	}
	if page < totalPages {
		p.Next = page + 1
	}
	return p
}

// Watch renders the current selection. ?season= moves the season stepper.
func (h *UIHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id, state := h.session(w, r)

	if raw := strings.TrimSpace(r.URL.Query().Get("season")); raw != "" && state.TV != nil {
		if season, err := strconv.Atoi(raw); err == nil && season >= 1 && season <= maxSeason(state.TV) && season != state.Season {
			state = h.update(id, func(v *sessions.ViewState) {
				v.Season = season
				v.Episode = 1
			})
		}
	}
	h.renderWatch(w, r, state, "", http.StatusOK)
}

// WatchSearch replaces the selection with the best movie or series match.
func (h *UIHandler) WatchSearch(w http.ResponseWriter, r *http.Request) {
	id, _ := h.session(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	query := strings.TrimSpace(r.PostFormValue("q"))
	if query == "" {
		state, _ := h.sessions.Get(id)
		h.renderWatch(w, r, state, "", http.StatusOK)
		return
	}

	title, details, err := h.lookupWatchTitle(r.Context(), query)
	if err != nil {
		state := h.update(id, func(v *sessions.ViewState) { v.ClearSelection(query) })
		msg, status := h.failure(ViewWatch, query, err)
		h.renderWatch(w, r, state, msg, status)
		return
	}
	state := h.update(id, func(v *sessions.ViewState) { v.Select(query, title, details) })
	h.renderWatch(w, r, state, "", http.StatusOK)
}

func (h *UIHandler) lookupWatchTitle(ctx context.Context, query string) (*models.Title, *models.TVDetails, error) {
	title, err := h.svc.SearchMulti(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if !title.IsTV() {
		return title, nil, nil
	}
	details, err := h.svc.TVDetails(ctx, title.TMDBID)
	if err != nil {
		return nil, nil, err
	}
	return title, details, nil
}

// WatchPlay marks the selection as played at the chosen season and episode.
func (h *UIHandler) WatchPlay(w http.ResponseWriter, r *http.Request) {
	id, state := h.session(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if state.Selected == nil {
		h.renderWatch(w, r, state, "Search for a movie or series first", http.StatusOK)
		return
	}

	if !state.Selected.IsTV() {
		state = h.update(id, func(v *sessions.ViewState) { v.Played = true })
		h.renderWatch(w, r, state, "", http.StatusOK)
		return
	}

	season, errS := strconv.Atoi(strings.TrimSpace(r.PostFormValue("season")))
	episode, errE := strconv.Atoi(strings.TrimSpace(r.PostFormValue("episode")))
	if errS != nil || errE != nil || season < 1 || season > maxSeason(state.TV) {
		h.renderWatch(w, r, state, "Pick a valid season and episode", http.StatusOK)
		return
	}
	episodes, err := h.episodeCount(r.Context(), state.Selected.TMDBID, state.TV, season)
	if err != nil {
		msg, status := h.failure(ViewWatch, state.Selected.Name, err)
		h.renderWatch(w, r, state, msg, status)
		return
	}
	if episode < 1 || episode > episodes {
		h.renderWatch(w, r, state, "Pick a valid season and episode", http.StatusOK)
		return
	}

	state = h.update(id, func(v *sessions.ViewState) {
		v.Season = season
		v.Episode = episode
		v.Played = true
	})
	h.renderWatch(w, r, state, "", http.StatusOK)
}

// episodeCount prefers the count from the series details and only asks for
// the season when TMDB left it out.
func (h *UIHandler) episodeCount(ctx context.Context, tmdbID int64, details *models.TVDetails, season int) (int, error) {
	if n := details.EpisodeCount(season); n > 0 {
		return n, nil
	}
	s, err := h.svc.TVSeason(ctx, tmdbID, season)
	if err != nil {
		return 0, err
	}
	return len(s.Episodes), nil
}

func maxSeason(details *models.TVDetails) int {
	if details == nil {
		return 0
	}
	if details.NumberOfSeasons > 0 {
		return details.NumberOfSeasons
	}
	n := 0
	for _, s := range details.Seasons {
		n = max(n, s.SeasonNumber)
	}
	return n
}

func (h *UIHandler) renderWatch(w http.ResponseWriter, r *http.Request, state sessions.ViewState, errMsg string, status int) {
	data := h.newPage(ViewWatch)
	data.Error = errMsg
	panel := &watchPanel{Query: state.WatchQuery, Played: state.Played}
	data.Watch = panel

	if state.Selected == nil {
		h.render(w, ViewWatch, status, data)
		return
	}
	card := h.card(*state.Selected, h.now())
	panel.Selected = &card

	req := stream.EmbedRequest{MediaType: state.Selected.MediaType, TMDBID: state.Selected.TMDBID}
	if state.Selected.IsTV() {
		panel.IsTV = true
		panel.Season = state.Season
		panel.Episode = state.Episode
		panel.MaxSeason = maxSeason(state.TV)
		episodes, err := h.episodeCount(r.Context(), state.Selected.TMDBID, state.TV, state.Season)
		if err != nil {
			msg, errStatus := h.failure(ViewWatch, state.Selected.Name, err)
			data.Error = msg
			h.render(w, ViewWatch, errStatus, data)
			return
		}
		panel.MaxEpisode = episodes
		req.Season, req.Episode = state.Season, state.Episode
	}

	if state.Played && h.embed != nil {
		embedURL, err := h.embed.BuildURL(req)
		if err != nil {
			log.Printf("[ui] embed url for %s %d: %v", req.MediaType, req.TMDBID, err)
			data.Error = "This title cannot be played"
		} else {
			panel.EmbedURL = embedURL
		}
	}
	h.render(w, ViewWatch, status, data)
}
