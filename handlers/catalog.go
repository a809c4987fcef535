package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"cinelog/models"
	"cinelog/services/catalog"
)

type catalogService interface {
	SearchMulti(ctx context.Context, query string, page int) (models.PagedResults, error)
	SearchPeople(ctx context.Context, query string, page int) (models.PagedResults, error)
	Trending(ctx context.Context, mediaType, window string) ([]models.MediaItem, error)
	Discover(ctx context.Context, mediaType string, genreID int64, sortBy string, page int) (models.PagedResults, error)
	MovieList(ctx context.Context, list string, page int) (models.PagedResults, error)
	Details(ctx context.Context, mediaType string, id int64) (*models.MediaItem, error)
	Similar(ctx context.Context, mediaType string, id int64) ([]models.MediaItem, error)
	Genres(ctx context.Context, mediaType string) ([]models.Genre, error)
	PersonDetails(ctx context.Context, id int64) (*models.MediaItem, error)
	HomeSections(ctx context.Context) (*catalog.HomePage, error)
}

var _ catalogService = (*catalog.Service)(nil)

// CatalogHandler serves the upstream-backed browse and search endpoints.
type CatalogHandler struct {
	Service catalogService
}

func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{Service: service}
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	page := queryPage(r)

	var (
		results models.PagedResults
		err     error
	)
	if r.URL.Query().Get("scope") == "person" {
		results, err = h.Service.SearchPeople(r.Context(), query, page)
	} else {
		results, err = h.Service.SearchMulti(r.Context(), query, page)
	}
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, results)
}

func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.HomeSections(r.Context())
	if err != nil {
		if errors.Is(err, catalog.ErrAllSectionsFailed) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, page)
}

func (h *CatalogHandler) Trending(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	window := r.URL.Query().Get("window")
	items, err := h.Service.Trending(r.Context(), vars["mediaType"], window)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) Discover(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	genreID, _ := strconv.ParseInt(r.URL.Query().Get("genre"), 10, 64)
	sortBy := r.URL.Query().Get("sort")
	results, err := h.Service.Discover(r.Context(), vars["mediaType"], genreID, sortBy, queryPage(r))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, results)
}

func (h *CatalogHandler) MovieList(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	results, err := h.Service.MovieList(r.Context(), vars["list"], queryPage(r))
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownList) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, results)
}

func (h *CatalogHandler) Details(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var item *models.MediaItem
	if vars["mediaType"] == string(models.MediaTypePerson) {
		item, err = h.Service.PersonDetails(r.Context(), id)
	} else {
		item, err = h.Service.Details(r.Context(), vars["mediaType"], id)
	}
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if item == nil {
		http.Error(w, "title not found", http.StatusNotFound)
		return
	}
	writeJSON(w, item)
}

func (h *CatalogHandler) Similar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	items, err := h.Service.Similar(r.Context(), vars["mediaType"], id)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) Genres(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	genres, err := h.Service.Genres(r.Context(), vars["mediaType"])
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, genres)
}

func writeCatalogError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, catalog.ErrUpstream) {
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}

func queryPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
