package catalog

import "cinelog/models"

// Normalize maps one raw upstream entry into the canonical MediaItem shape.
// It dispatches on the media_type discriminator; an unknown discriminator
// yields nil, which callers filter out — upstream is known to return the
// occasional partial or malformed entry and that is not an error. Missing
// fields degrade to zero values, never to a panic, because list payloads are
// shallower than detail payloads. Normalizing the same input twice yields
// structurally equal output.
func Normalize(raw RawMediaItem) *models.MediaItem {
	switch raw.MediaType {
	case "movie":
		return &models.MediaItem{
			ID:           raw.ID,
			MediaType:    models.MediaTypeMovie,
			Popularity:   raw.Popularity,
			Title:        raw.Title,
			ReleaseDate:  raw.ReleaseDate,
			Overview:     raw.Overview,
			PosterPath:   raw.PosterPath,
			BackdropPath: raw.BackdropPath,
			VoteAverage:  raw.VoteAverage,
			VoteCount:    raw.VoteCount,
			GenreIDs:     genreIDs(raw),
		}
	case "tv":
		// TV payloads alias title as name and release_date as first_air_date.
		title := raw.Name
		if title == "" {
			title = raw.Title
		}
		release := raw.FirstAirDate
		if release == "" {
			release = raw.ReleaseDate
		}
		return &models.MediaItem{
			ID:           raw.ID,
			MediaType:    models.MediaTypeTV,
			Popularity:   raw.Popularity,
			Title:        title,
			ReleaseDate:  release,
			Overview:     raw.Overview,
			PosterPath:   raw.PosterPath,
			BackdropPath: raw.BackdropPath,
			VoteAverage:  raw.VoteAverage,
			VoteCount:    raw.VoteCount,
			GenreIDs:     genreIDs(raw),
		}
	case "person":
		return &models.MediaItem{
			ID:                 raw.ID,
			MediaType:          models.MediaTypePerson,
			Popularity:         raw.Popularity,
			Name:               raw.Name,
			KnownForDepartment: raw.KnownForDepartment,
			ProfilePath:        raw.ProfilePath,
			KnownFor:           normalizeKnownFor(raw.KnownFor),
		}
	default:
		return nil
	}
}

// normalizeKnownFor maps a person's known-for credits, depth-limited to one
// level: nested known_for payloads are stripped before recursing so entries
// can never carry credits of their own.
func normalizeKnownFor(raws []RawMediaItem) []models.MediaItem {
	items := make([]models.MediaItem, 0, len(raws))
	for _, raw := range raws {
		raw.KnownFor = nil
		if item := Normalize(raw); item != nil {
			items = append(items, *item)
		}
	}
	return items
}

// genreIDs flattens either payload form (genre_ids on list entries, expanded
// genres on detail entries) into ids, defaulting to an empty slice.
func genreIDs(raw RawMediaItem) []int64 {
	if len(raw.GenreIDs) > 0 {
		ids := make([]int64, len(raw.GenreIDs))
		copy(ids, raw.GenreIDs)
		return ids
	}
	ids := make([]int64, 0, len(raw.Genres))
	for _, g := range raw.Genres {
		ids = append(ids, g.ID)
	}
	return ids
}

// NormalizeAll maps a raw results array, silently dropping entries with an
// unrecognized discriminator.
func NormalizeAll(raws []RawMediaItem) []models.MediaItem {
	items := make([]models.MediaItem, 0, len(raws))
	for _, raw := range raws {
		if item := Normalize(raw); item != nil {
			items = append(items, *item)
		}
	}
	return items
}

func normalizePage(raw *rawPage) models.PagedResults {
	if raw == nil {
		return models.PagedResults{Items: []models.MediaItem{}}
	}
	return models.PagedResults{
		Page:         raw.Page,
		TotalPages:   raw.TotalPages,
		TotalResults: raw.TotalResults,
		Items:        NormalizeAll(raw.Results),
	}
}
