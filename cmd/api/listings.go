package main

import (
	"errors"
	"net/http"
	"strconv"

	"safar/internal/params"
	"safar/internal/store"

	"github.com/go-chi/chi/v5"
)

type CreateListingPayload struct {
	Title              string `json:"title" validate:"required,max=200"`
	Description        string `json:"description" validate:"required,max=2000"`
	Location           string `json:"location" validate:"required,max=200"`
	PricePerNightCents int64  `json:"price_per_night_cents" validate:"required,gt=0"`
	IsAvailable        *bool  `json:"is_available"`
}

func (app *application) createListingHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateListingPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user := getUserFromContext(r)

	listing := &store.Listing{
		Title:              payload.Title,
		Description:        payload.Description,
		Location:           payload.Location,
		PricePerNightCents: payload.PricePerNightCents,
		OwnerID:            user.ID,
		IsAvailable:        true,
	}
	if payload.IsAvailable != nil {
		listing.IsAvailable = *payload.IsAvailable
	}

	if err := app.store.Listings.Create(r.Context(), listing); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, listing); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getListingHandler(w http.ResponseWriter, r *http.Request) {
	listingID, err := strconv.ParseInt(chi.URLParam(r, "listingID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid listing id"))
		return
	}

	listing, err := app.store.Listings.GetByID(r.Context(), listingID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, listing); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) listListingsHandler(w http.ResponseWriter, r *http.Request) {
	p := params.ParsePagination(r.URL.Query())

	listings, total, err := app.store.Listings.List(r.Context(), p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	resp := map[string]any{
		"listings":   listings,
		"pagination": p,
	}

	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

type UpdateListingPayload struct {
	Title              *string `json:"title" validate:"omitempty,max=200"`
	Description        *string `json:"description" validate:"omitempty,max=2000"`
	Location           *string `json:"location" validate:"omitempty,max=200"`
	PricePerNightCents *int64  `json:"price_per_night_cents" validate:"omitempty,gt=0"`
	IsAvailable        *bool   `json:"is_available"`
}

func (app *application) updateListingHandler(w http.ResponseWriter, r *http.Request) {
	listingID, err := strconv.ParseInt(chi.URLParam(r, "listingID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid listing id"))
		return
	}

	var payload UpdateListingPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	listing, err := app.store.Listings.GetByID(r.Context(), listingID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	user := getUserFromContext(r)
	if listing.OwnerID != user.ID {
		app.unauthorizedErrorResponse(w, r, errors.New("listing belongs to another user"))
		return
	}

	if payload.Title != nil {
		listing.Title = *payload.Title
	}
	if payload.Description != nil {
		listing.Description = *payload.Description
	}
	if payload.Location != nil {
		listing.Location = *payload.Location
	}
	if payload.PricePerNightCents != nil {
		listing.PricePerNightCents = *payload.PricePerNightCents
	}
	if payload.IsAvailable != nil {
		listing.IsAvailable = *payload.IsAvailable
	}

	if err := app.store.Listings.Update(r.Context(), listing); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, listing); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) deleteListingHandler(w http.ResponseWriter, r *http.Request) {
	listingID, err := strconv.ParseInt(chi.URLParam(r, "listingID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid listing id"))
		return
	}

	listing, err := app.store.Listings.GetByID(r.Context(), listingID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	user := getUserFromContext(r)
	if listing.OwnerID != user.ID {
		app.unauthorizedErrorResponse(w, r, errors.New("listing belongs to another user"))
		return
	}

	if err := app.store.Listings.Delete(r.Context(), listingID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
