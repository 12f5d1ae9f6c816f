package product

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cokmall-api/internal/response"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Products retrieved", products)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Create(r.Context(), input)
	if err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusCreated, "Product created", p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		response.WriteError(w, h.logger, response.Validation(map[string]string{"id": "Invalid product id"}))
		return
	}

	input, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			response.WriteError(w, h.logger, response.NotFound("Product not found"))
			return
		}
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Product updated", p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		response.WriteError(w, h.logger, response.Validation(map[string]string{"id": "Invalid product id"}))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			response.WriteError(w, h.logger, response.NotFound("Product not found"))
			return
		}
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Product deleted", nil)
}

func (h *Handler) parseInput(w http.ResponseWriter, r *http.Request) (ProductInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input ProductInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		response.WriteError(w, h.logger, response.Validation(map[string]string{"body": "Invalid JSON body"}))
		return ProductInput{}, false
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.ImageURL = strings.TrimSpace(input.ImageURL)

	fields := map[string]string{}
	if input.Title == "" {
		fields["title"] = "Title is required"
	} else if !utf8.ValidString(input.Title) || len(input.Title) > 150 {
		fields["title"] = "Title is invalid"
	}
	if !utf8.ValidString(input.Description) || len(input.Description) > 1000 {
		fields["description"] = "Description is invalid"
	}
	if input.Price < 0 {
		fields["price"] = "Price must be >= 0"
	}
	if input.ImageURL != "" {
		parsedURL, err := url.ParseRequestURI(input.ImageURL)
		if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
			fields["imageUrl"] = "Image URL must be a valid http(s) link"
		}
	}

	if len(fields) > 0 {
		response.WriteError(w, h.logger, response.Validation(fields))
		return ProductInput{}, false
	}

	return input, true
}
