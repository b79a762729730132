package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/MKhiriev/go-vault-sync/internal/config"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
	"github.com/MKhiriev/go-vault-sync/models"
)

type httpStorage struct {
	client  *resty.Client
	session *Session

	logger *logger.Logger
}

// NewHTTPStorage constructs the HTTP/REST implementation of [Storage]. It
// normalises and validates the base URL from cfg.HTTPAddress and configures
// the underlying resty client with the resolved base URL and request timeout.
// session may be nil, in which case requests are sent unauthenticated (used
// by tests against a local server).
//
// Returns an error if cfg.HTTPAddress is empty or cannot be parsed as a valid
// URL.
func NewHTTPStorage(cfg config.Adapter, session *Session, logger *logger.Logger) (Storage, error) {
	baseURL, err := normalizeBaseURL(cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid adapter http address: %w", err)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.RequestTimeout)

	return &httpStorage{client: client, session: session, logger: logger}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// ListContainers implements [Storage]. It GETs /api/containers and decodes
// the account's container listing.
func (h *httpStorage) ListContainers(ctx context.Context) ([]models.Container, error) {
	resp, err := h.authedRequest(ctx).Get("/api/containers")
	if err != nil {
		return nil, mapTransportError("list containers", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var containers []models.Container
	if err = json.Unmarshal(resp.Body(), &containers); err != nil {
		return nil, fmt.Errorf("decode container listing: %w", err)
	}

	return containers, nil
}

// List implements [Storage]. It GETs /api/containers/{id}/files and decodes
// the object listing for one container.
func (h *httpStorage) List(ctx context.Context, containerID string) ([]models.RemoteObject, error) {
	resp, err := h.authedRequest(ctx).
		SetPathParam("container", containerID).
		Get("/api/containers/{container}/files")
	if err != nil {
		return nil, mapTransportError("list objects", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var objects []models.RemoteObject
	if err = json.Unmarshal(resp.Body(), &objects); err != nil {
		return nil, fmt.Errorf("decode object listing: %w", err)
	}

	return objects, nil
}

type revisionResponse struct {
	Revision string `json:"revision"`
}

// Upload implements [Storage]. It PUTs the object content to
// PUT /api/containers/{id}/files/{path} and returns the revision assigned by
// the server.
func (h *httpStorage) Upload(ctx context.Context, containerID, path string, content io.Reader) (string, error) {
	resp, err := h.authedRequest(ctx).
		SetPathParam("container", containerID).
		SetRawPathParam("path", path).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(content).
		Put("/api/containers/{container}/files/{path}")
	if err != nil {
		return "", mapTransportError("upload", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return "", err
	}

	var rev revisionResponse
	if err = json.Unmarshal(resp.Body(), &rev); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}

	return rev.Revision, nil
}

// Download implements [Storage]. It GETs the object content from
// GET /api/containers/{id}/files/{path}. The object revision is carried in
// the X-Revision response header.
func (h *httpStorage) Download(ctx context.Context, containerID, path string) ([]byte, string, error) {
	resp, err := h.authedRequest(ctx).
		SetPathParam("container", containerID).
		SetRawPathParam("path", path).
		Get("/api/containers/{container}/files/{path}")
	if err != nil {
		return nil, "", mapTransportError("download", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, "", err
	}

	return resp.Body(), resp.Header().Get("X-Revision"), nil
}

// Delete implements [Storage]. It sends
// DELETE /api/containers/{id}/files/{path}. A missing object surfaces as
// ErrNotFound; the caller decides whether that is a failure.
func (h *httpStorage) Delete(ctx context.Context, containerID, path string) error {
	resp, err := h.authedRequest(ctx).
		SetPathParam("container", containerID).
		SetRawPathParam("path", path).
		Delete("/api/containers/{container}/files/{path}")
	if err != nil {
		return mapTransportError("delete", err)
	}

	return mapHTTPError(resp)
}

// Move implements [Storage]. It POSTs the destination path to
// POST /api/containers/{id}/files/{path}/move, renaming the object
// server-side without re-transferring content, and returns the revision at
// the destination.
func (h *httpStorage) Move(ctx context.Context, containerID, fromPath, toPath string) (string, error) {
	resp, err := h.authedRequest(ctx).
		SetPathParam("container", containerID).
		SetRawPathParam("path", fromPath).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"to": toPath}).
		Post("/api/containers/{container}/files/{path}/move")
	if err != nil {
		return "", mapTransportError("move", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return "", err
	}

	var rev revisionResponse
	if err = json.Unmarshal(resp.Body(), &rev); err != nil {
		return "", fmt.Errorf("decode move response: %w", err)
	}

	return rev.Revision, nil
}

func (h *httpStorage) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	if h.session != nil {
		if token, err := h.session.AccessToken(ctx); err == nil {
			req.SetHeader("Authorization", "Bearer "+token)
		}
	}
	return req
}
