// Package assets constrains images and stores them in the binary asset store.
package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"chatline/backend/internal/logger"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// ObjectStore persists bytes and returns a retrievable URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Uploader transforms images per preset and stores them behind a circuit
// breaker, so a failing object store fails fast.
type Uploader struct {
	store ObjectStore
	cb    *gobreaker.CircuitBreaker
}

func NewUploader(store ObjectStore) *Uploader {
	st := gobreaker.Settings{
		Name:        "asset-store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l := logger.L()
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &Uploader{store: store, cb: gobreaker.NewCircuitBreaker(st)}
}

// Upload constrains data with p and stores it. ErrInvalidImage when data is
// not a decodable image; any other error comes from the object store.
func (u *Uploader) Upload(ctx context.Context, data []byte, p Preset) (string, error) {
	img, err := Transform(data, p)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s.jpg", p.Name, uuid.NewString())

	res, err := u.cb.Execute(func() (interface{}, error) {
		return u.store.Put(ctx, key, img, "image/jpeg")
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// InlineStore returns objects as data URIs instead of storing them. It backs
// local runs without an object store.
type InlineStore struct{}

func (InlineStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}
