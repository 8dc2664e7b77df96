package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// replayedResponse is a stored answer to an idempotent request.
type replayedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// capturingWriter copies everything written to the client.
type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a client retries a POST with
// the same Idempotency-Key. Keys are scoped to the caller and route, so two
// users cannot collide. Redis failures disable replay for that request.
// Must run after Identity.
func Idempotency(client redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if client == nil || key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := idempotencyKey(c, key)

		stored, err := loadResponse(ctx, client, storeKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}
		if stored != nil {
			c.Header("Idempotent-Replay", "true")
			c.Data(stored.StatusCode, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		status := w.Status()
		if replayable(status) {
			_ = storeResponse(context.WithoutCancel(ctx), client, storeKey, &replayedResponse{
				StatusCode:  status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        w.body.Bytes(),
			})
		}
	}
}

// replayable reports whether a response may be stored for replay. Anything
// but a success stays retryable with the same key.
func replayable(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func idempotencyKey(c *gin.Context, key string) string {
	caller := "anonymous"
	if p, ok := PrincipalFrom(c); ok {
		caller = p.UserID
	}
	return "idempotency:" + caller + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key
}

func loadResponse(ctx context.Context, client redis.Cmdable, key string) (*replayedResponse, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var stored replayedResponse
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func storeResponse(ctx context.Context, client redis.Cmdable, key string, resp *replayedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, idempotencyTTL).Err()
}
