package httpx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type statusErr int

func (s statusErr) Error() string       { return "status" }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(statusErr(429)))
	assert.True(t, IsRetryableError(statusErr(503)))
	assert.False(t, IsRetryableError(statusErr(400)))
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, RetryAfterDuration(resp, time.Second, time.Minute))
	assert.Equal(t, 5*time.Second, RetryAfterDuration(resp, time.Second, 5*time.Second))
	assert.Equal(t, time.Second, RetryAfterDuration(nil, time.Second, time.Minute))
}

func TestJitterSleepBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := JitterSleep(time.Second)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
