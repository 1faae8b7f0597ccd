package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	mocks "relaychat/app/tests"
)

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"))
	}
	assert.False(t, limiter.Allow("10.0.0.1"))

	// Another caller has its own budget.
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	limiter := NewRateLimiter(2, 50*time.Millisecond)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(NewRateLimiter(1, time.Minute)))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := mocks.CreateTestRequest("/ping", http.MethodGet, nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	rr := mocks.ExecuteHandler(router, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = mocks.ExecuteHandler(router, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	other := mocks.CreateTestRequest("/ping", http.MethodGet, nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.2")
	rr = mocks.ExecuteHandler(router, other)
	assert.Equal(t, http.StatusOK, rr.Code)
}
