package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/logger"
)

// Response is what a route returns. Every response is written as the
// envelope {success, message?, <key>?}, with status 200 unless an Err
// carries its own.
type Response interface {
	envelope() gin.H
}

// Ok is a successful response. Data is written under Key when Key is set.
type Ok struct {
	Message string
	Key     string
	Data    interface{}
}

func (o Ok) envelope() gin.H {
	h := gin.H{"success": true}
	if o.Message != "" {
		h["message"] = o.Message
	}
	if o.Key != "" {
		h[o.Key] = o.Data
	}
	return h
}

// Err is a failed response. Status stays zero (200) on REST routes; event
// ingress sets it so the sender redelivers.
type Err struct {
	Message string
	Status  int
}

func (e Err) envelope() gin.H {
	return gin.H{"success": false, "message": e.Message}
}

// routeFunc returns nil when it has already written the response itself.
type routeFunc func(c *gin.Context) Response

// handle adapts a routeFunc to gin. Panics become an Err envelope.
func handle(fn routeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(c.Request.Context()).Error("handler panicked",
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				c.JSON(http.StatusOK, Err{Message: fmt.Sprint(r)}.envelope())
			}
		}()

		res := fn(c)
		if res == nil || c.Writer.Written() {
			return
		}
		status := http.StatusOK
		if e, ok := res.(Err); ok && e.Status != 0 {
			status = e.Status
		}
		c.JSON(status, res.envelope())
	}
}

// failure logs err and converts it to the envelope.
func failure(c *gin.Context, err error) Response {
	logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
	return Err{Message: err.Error()}
}

// retryLater is failure for event ingress: the 5xx tells the sender to
// deliver again.
func retryLater(c *gin.Context, err error) Response {
	logger.FromContext(c.Request.Context()).Error("delivery failed", zap.Error(err))
	return Err{Message: err.Error(), Status: http.StatusInternalServerError}
}
