package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront-sync/internal/addresses"
	"github.com/imrishuroy/go-storefront-sync/internal/auth"
	"github.com/imrishuroy/go-storefront-sync/internal/validation"
)

// RegisterAddressRoutes registers the buyer address routes.
func RegisterAddressRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()
	session := auth.Middleware(cfg.Auth)

	r.POST("/user/add-address", session, handle(func(c *gin.Context) Response {
		id, _ := auth.FromContext(c)

		var req validation.AddAddressRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return nil
		}

		in := req.Address
		addr := addresses.Address{
			ID:          uuid.NewString(),
			UserID:      id.UserID,
			FullName:    in.FullName,
			PhoneNumber: in.PhoneNumber,
			Pincode:     in.Pincode,
			Area:        in.Area,
			City:        in.City,
			State:       in.State,
		}
		if err := cfg.Addresses.Create(c.Request.Context(), addr); err != nil {
			return failure(c, err)
		}
		return Ok{Message: "Address added successfully", Key: "newAddress", Data: addr}
	}))

	r.GET("/user/get-address", session, handle(func(c *gin.Context) Response {
		id, _ := auth.FromContext(c)
		list, err := cfg.Addresses.ListByUser(c.Request.Context(), id.UserID)
		if err != nil {
			return failure(c, err)
		}
		return Ok{Key: "addresses", Data: list}
	}))
}
