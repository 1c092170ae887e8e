package handlers

import (
	"errors"
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-storefront-sync/internal/auth"
	"github.com/imrishuroy/go-storefront-sync/internal/products"
	"github.com/imrishuroy/go-storefront-sync/internal/validation"
)

const (
	msgNotAuthorized   = "Not Authorized!"
	msgSellerOnly      = "Not authorized"
	msgProductNotFound = "Product not found or not authorized"
	msgNoImages        = "No files uploaded"
	maxProductImages   = 4
)

// RegisterProductsRoutes registers the catalog routes.
func RegisterProductsRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()
	session := auth.Middleware(cfg.Auth)

	r.GET("/products/list", handle(func(c *gin.Context) Response {
		list, err := cfg.Products.List(c.Request.Context())
		if err != nil {
			return failure(c, err)
		}
		return Ok{Key: "products", Data: list}
	}))

	r.GET("/products/seller-list", session, handle(func(c *gin.Context) Response {
		id, _ := auth.FromContext(c)
		if !cfg.Auth.IsSeller(id) {
			return Err{Message: msgSellerOnly}
		}
		list, err := cfg.Products.List(c.Request.Context())
		if err != nil {
			return failure(c, err)
		}
		return Ok{Key: "products", Data: list}
	}))

	r.GET("/products/:id", session, handle(func(c *gin.Context) Response {
		id, _ := auth.FromContext(c)
		p, err := cfg.Products.GetOwned(c.Request.Context(), c.Param("id"), id.UserID)
		if errors.Is(err, products.ErrNotFound) || errors.Is(err, products.ErrNotOwned) {
			return Err{Message: msgProductNotFound}
		}
		if err != nil {
			return failure(c, err)
		}
		return Ok{Key: "product", Data: p}
	}))

	r.POST("/products/add", session, handle(func(c *gin.Context) Response {
		ctx := c.Request.Context()
		id, _ := auth.FromContext(c)
		if !cfg.Auth.IsSeller(id) {
			return Err{Message: msgNotAuthorized}
		}

		var form validation.ProductForm
		if err := validation.BindFormAndValidate(c, &form, v); err != nil {
			// BindFormAndValidate already wrote the envelope
			return nil
		}
		files := formFiles(c)
		if len(files) == 0 {
			return Err{Message: msgNoImages}
		}
		urls, err := uploadAll(c, cfg, files)
		if err != nil {
			return failure(c, err)
		}

		p := products.Product{
			ID:          uuid.NewString(),
			UserID:      id.UserID,
			Name:        form.Name,
			Description: form.Description,
			Category:    form.Category,
			Price:       form.Price,
			OfferPrice:  form.OfferPrice,
			Image:       urls,
			Date:        cfg.now().UnixMilli(),
		}
		if err := cfg.Products.Create(ctx, p); err != nil {
			return failure(c, err)
		}
		return Ok{Message: "Upload successful", Key: "newProduct", Data: p}
	}))

	r.PUT("/products/update/:id", session, handle(func(c *gin.Context) Response {
		ctx := c.Request.Context()
		id, _ := auth.FromContext(c)
		if !cfg.Auth.IsSeller(id) {
			return Err{Message: msgNotAuthorized}
		}

		// ownership is settled before any field is read
		existing, err := cfg.Products.GetOwned(ctx, c.Param("id"), id.UserID)
		switch {
		case errors.Is(err, products.ErrNotFound):
			return Err{Message: msgProductNotFound}
		case errors.Is(err, products.ErrNotOwned):
			return Err{Message: msgNotAuthorized}
		case err != nil:
			return failure(c, err)
		}

		var form validation.ProductForm
		if err := validation.BindFormAndValidate(c, &form, v); err != nil {
			return nil
		}

		image := append([]string{}, c.PostFormArray("existingImages")...)
		uploaded, err := uploadAll(c, cfg, formFiles(c))
		if err != nil {
			return failure(c, err)
		}
		image = append(image, uploaded...)

		updated, err := cfg.Products.Update(ctx, products.Product{
			ID:          existing.ID,
			UserID:      id.UserID,
			Name:        form.Name,
			Description: form.Description,
			Category:    form.Category,
			Price:       form.Price,
			OfferPrice:  form.OfferPrice,
			Image:       image,
			Date:        cfg.now().UnixMilli(),
		})
		if errors.Is(err, products.ErrNotOwned) {
			return Err{Message: msgNotAuthorized}
		}
		if err != nil {
			return failure(c, err)
		}
		return Ok{Message: "Product updated successfully", Key: "updatedProduct", Data: updated}
	}))

	r.DELETE("/products/delete/:id", session, handle(func(c *gin.Context) Response {
		ctx := c.Request.Context()
		id, _ := auth.FromContext(c)
		if !cfg.Auth.IsSeller(id) {
			return Err{Message: msgNotAuthorized}
		}

		productID := c.Param("id")
		if _, err := cfg.Products.GetOwned(ctx, productID, id.UserID); err != nil {
			if errors.Is(err, products.ErrNotFound) || errors.Is(err, products.ErrNotOwned) {
				return Err{Message: msgProductNotFound}
			}
			return failure(c, err)
		}
		if err := cfg.Products.Delete(ctx, productID, id.UserID); err != nil {
			if errors.Is(err, products.ErrNotOwned) {
				return Err{Message: msgProductNotFound}
			}
			return failure(c, err)
		}
		return Ok{Message: "Product deleted successfully"}
	}))
}

func formFiles(c *gin.Context) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	files := form.File["images"]
	if len(files) > maxProductImages {
		files = files[:maxProductImages]
	}
	return files
}

// uploadAll uploads files concurrently and returns their URLs in form order.
func uploadAll(c *gin.Context, cfg HandlerConfig, files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, len(files))
	if len(files) == 0 {
		return urls, nil
	}
	if cfg.Media == nil {
		return nil, errors.New("media storage is not configured")
	}
	g, ctx := errgroup.WithContext(c.Request.Context())
	for i, f := range files {
		g.Go(func() error {
			url, err := cfg.Media.Upload(ctx, f)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}
