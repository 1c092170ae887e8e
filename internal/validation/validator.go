package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// an offer price above the list price is a typo, not a discount
	v.RegisterStructValidation(productFormStructValidation, ProductForm{})

	return v
}

func productFormStructValidation(sl validatorv10.StructLevel) {
	form := sl.Current().Interface().(ProductForm)
	if form.Price > 0 && form.OfferPrice > form.Price {
		sl.ReportError(form.OfferPrice, "OfferPrice", "OfferPrice", "lte_price", "")
	}
}
