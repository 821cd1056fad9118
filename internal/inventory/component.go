// Package inventory tracks lendable components and their available stock.
package inventory

import "labportal/internal/apperr"

type Component struct {
	ID                string `json:"id"`
	LabID             string `json:"labId"`
	Name              string `json:"name"`
	QuantityTotal     int    `json:"quantityTotal"`
	QuantityAvailable int    `json:"quantityAvailable"`
}

// Take removes qty units from stock. Stock is never driven below zero.
func (c *Component) Take(qty int) error {
	if qty <= 0 {
		return apperr.ErrValidation.With("quantity must be positive")
	}
	if qty > c.QuantityAvailable {
		return apperr.ErrInsufficientStock.With("%s: requested %d, available %d", c.Name, qty, c.QuantityAvailable)
	}
	c.QuantityAvailable -= qty
	return nil
}

// Restore puts qty units back, capped at the total owned.
func (c *Component) Restore(qty int) {
	c.QuantityAvailable += qty
	if c.QuantityTotal > 0 && c.QuantityAvailable > c.QuantityTotal {
		c.QuantityAvailable = c.QuantityTotal
	}
}
