package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/xraph/tally"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/types"
)

// maxPageSize caps GET /entries.
const maxPageSize = 500

// Handler serves the ledger routes.
type Handler struct {
	Ledger *tally.Ledger
}

// TopUpRequest is the body of POST /top-ups.
type TopUpRequest struct {
	Amount string `json:"amount"`
}

// UsageRequest is the body of POST /usage.
type UsageRequest struct {
	Units uint64 `json:"units"`
}

// PriceRequest is the body of PUT /price.
type PriceRequest struct {
	Price string `json:"price"`
}

// Owner returns the administrator.
func (h *Handler) Owner(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"owner": h.Ledger.Owner()})
}

// Price returns the current unit price.
func (h *Handler) Price(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"price_per_usage": h.Ledger.PricePerUsage()})
}

// Balance returns the balance of the principal in the path.
func (h *Handler) Balance(c *fiber.Ctx) error {
	p := types.NewPrincipal(c.Params("principal"))
	if p.IsZero() {
		return tally.ValidationError{Field: "principal", Message: "principal is required"}
	}
	b, err := h.Ledger.UserBalance(c.UserContext(), p)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"principal": p, "balance": b})
}

// Solvency returns custody totals.
func (h *Handler) Solvency(c *fiber.Ctx) error {
	s := h.Ledger.Solvency()
	return c.JSON(fiber.Map{
		"held":         s.Held,
		"outstanding":  s.Outstanding,
		"unattributed": s.Unattributed,
		"shortfall":    s.Shortfall,
		"solvent":      s.Solvent(),
	})
}

// TopUp credits the caller.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return tally.ValidationError{Field: "body", Message: "invalid body"}
	}
	amount, err := types.Parse(req.Amount, h.Ledger.Currency())
	if err != nil {
		return err
	}

	e, err := h.Ledger.TopUpBalance(c.UserContext(), caller(c), amount)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

// Usage charges the caller.
func (h *Handler) Usage(c *fiber.Ctx) error {
	var req UsageRequest
	if err := c.BodyParser(&req); err != nil {
		return tally.ValidationError{Field: "body", Message: "invalid body"}
	}

	e, err := h.Ledger.RecordUsage(c.UserContext(), caller(c), req.Units)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

// UpdatePrice changes the unit price. Administrator only.
func (h *Handler) UpdatePrice(c *fiber.Ctx) error {
	var req PriceRequest
	if err := c.BodyParser(&req); err != nil {
		return tally.ValidationError{Field: "body", Message: "invalid body"}
	}
	price, err := types.Parse(req.Price, h.Ledger.Currency())
	if err != nil {
		return err
	}

	e, err := h.Ledger.UpdatePrice(c.UserContext(), caller(c), price)
	if err != nil {
		return err
	}
	return c.JSON(e)
}

// Withdraw disburses held funds to the administrator. Administrator only.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	e, err := h.Ledger.WithdrawFunds(c.UserContext(), caller(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

// Entries lists journal entries.
func (h *Handler) Entries(c *fiber.Ctx) error {
	opts := journal.ListOpts{
		Principal: types.NewPrincipal(c.Query("principal")),
		Kind:      journal.Kind(c.Query("kind")),
	}
	if opts.Kind != "" && !opts.Kind.Valid() {
		return tally.ValidationError{Field: "kind", Message: "unknown entry kind"}
	}

	var err error
	if opts.Limit, err = queryInt(c, "limit", 100); err != nil {
		return err
	}
	if opts.Offset, err = queryInt(c, "offset", 0); err != nil {
		return err
	}
	if opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}

	entries, err := h.Ledger.Entries(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": entries})
}

func queryInt(c *fiber.Ctx, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, tally.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}
