package tracking

import (
	"errors"

	"movetracker/internal/auth"
	"movetracker/internal/participant"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type moveBody struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	validate := validator.New()

	r.Post("/move", authMiddleware, func(c *fiber.Ctx) error {
		var body moveBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		resp, err := svc.Move(c.Context(), auth.ParticipantID(c), participant.MoveRequest{
			Latitude:  body.Latitude,
			Longitude: body.Longitude,
		})
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(resp)
	})

	r.Get("/current", authMiddleware, func(c *fiber.Ctx) error {
		p, err := svc.Current(c.Context(), auth.ParticipantID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(p)
	})
}

func toHTTPError(err error) error {
	if errors.Is(err, ErrParticipantNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
