package roster

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type nameBody struct {
	Name string `json:"name" validate:"required,max=120"`
}

type registerBody struct {
	Username string `json:"username" validate:"required,max=64"`
}

func RegisterRoutes(r fiber.Router, svc *Service, adminMiddleware fiber.Handler) {
	validate := validator.New()

	parse := func(c *fiber.Ctx, out any) error {
		if err := c.BodyParser(out); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(out); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return nil
	}

	r.Post("/events", adminMiddleware, func(c *fiber.Ctx) error {
		var body nameBody
		if err := parse(c, &body); err != nil {
			return err
		}
		ev, err := svc.CreateEvent(c.Context(), body.Name)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(ev)
	})

	r.Get("/events/:id", func(c *fiber.Ctx) error {
		standings, err := svc.EventStandings(c.Context(), c.Params("id"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(standings)
	})

	r.Post("/events/:id/groups", adminMiddleware, func(c *fiber.Ctx) error {
		var body nameBody
		if err := parse(c, &body); err != nil {
			return err
		}
		g, err := svc.CreateGroup(c.Context(), c.Params("id"), body.Name)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(g)
	})

	r.Get("/groups/:id", func(c *fiber.Ctx) error {
		standings, err := svc.GroupStandings(c.Context(), c.Params("id"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(standings)
	})

	r.Post("/groups/:id/participants", adminMiddleware, func(c *fiber.Ctx) error {
		var body registerBody
		if err := parse(c, &body); err != nil {
			return err
		}
		reg, err := svc.Register(c.Context(), body.Username, c.Params("id"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(reg)
	})
}

func toHTTPError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
