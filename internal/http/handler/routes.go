package handler

import (
	"context"
	"io"
	"path"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"

	"templateapi/internal/database"
	"templateapi/internal/model"
	"templateapi/internal/service"
)

// contentRequest is the JSON body of save and convert calls.
type contentRequest struct {
	Content *string `json:"content"`
}

func (r contentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.NotNil),
	)
}

// RegisterRoutes attaches HTTP routes to the provided router. main mounts it
// at the root and again under /api.
func RegisterRoutes(r fiber.Router, db database.Pinger, svc service.TemplateService) {
	r.Get("/health", HealthCheck(db))
	r.Get("/healthz", LivenessProbe())

	r.Get("/templates", ListTemplates(svc))
	r.Post("/templates", IngestTemplate(svc))
	r.Get("/templates/:id", GetTemplate(svc))
	r.Put("/templates/:id", SaveTemplate(svc))
	r.Post("/templates/:id/convert", ConvertTemplate(svc))
	r.Get("/templates/:id/source", TemplateSource(svc))

	r.Post("/convert", ConvertContent(svc))
}

// HealthCheck reports whether the template store answers a ping.
//
// @Summary Readiness probe
// @Tags health
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db database.Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is the backward-compatible simple liveness probe.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListTemplates returns every template, newest first.
//
// @Summary List templates
// @Tags templates
// @Produce json
// @Success 200 {array} model.Template
// @Failure 500 {object} errorPayload
// @Router /templates [get]
func ListTemplates(svc service.TemplateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		if items == nil {
			items = []model.Template{}
		}
		return c.JSON(items)
	}
}

// IngestTemplate stores an uploaded file (multipart/form-data, field name: file).
//
// @Summary Upload a template
// @Tags templates
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "template source"
// @Success 201 {object} model.Template
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /templates [post]
func IngestTemplate(svc service.TemplateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		raw, err := io.ReadAll(f)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot read uploaded file")
		}

		tpl, err := svc.Ingest(c.UserContext(), raw, fh.Filename, fh.Header.Get("Content-Type"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(tpl)
	}
}

// GetTemplate returns one template with its full history.
//
// @Summary Get a template
// @Tags templates
// @Produce json
// @Param id path string true "template id"
// @Success 200 {object} model.Template
// @Failure 404 {object} errorPayload
// @Router /templates/{id} [get]
func GetTemplate(svc service.TemplateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		tpl, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(tpl)
	}
}

// SaveTemplate persists new content and appends a version.
//
// @Summary Save template content
// @Tags templates
// @Accept json
// @Produce json
// @Param id path string true "template id"
// @Param body body contentRequest true "new content"
// @Success 200 {object} model.Template
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /templates/{id} [put]
func SaveTemplate(svc service.TemplateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		content, bad := parseContent(c)
		if bad != nil {
			return writeError(c, fiber.StatusBadRequest, bad.Code, bad.Message)
		}
		tpl, err := svc.Save(c.UserContext(), id, content)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(tpl)
	}
}

// ConvertContent rewrites a draft without touching any stored template.
//
// @Summary Convert a draft
// @Tags conversion
// @Accept json
// @Produce json
// @Param body body contentRequest true "draft content"
// @Success 200 {object} model.ConvertResult
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /convert [post]
func ConvertContent(svc service.TemplateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		content, bad := parseContent(c)
		if bad != nil {
			return writeError(c, fiber.StatusBadRequest, bad.Code, bad.Message)
		}
		res, err := svc.Convert(c.UserContext(), content)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// ConvertTemplate converts a draft of a stored template and records
// suggestion-style results on it.
//
// @Summary Convert a template draft
// @Tags conversion
// @Accept json
// @Produce json
// @Param id path string true "template id"
// @Param body body contentRequest true "draft content"
// @Success 200 {object} model.ConvertResult
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /templates/{id}/convert [post]
func ConvertTemplate(svc service.TemplateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		content, bad := parseContent(c)
		if bad != nil {
			return writeError(c, fiber.StatusBadRequest, bad.Code, bad.Message)
		}
		res, err := svc.ConvertForTemplate(c.UserContext(), id, content)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// TemplateSource streams the original uploaded file.
//
// @Summary Download the original upload
// @Tags templates
// @Produce octet-stream
// @Param id path string true "template id"
// @Success 200 {file} binary
// @Failure 404 {object} errorPayload
// @Router /templates/{id}/source [get]
func TemplateSource(svc service.TemplateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		rc, info, err := svc.Source(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		// Attachment guesses a type from the extension; the stored one wins.
		c.Attachment(path.Base(info.Key))
		if info.ContentType != "" {
			c.Set(fiber.HeaderContentType, info.ContentType)
		}
		// fasthttp closes rc once the body is written
		return c.SendStream(rc, int(info.Size))
	}
}

// parseContent reads {"content": "..."}. A non-nil envelope describes a
// 400 response.
func parseContent(c *fiber.Ctx) (string, *errorEnvelope) {
	var req contentRequest
	if err := c.BodyParser(&req); err != nil {
		return "", &errorEnvelope{Code: "INVALID_BODY", Message: "invalid request body"}
	}
	if err := req.Validate(); err != nil {
		return "", &errorEnvelope{Code: "VALIDATION_ERROR", Message: "content is required"}
	}
	return *req.Content, nil
}
