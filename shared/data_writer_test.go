package shared

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHandler(t *testing.T, handler fiber.Handler) (int, []byte) {
	t.Helper()

	app := fiber.New()
	app.Get("/", handler)

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, payload
}

func TestResponseOK(t *testing.T) {
	code, payload := runHandler(t, func(c *fiber.Ctx) error {
		return ResponseOK(c, map[string]string{"hello": "world"})
	})

	assert.Equal(t, 200, code)

	var envelope Response
	require.NoError(t, json.Unmarshal(payload, &envelope))
	assert.Equal(t, 200, envelope.Code)
	assert.Equal(t, "Success", envelope.Message)
}

func TestResponseOKWithoutData(t *testing.T) {
	code, payload := runHandler(t, func(c *fiber.Ctx) error {
		return ResponseOK(c, nil)
	})

	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"code":200,"message":"Success"}`, string(payload))
}

func TestResponseCreated(t *testing.T) {
	code, payload := runHandler(t, func(c *fiber.Ctx) error {
		return ResponseCreated(c, map[string]string{"id": "abc"})
	})

	assert.Equal(t, 201, code)

	var envelope Response
	require.NoError(t, json.Unmarshal(payload, &envelope))
	assert.Equal(t, 201, envelope.Code)
	assert.Equal(t, "Created", envelope.Message)
}

func TestResponseNotFound(t *testing.T) {
	code, payload := runHandler(t, ResponseNotFound)

	assert.Equal(t, 404, code)
	assert.JSONEq(t, `{"code":404,"message":"Not Found"}`, string(payload))
}

func TestJSONMarshalOmitsNullMaps(t *testing.T) {
	type payload struct {
		Items map[string]string `json:"items"`
	}

	raw, err := JSONMarshal(payload{})
	require.NoError(t, err)
	assert.Equal(t, `{"items":{}}`, string(raw))
}

func TestGetAppError(t *testing.T) {
	appErr, ok := GetAppError(NewBadRequestError(errors.New("boom"), "Invalid input"))
	require.True(t, ok)
	assert.Equal(t, 400, appErr.StatusCode)
	assert.Equal(t, "Invalid input", appErr.Message)
	assert.Equal(t, "Invalid input: boom", appErr.Error())

	_, ok = GetAppError(errors.New("plain"))
	assert.False(t, ok)
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	appErr := NewInternalError(inner)
	assert.ErrorIs(t, appErr, inner)
}
