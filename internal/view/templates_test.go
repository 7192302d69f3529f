package view

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderLoginPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	res := httptest.NewRecorder()
	data := map[string]any{
		"Form":       map[string]string{"Email": ""},
		"Errors":     map[string]string{},
		"RedirectTo": "",
	}
	err = engine.Render(res, "pages/login.html", TemplateData{Title: "Log in", CSRFToken: "tok", Data: data})
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.Body.String(), "<form"), "expected login form markup")
	assert.Contains(t, res.Body.String(), `value="tok"`)
}
