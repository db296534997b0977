package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func reply(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)
	return w
}

func TestEnvelopeCodes(t *testing.T) {
	cases := map[string]struct {
		fn   func(c *gin.Context)
		code int64
	}{
		"success":  {func(c *gin.Context) { Success(c, gin.H{"image": "x"}) }, CodeOK},
		"pending":  {func(c *gin.Context) { Pending(c, gin.H{"ready": false}) }, CodePending},
		"bad":      {func(c *gin.Context) { BadRequest(c, "bad body") }, CodeBadRequest},
		"auth":     {func(c *gin.Context) { Unauthorized(c, "missing token") }, CodeUnauthorized},
		"missing":  {func(c *gin.Context) { NotFound(c, "no such dashboard") }, CodeNotFound},
		"internal": {func(c *gin.Context) { InternalServerError(c, "db down") }, CodeInternal},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := reply(tc.fn)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.code, gjson.Get(w.Body.String(), "code").Int())
		})
	}
}

func TestPendingKeepsData(t *testing.T) {
	w := reply(func(c *gin.Context) { Pending(c, gin.H{"ready": false, "image": ""}) })
	assert.True(t, gjson.Get(w.Body.String(), "data").Exists())
	assert.False(t, gjson.Get(w.Body.String(), "data.ready").Bool())
}
