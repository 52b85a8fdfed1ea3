package common

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"microblog/apperror"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Message string      `json:"message,omitempty"`
	URL     string      `json:"url,omitempty"`
}

func OK(c *gin.Context, result interface{}, url string) {
	c.JSON(http.StatusOK, Envelope{Success: true, Result: result, URL: url})
}

// Fail maps a core error to a status code. Unclassified errors are reported
// as a generic internal error and recorded on the gin context for the logger.
func Fail(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, Envelope{Message: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	url := ""
	switch apperror.Kind(err) {
	case apperror.ErrValidation:
		status = http.StatusBadRequest
	case apperror.ErrAuth:
		status = http.StatusUnauthorized
		url = "/login"
	case apperror.ErrAuthRequired:
		status = http.StatusUnauthorized
		url = "/login"
	case apperror.ErrForbidden:
		status = http.StatusForbidden
	case apperror.ErrNotFound:
		status = http.StatusNotFound
	}

	c.JSON(status, Envelope{Message: appErr.Message, URL: url})
}

// FormFrom collects the submitted fields, from a JSON object body or from the
// url-encoded / multipart form, into a field mapping.
func FormFrom(c *gin.Context) map[string]string {
	fields := map[string]string{}
	if c.ContentType() == gin.MIMEJSON {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err == nil {
			for k, v := range body {
				if s, ok := v.(string); ok {
					fields[k] = s
				}
			}
		}
		return fields
	}

	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		_ = c.Request.ParseForm()
	}
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields
}

// ParamID reads a positive integer path parameter.
func ParamID(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "invalid id")
	}
	return id, nil
}
