package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"groupware/internal/apperr"
)

// более устойчиво к типам (int / int64 / float64 / string)
func getInt64FromCtx(c *gin.Context, key string) (int64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getUserAndContext(c *gin.Context) (userID, contextID int64) {
	if id, ok := getInt64FromCtx(c, "user_id"); ok {
		userID = id
	}
	if id, ok := getInt64FromCtx(c, "context_id"); ok {
		contextID = id
	}
	return
}

func httpStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindConcurrentModification:
		return http.StatusConflict
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindMandatoryField, apperr.KindValidation, apperr.KindTruncated:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the uniform error payload: code plus message, and the affected
// fields when the persistence layer reported a truncation.
func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body["code"] = ae.Code
		if len(ae.Fields) > 0 {
			body["fields"] = ae.Fields
		}
	}
	return body
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), errorBody(err))
}
