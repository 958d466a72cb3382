package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"contractdesk-backend/llm"
	"contractdesk-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is
var errorMappings = []errorMapping{
	{service.ErrDocumentNotFound, http.StatusNotFound, "DOCUMENT_NOT_FOUND"},
	{service.ErrVersionNotFound, http.StatusNotFound, "VERSION_NOT_FOUND"},
	{service.ErrFileNotFound, http.StatusNotFound, "FILE_NOT_FOUND"},
	{service.ErrRiskNotFound, http.StatusNotFound, "RISK_NOT_FOUND"},
	{service.ErrAnalysisInProgress, http.StatusConflict, "ANALYSIS_IN_PROGRESS"},
	{service.ErrContentChanged, http.StatusConflict, "CONTENT_CHANGED"},
	{service.ErrNoRisks, http.StatusConflict, "ANALYSIS_REQUIRED"},
	{service.ErrNoVariables, http.StatusConflict, "ANALYSIS_REQUIRED"},
	{service.ErrNotTemplate, http.StatusUnprocessableEntity, "NOT_TEMPLATE"},
	{service.ErrEmptyContent, http.StatusUnprocessableEntity, "EMPTY_CONTENT"},
	{service.ErrUnknownVariable, http.StatusBadRequest, "UNKNOWN_VARIABLE"},
	{service.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	{service.ErrUnsupportedFile, http.StatusUnsupportedMediaType, "INVALID_FILE_TYPE"},
	{service.ErrAnalysisFailed, http.StatusBadGateway, "ANALYSIS_FAILED"},
	{llm.ErrBlocked, http.StatusUnprocessableEntity, "CONTENT_BLOCKED"},
	{llm.ErrEmptyResponse, http.StatusBadGateway, "LLM_ERROR"},
	{llm.ErrInvalidResponse, http.StatusBadGateway, "LLM_ERROR"},
	{llm.ErrProvider, http.StatusBadGateway, "LLM_ERROR"},
}

// errorStatus maps a service error onto an HTTP status and error code
func errorStatus(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "Internal server error"
	}
	abort(c, status, code, message)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// pathID parses a uuid path parameter, answering 400 when it is malformed
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses an optional uuid; nil input gives nil
func optionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
