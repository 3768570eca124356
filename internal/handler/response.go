package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carpool-lk/server/internal/lib/geocode"
	"github.com/carpool-lk/server/internal/services"
	"github.com/carpool-lk/server/internal/store"
)

// Success writes a 200 response with data
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Created writes a 201 response with data
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// BadRequest writes a 400 response
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

// Error maps a service error to a status code
func Error(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, services.ErrInvalidRide):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, geocode.ErrNotFound):
		status, message = http.StatusUnprocessableEntity, err.Error()
	default:
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
