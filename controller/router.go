package controller

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires the relay routes and middleware.
func NewRouter(relay *RelayController) *gin.Engine {
	useJSONFieldNames()

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORS())

	router.GET("/health", relay.Health)
	router.POST("/query", relay.Query)

	return router
}
