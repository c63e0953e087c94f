package handlers

import (
	"net/http"

	"github.com/bestruirui/tollfree/internal/server/router"
	"github.com/gin-gonic/gin"
)

func init() {
	router.NewGroupRouter("").
		AddRoute(
			router.NewRoute("/health", http.MethodGet).
				Handle(health),
		)
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
