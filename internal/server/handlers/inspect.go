package handlers

import (
	"net/http"

	"github.com/bestruirui/tollfree/internal/conf"
	"github.com/bestruirui/tollfree/internal/server/router"
	"github.com/gin-gonic/gin"
)

func init() {
	router.NewGroupRouter("/v1").
		AddRoute(
			router.NewRoute("/inspect", http.MethodGet).
				Handle(exportInspect),
		).
		AddRoute(
			router.NewRoute("/inspect", http.MethodDelete).
				Handle(clearInspect),
		)
}

func exportInspect(c *gin.Context) {
	har := deps.Inspector.ExportHAR("tollfree", conf.Version)
	c.JSON(http.StatusOK, har)
}

func clearInspect(c *gin.Context) {
	deps.Inspector.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
