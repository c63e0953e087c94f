package server

import (
	"fmt"
	"net/http"

	"github.com/bestruirui/tollfree/internal/conf"
	_ "github.com/bestruirui/tollfree/internal/server/handlers"
	"github.com/bestruirui/tollfree/internal/server/middleware"
	"github.com/bestruirui/tollfree/internal/server/resp"
	"github.com/bestruirui/tollfree/internal/server/router"
	"github.com/bestruirui/tollfree/internal/utils/log"
	"github.com/gin-gonic/gin"
)

var httpSrv http.Server

func Start() error {
	if conf.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		resp.Error(c, http.StatusInternalServerError, resp.ErrInternalServer)
		c.Abort()
	}))

	if conf.IsDebug() {
		r.Use(middleware.Logger())
	}
	r.Use(middleware.Cors())

	if err := router.RegisterAll(r); err != nil {
		return err
	}

	httpSrv.Addr = fmt.Sprintf(":%d", conf.AppConfig.Gateway.Port)
	httpSrv.Handler = r
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server listen and serve error: %v", err)
		}
	}()
	return nil
}

func Close() error {
	return httpSrv.Close()
}
