package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(roomController *RoomController, userController *UserController) *gin.Engine {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/ws", roomController.ServeWS)

	api := router.Group("/api")

	rooms := api.Group("/rooms")
	rooms.GET("/:roomName", roomController.GetRoom)

	api.GET("/webrtc/ice-servers", roomController.ICEServers)

	users := api.Group("/users")
	users.POST("", userController.CreateUser)
	users.GET("/:email", userController.GetUser)

	return router
}
