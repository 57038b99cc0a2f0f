package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	ListStreams(c *gin.Context)
	GetStream(c *gin.Context)
	ListDirectory(c *gin.Context)
}
