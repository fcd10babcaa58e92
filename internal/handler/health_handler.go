package handler

import (
	"github.com/gin-gonic/gin"
)

// Health 用于存活探测。
func Health(c *gin.Context) {
	ok(c, gin.H{"status": "ok"})
}
